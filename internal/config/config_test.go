package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	t.Setenv("GIN_MODE", "test")
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath != "/api" {
		t.Fatalf("API_BASE_PATH default expected '/api', got %q", cfg.APIBasePath)
	}
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Server
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v2/") // -> "/api/v2"

	// Storage
	t.Setenv("STORE_BACKEND", " Badger ")
	t.Setenv("STORE_FALLBACK", "off")
	t.Setenv("BADGER_PATH", "/var/lib/dm")
	t.Setenv("AGGREGATE_CONCURRENCY", "3")
	t.Setenv("MAX_CONTENT_RUNES", "500")

	// Auth
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("JWT_ISSUER", "iss")
	t.Setenv("JWT_TTL", "1h")
	t.Setenv("BCRYPT_COST", "12")

	// Rate limiting (invalid numbers fall back to defaults)
	t.Setenv("RATE_RPS", "x")
	t.Setenv("RATE_BURST", "nope")
	t.Setenv("RATE_PER_MINUTE", "60")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	// Idempotency
	t.Setenv("IDEMPOTENCY_TTL", "48h")
	t.Setenv("IDEMPOTENCY_PURGE_CRON", "0 * * * *")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.ShutdownTimeout != 5*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v2" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.Store.Backend != BackendBadger || cfg.Store.Fallback || cfg.Store.Badger != "/var/lib/dm" {
		t.Fatalf("store unexpected: %+v", cfg.Store)
	}
	if cfg.AggregateConcurrency != 3 || cfg.MaxContentRunes != 500 {
		t.Fatalf("limits unexpected: %+v", cfg)
	}
	if cfg.Auth.JWTSecret != testSecret || cfg.Auth.JWTIssuer != "iss" || cfg.Auth.JWTTTL != time.Hour || cfg.Auth.BcryptCost != 12 {
		t.Fatalf("auth unexpected: %+v", cfg.Auth)
	}
	if cfg.Rate.RPS != 5.0 || cfg.Rate.Burst != 10 || cfg.Rate.PerMinute != 60 || cfg.Rate.RedisAddr != "redis:6379" || cfg.Rate.RedisDB != 2 {
		t.Fatalf("rate limiting unexpected: %+v", cfg.Rate)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if cfg.IdempotencyTTL != 48*time.Hour || cfg.IdempotencyPurgeCron != "0 * * * *" {
		t.Fatalf("idempotency unexpected: %v %q", cfg.IdempotencyTTL, cfg.IdempotencyPurgeCron)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_JWTSecret(t *testing.T) {
	t.Run("required in release", func(t *testing.T) {
		t.Setenv("GIN_MODE", "release")
		if _, err := Load(); err == nil || !containsErr(err, "JWT_SECRET") {
			t.Fatalf("expected JWT_SECRET error, got %v", err)
		}
	})
	t.Run("dev default in debug", func(t *testing.T) {
		t.Setenv("GIN_MODE", "debug")
		cfg, err := Load()
		if err != nil || cfg.Auth.JWTSecret != devJWTSecret {
			t.Fatalf("expected dev secret, got %q, %v", cfg.Auth.JWTSecret, err)
		}
	})
	t.Run("too short", func(t *testing.T) {
		t.Setenv("GIN_MODE", "test")
		t.Setenv("JWT_SECRET", "short")
		if _, err := Load(); err == nil || !containsErr(err, "at least 32 bytes") {
			t.Fatalf("expected length error, got %v", err)
		}
	})
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name, key, val, want string
	}{
		{"invalid LOG_LEVEL", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"empty PORT via spaces", "PORT", "   ", "PORT must not be empty"},
		{"non-positive timeouts", "READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"shutdown timeout", "SHUTDOWN_TIMEOUT", "0s", "SHUTDOWN_TIMEOUT"},
		{"max header bytes <= 0", "MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"unknown backend", "STORE_BACKEND", "firebase", "STORE_BACKEND"},
		{"empty DB_PATH", "DB_PATH", "   ", "DB_PATH must not be empty"},
		{"aggregate concurrency", "AGGREGATE_CONCURRENCY", "0", "AGGREGATE_CONCURRENCY"},
		{"content limit", "MAX_CONTENT_RUNES", "0", "MAX_CONTENT_RUNES"},
		{"jwt ttl", "JWT_TTL", "-1m", "JWT_TTL"},
		{"bcrypt cost", "BCRYPT_COST", "40", "BCRYPT_COST"},
		{"rate rps negative", "RATE_RPS", "-1", "RATE_RPS"},
		{"rate burst < 1", "RATE_BURST", "0", "RATE_BURST"},
		{"rate per minute < 1", "RATE_PER_MINUTE", "0", "RATE_PER_MINUTE"},
		{"redis db negative", "REDIS_DB", "-1", "REDIS_DB"},
		{"hsts max age negative", "HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"idempotency ttl non-positive", "IDEMPOTENCY_TTL", "0s", "IDEMPOTENCY_TTL"},
		{"purge cron blank", "IDEMPOTENCY_PURGE_CRON", "  ", "IDEMPOTENCY_PURGE_CRON"},
		{"otel sample ratio out of range", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("GIN_MODE", "test")
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil || !containsErr(err, tc.want) {
				t.Fatalf("expected %s error, got: %v", tc.want, err)
			}
		})
	}

	t.Run("mysql without dsn", func(t *testing.T) {
		t.Setenv("GIN_MODE", "test")
		t.Setenv("STORE_BACKEND", "mysql")
		if _, err := Load(); err == nil || !containsErr(err, "MYSQL_DSN") {
			t.Fatalf("expected MYSQL_DSN error, got: %v", err)
		}
	})
	t.Run("badger without path", func(t *testing.T) {
		t.Setenv("GIN_MODE", "test")
		t.Setenv("STORE_BACKEND", "badger")
		t.Setenv("BADGER_PATH", " ")
		if _, err := Load(); err == nil || !containsErr(err, "BADGER_PATH") {
			t.Fatalf("expected BADGER_PATH error, got: %v", err)
		}
	})
}

// --- dotenv ---

func TestLoadDotEnv_PriorityAndNoOverride(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write(".env", "DM_A=from_env\nDM_B=from_env\nDM_C=from_env\n")
	write(".env.local", "DM_A=from_local\n")
	t.Setenv("DM_C", "from_process")
	t.Setenv("DM_A", "")
	os.Unsetenv("DM_A")
	t.Setenv("DM_B", "")
	os.Unsetenv("DM_B")

	loaded, err := LoadDotEnv(dir)
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded = %v", loaded)
	}
	if os.Getenv("DM_A") != "from_local" || os.Getenv("DM_B") != "from_env" || os.Getenv("DM_C") != "from_process" {
		t.Fatalf("unexpected env: A=%q B=%q C=%q", os.Getenv("DM_A"), os.Getenv("DM_B"), os.Getenv("DM_C"))
	}
}

func TestLoadDotEnv_NoFiles(t *testing.T) {
	loaded, err := LoadDotEnv(t.TempDir())
	if err != nil || loaded != nil {
		t.Fatalf("expected nothing loaded, got %v, %v", loaded, err)
	}
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}
	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}
	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	for i, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"} {
		k := "B_T_" + string(rune('a'+i))
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	for i, v := range []string{"0", "false", "FALSE", " no ", "N", "off", "Off"} {
		k := "B_F_" + string(rune('a'+i))
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV mismatch: got %#v", got)
	}
	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}

// Ensure tests don't leak env to others.
func TestMain(m *testing.M) {
	for _, k := range []string{"PORT", "JWT_SECRET", "STORE_BACKEND", "GIN_MODE"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
