// Command server runs the direct-messaging HTTP API.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-dm-backend/internal/auth"
	"github.com/tbourn/go-dm-backend/internal/config"
	httpapi "github.com/tbourn/go-dm-backend/internal/http"
	"github.com/tbourn/go-dm-backend/internal/http/middleware"
	"github.com/tbourn/go-dm-backend/internal/jobs"
	"github.com/tbourn/go-dm-backend/internal/observability"
	"github.com/tbourn/go-dm-backend/internal/services"
	"github.com/tbourn/go-dm-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx)
	stop()
	os.Exit(code)
}

// run wires every component, serves until ctx is cancelled or the server
// fails, then shuts down in reverse order. It returns the process exit code.
func run(ctx context.Context) int {
	envFiles, envErr := config.LoadDotEnv(".")

	cfg, err := config.Load()
	if err != nil {
		lg := sysutil.ConfigureLogger(os.Stderr, false, "go-dm-backend")
		lg.Error().Err(err).Msg("invalid configuration")
		return 1
	}

	lg := sysutil.ConfigureLogger(os.Stdout, cfg.LogPretty, cfg.OTEL.ServiceName)
	sysutil.SetLogLevel(cfg.LogLevel)
	if envErr != nil {
		lg.Warn().Err(envErr).Msg("dotenv files could not be loaded")
	}
	lg.Info().Strs("env_files", envFiles).Str("version", version).Msg("starting")

	st, err := openStore(cfg.Store, cfg.OTEL.Enabled, lg)
	if err != nil {
		lg.Error().Err(err).Str("backend", cfg.Store.Backend).Msg("failed to open store")
		return 1
	}
	defer func() {
		if err := st.Close(); err != nil {
			lg.Warn().Err(err).Msg("store close")
		}
	}()
	lg.Info().Str("backend", st.Backend()).Msg("store ready")

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, observability.BuildInfo{
		Version:      version,
		StoreBackend: st.Backend(),
	})
	if err != nil {
		lg.Error().Err(err).Msg("failed to set up tracing")
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			lg.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	if err := middleware.RegisterValidators(services.ValidUsername); err != nil {
		lg.Error().Err(err).Msg("failed to register validators")
		return 1
	}

	var limiter redis.Scripter
	if cfg.Rate.RedisAddr != "" {
		rdb := newRedis(ctx, cfg.Rate, lg)
		if rdb != nil {
			defer rdb.Close()
			limiter = rdb
		}
	}

	sched, err := jobs.NewScheduler(lg)
	if err != nil {
		lg.Error().Err(err).Msg("failed to create scheduler")
		return 1
	}
	if err := jobs.Register(sched, st, cfg.IdempotencyPurgeCron, lg); err != nil {
		lg.Error().Err(err).Msg("failed to register jobs")
		return 1
	}
	sched.Start()
	lg.Info().Strs("jobs", sched.Jobs()).Msg("scheduler started")
	defer func() {
		if err := sched.Shutdown(); err != nil {
			lg.Warn().Err(err).Msg("scheduler shutdown")
		}
	}()

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, httpapi.Deps{
		Store:  st,
		Tokens: auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTTTL),
		Hasher: auth.NewHasher(cfg.Auth.BcryptCost),
		Redis:  limiter,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(_ net.Listener) context.Context { return lg.WithContext(context.Background()) },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		lg.Info().Msg("shutting down http server")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		lg.Error().Err(err).Msg("server stopped with error")
		return 1
	}
	lg.Info().Msg("server stopped")
	return 0
}

// newRedis connects the shared rate limiter's client. A failed ping is
// logged and nil is returned so the in-process limiter is used instead.
func newRedis(ctx context.Context, cfg config.RateConfig, lg zerolog.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		lg.Warn().Err(err).Str("addr", cfg.RedisAddr).
			Msg("redis unavailable; using in-process rate limiter")
		_ = rdb.Close()
		return nil
	}
	lg.Info().Str("addr", cfg.RedisAddr).Msg("redis rate limiter enabled")
	return rdb
}
