package sysutil

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetLogLevel_AllVariants(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"  DeBuG  ", zerolog.DebugLevel}, // case + trim
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel}, // empty -> info
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel}, // alias
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel}, // default
	}

	for _, tc := range cases {
		SetLogLevel(tc.in)
		if got := zerolog.GlobalLevel(); got != tc.want {
			t.Fatalf("SetLogLevel(%q) -> %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestConfigureLogger_InstallsGlobals(t *testing.T) {
	origLog, origCtx, origLvl := log.Logger, zerolog.DefaultContextLogger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = origLog
		zerolog.DefaultContextLogger = origCtx
		zerolog.SetGlobalLevel(origLvl)
	})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	var buf bytes.Buffer
	ConfigureLogger(&buf, false, "dm-test")

	// A bare context falls back to the configured logger.
	zerolog.Ctx(context.Background()).Info().Msg("hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if rec["service"] != "dm-test" || rec["message"] != "hello" || rec["time"] == nil {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestConfigureLogger_Pretty(t *testing.T) {
	origLog, origCtx := log.Logger, zerolog.DefaultContextLogger
	t.Cleanup(func() {
		log.Logger = origLog
		zerolog.DefaultContextLogger = origCtx
	})

	var buf bytes.Buffer
	l := ConfigureLogger(&buf, true, "dm-test")
	l.Warn().Msg("pretty")
	if bytes.HasPrefix(buf.Bytes(), []byte("{")) || !bytes.Contains(buf.Bytes(), []byte("pretty")) {
		t.Fatalf("expected console output, got %q", buf.String())
	}
}
