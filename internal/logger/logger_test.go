package logger

import (
	"testing"

	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Additional-Code/procura/internal/config"
)

func TestNewHonoursLevel(t *testing.T) {
	cases := []struct {
		name     string
		level    string
		encoding string
		debug    bool
	}{
		{name: "json_info", level: "info", encoding: "json"},
		{name: "console_debug", level: "DEBUG", encoding: "console", debug: true},
		{name: "unknown_level_defaults_to_info", level: "loud", encoding: "json"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Config{}
			cfg.Observability.ServiceName = "procura"
			cfg.Observability.Environment = "test"
			cfg.Observability.LogLevel = tc.level
			cfg.Observability.LogEncoding = tc.encoding

			lc := fxtest.NewLifecycle(t)
			log, err := New(lc, cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := log.Core().Enabled(zapcore.DebugLevel); got != tc.debug {
				t.Fatalf("debug enabled = %v, want %v", got, tc.debug)
			}
			if !log.Core().Enabled(zapcore.InfoLevel) {
				t.Fatal("info should always be enabled")
			}
		})
	}
}

func TestNewInstallsGlobalsWhileRunning(t *testing.T) {
	cfg := config.Config{}
	cfg.Observability.LogLevel = "warn"
	cfg.Observability.LogEncoding = "json"

	before := zap.L()
	lc := fxtest.NewLifecycle(t)
	log, err := New(lc, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if log.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info should be disabled at warn level")
	}

	lc.RequireStart()
	if zap.L() != log {
		t.Fatal("global logger should be the service logger while running")
	}
	lc.RequireStop()
	if zap.L() != before {
		t.Fatal("global logger should be restored on stop")
	}
}
