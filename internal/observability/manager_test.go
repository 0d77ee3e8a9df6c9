package observability

import (
	"testing"

	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/procura/internal/config"
)

func baseConfig() config.Config {
	cfg := config.Config{}
	cfg.Observability.ServiceName = "procura"
	cfg.Observability.Environment = "test"
	cfg.Observability.PrometheusPath = "/metrics"
	return cfg
}

func TestManagerDisabled(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	mgr, err := NewManager(lc, baseConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	lc.RequireStart().RequireStop()

	if mgr.TracingEnabled() || mgr.MetricsEnabled() || mgr.MetricsHandler() != nil {
		t.Fatal("nothing should be enabled by default")
	}
	if mgr.PrometheusPath() != "/metrics" {
		t.Fatalf("PrometheusPath() = %q", mgr.PrometheusPath())
	}
}

func TestManagerExporters(t *testing.T) {
	cfg := baseConfig()
	cfg.Observability.EnableTracing = true
	cfg.Observability.TraceExporter = "stdout"
	cfg.Observability.EnableMetrics = true
	cfg.Observability.MetricsExporter = "prometheus"

	lc := fxtest.NewLifecycle(t)
	mgr, err := NewManager(lc, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	lc.RequireStart().RequireStop()

	if !mgr.TracingEnabled() || !mgr.MetricsEnabled() || mgr.MetricsHandler() == nil {
		t.Fatal("tracing and prometheus metrics should be enabled")
	}
}

func TestManagerRejectsOTLPWithoutEndpoint(t *testing.T) {
	for _, exporter := range []string{"otlp", "otlphttp"} {
		t.Run(exporter, func(t *testing.T) {
			cfg := baseConfig()
			cfg.Observability.EnableTracing = true
			cfg.Observability.TraceExporter = exporter
			if _, err := NewManager(fxtest.NewLifecycle(t), cfg, zap.NewNop()); err == nil {
				t.Fatal("expected an error without OBS_OTLP_ENDPOINT")
			}
		})
	}
}

func TestManagerUnknownExporterDisablesTracing(t *testing.T) {
	cfg := baseConfig()
	cfg.Observability.EnableTracing = true
	cfg.Observability.TraceExporter = "zipkin"
	mgr, err := NewManager(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if mgr.TracingEnabled() {
		t.Fatal("unknown exporter should leave tracing disabled")
	}
}
