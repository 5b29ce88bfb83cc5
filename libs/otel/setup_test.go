package otelx

import (
	"context"
	"testing"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

	cfg := ConfigFromEnv("booking-service")
	if cfg.Enabled {
		t.Fatal("expected tracing disabled")
	}
	if cfg.SampleRatio != 0.25 || cfg.OTLPEndpoint != "collector:4317" || cfg.Namespace != "salonbook" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("OTEL_SAMPLING_RATIO", "7")
	if got := ConfigFromEnv("x").SampleRatio; got != 1 {
		t.Fatalf("expected out-of-range ratio to fall back to 1, got %v", got)
	}

	t.Setenv("OTEL_ENABLED", "true")
	if !ConfigFromEnv("x").Enabled {
		t.Fatal("expected tracing enabled")
	}
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", " ")
	if ConfigFromEnv("x").Enabled {
		t.Fatal("expected tracing disabled without an endpoint")
	}
}

func TestSetupDisabledStillPropagates(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	in := TraceContext{Parent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}
	if got := CaptureTraceContext(in.Attach(context.Background())); got.Parent != in.Parent {
		t.Fatalf("expected traceparent to round trip, got %q", got.Parent)
	}

	bg := context.Background()
	if (TraceContext{}).Attach(bg) != bg {
		t.Fatal("empty trace context should leave ctx untouched")
	}
}
