package tracing

import (
	"context"
	"testing"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	for _, cfg := range []Config{{}, {Enabled: true}, {Endpoint: "http://collector:4318"}} {
		tp, shutdown, err := Setup(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Setup(%+v): %v", cfg, err)
		}
		_, span := tp.Tracer("test").Start(context.Background(), "op")
		if span.SpanContext().IsValid() {
			t.Fatalf("expected non-recording span for %+v", cfg)
		}
		span.End()
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	}
}

func TestSetupEnabledRecords(t *testing.T) {
	tp, shutdown, err := Setup(context.Background(), Config{Enabled: true, Endpoint: "http://127.0.0.1:1/v1/traces"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	_, span := tp.Tracer("test").Start(context.Background(), "op")
	if !span.SpanContext().IsValid() {
		t.Fatalf("expected sampled span")
	}
	span.End()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
