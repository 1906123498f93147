package observability

import (
	"context"
	"testing"
)

func TestOtelHeadersParsesPairs(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "api-key=abc, x-team = radar ,broken,=nokey")
	h := otelHeaders()
	if len(h) != 2 || h["api-key"] != "abc" || h["x-team"] != "radar" {
		t.Fatalf("headers %v", h)
	}
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "")
	if otelHeaders() != nil {
		t.Fatalf("empty env should give nil headers")
	}
}

func TestOtelSampleRatioClamps(t *testing.T) {
	for in, want := range map[string]float64{"": 1, "0.25": 0.25, "-1": 0, "7": 1, "abc": 1} {
		t.Setenv("OTEL_SAMPLER_RATIO", in)
		if got := otelSampleRatio(); got != want {
			t.Fatalf("%q: got %v want %v", in, got, want)
		}
	}
}

func TestInitOTelDisabledIsNoop(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	shutdown := InitOTel(context.Background(), nil, OtelConfig{ServiceName: "radar-test"})
	if shutdown == nil {
		t.Fatalf("shutdown must never be nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}
