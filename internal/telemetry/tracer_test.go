package telemetry

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/tjfontaine/chat-responses-gateway/internal/config"
)

func TestInitTracer_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := InitTracer(config.TelemetryConfig{Enabled: false}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("InitTracer() should not replace the provider when disabled")
	}
}

func TestInitTracer_ExportsSpans(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	var out bytes.Buffer
	cfg := config.TelemetryConfig{Enabled: true, ServiceName: "gateway-test"}

	shutdown, err := InitTracer(cfg, &out, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}

	_, span := Tracer().Start(context.Background(), "gateway.forward")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}

	if !strings.Contains(out.String(), "gateway.forward") {
		t.Errorf("exported spans missing gateway.forward: %s", out.String())
	}
	if !strings.Contains(out.String(), "gateway-test") {
		t.Errorf("exported spans missing service name: %s", out.String())
	}
}
