package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func TestSetupTracing_DisabledWithoutEndpoint(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	shutdown, err := SetupTracing(context.Background(), TracingConfig{}, "tgpt", "test", logger)
	if err != nil {
		t.Fatalf("SetupTracing() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestStartSpan_NoopProvider(t *testing.T) {
	t.Parallel()

	ctx, span := StartSpan(context.Background(), "test.span")
	if ctx == nil {
		t.Fatal("StartSpan() returned nil context")
	}
	// Must not panic with the no-op provider.
	EndSpan(span, errors.New("boom"))
}
