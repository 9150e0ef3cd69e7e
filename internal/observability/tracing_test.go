package observability

import (
	"context"
	"errors"
	"testing"
)

func TestNewTracer_NoEndpointIsNoop(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "llmcore-test"})
	if tracer == nil {
		t.Fatal("expected a non-nil Tracer even with no endpoint configured")
	}

	ctx, span := tracer.TraceLLMRequest(context.Background(), "anthropic", "claude-3-5-sonnet-latest", "int-1")
	if ctx == nil {
		t.Fatal("expected a non-nil context")
	}
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() = %v, want nil for a no-op tracer", err)
	}
}

func TestTracer_RecordError(t *testing.T) {
	tracer, _ := NewTracer(TraceConfig{})
	_, span := tracer.TraceLLMRequest(context.Background(), "openai", "gpt-4o", "int-2")
	defer span.End()

	// RecordError must be safe to call unconditionally, including with a
	// nil error (the common defer pattern at a call site).
	tracer.RecordError(span, nil)
	tracer.RecordError(span, errors.New("boom"))
}
