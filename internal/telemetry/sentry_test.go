package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSpan_SetsAttributes(t *testing.T) {
	_, span := StartSpan(context.Background(), "rag.answer", SpanAttributes{
		SessionID: "session-1",
		Operation: "answer",
	})
	defer span.End()

	require.NotNil(t, span.inner)
	assert.Equal(t, "session-1", span.inner.Tags["session_id"])
}

func TestSpan_SetProvider(t *testing.T) {
	_, span := StartSpan(context.Background(), "rag.answer", SpanAttributes{Operation: "answer"})
	defer span.End()

	span.SetProvider("openrouter")

	require.NotNil(t, span.inner)
	assert.Equal(t, "openrouter", span.inner.Tags["provider"])
}

func TestSpan_NilInnerIsSafe(t *testing.T) {
	span := &Span{}

	assert.NotPanics(t, func() {
		span.SetProvider("groq")
		span.SetError(assert.AnError)
		span.End()
	})
}
