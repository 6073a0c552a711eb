package mcptrace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func testSpanContext(t *testing.T) trace.SpanContext {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
}

func TestContextFromMetaNilMeta(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, ContextFromMeta(ctx, nil))
}

func TestContextFromMetaValidTraceparent(t *testing.T) {
	meta := map[string]any{"traceparent": testTraceparent}

	sc := trace.SpanContextFromContext(ContextFromMeta(context.Background(), meta))

	require.True(t, sc.IsValid())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", sc.SpanID().String())
	assert.True(t, sc.IsRemote())
	assert.True(t, sc.IsSampled())
}

func TestContextFromMetaFieldRecord(t *testing.T) {
	sc := trace.SpanContextFromContext(ContextFromMeta(context.Background(), recordMeta{traceparent: testTraceparent}))

	require.True(t, sc.IsValid())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())
	assert.True(t, sc.IsRemote())
}

func TestContextFromMetaMalformedDegradesToAmbient(t *testing.T) {
	tests := []struct {
		name string
		meta any
	}{
		{"missing traceparent", map[string]any{"other": "x"}},
		{"empty header", map[string]any{"traceparent": ""}},
		{"wrong segment count", map[string]any{"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7"}},
		{"non-hex trace id", map[string]any{"traceparent": "00-zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz-00f067aa0ba902b7-01"}},
		{"zero trace id", map[string]any{"traceparent": "00-00000000000000000000000000000000-00f067aa0ba902b7-01"}},
		{"zero span id", map[string]any{"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-0000000000000000-01"}},
		{"unsupported carrier shape", 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextFromMeta(context.Background(), tt.meta)
			assert.False(t, trace.SpanContextFromContext(ctx).IsValid())
		})
	}
}

func TestContextFromMetaKeepsAmbientOnFailure(t *testing.T) {
	parent := testSpanContext(t)
	ctx := trace.ContextWithSpanContext(context.Background(), parent)

	extracted := ContextFromMeta(ctx, map[string]any{"traceparent": "garbage"})

	assert.Equal(t, parent, trace.SpanContextFromContext(extracted),
		"malformed header leaves the ambient context untouched")
}

func TestInjectExtractRoundTrip(t *testing.T) {
	original := testSpanContext(t)
	ctx := trace.ContextWithSpanContext(context.Background(), original)

	meta := InjectMeta(ctx)
	require.NotEmpty(t, meta["traceparent"])

	sc := trace.SpanContextFromContext(ContextFromMeta(context.Background(), meta))
	require.True(t, sc.IsValid())
	assert.Equal(t, original.TraceID(), sc.TraceID())
	assert.Equal(t, original.SpanID(), sc.SpanID())
	assert.True(t, sc.IsRemote())
}

func TestInjectMetaWithoutSpan(t *testing.T) {
	meta := InjectMeta(context.Background())
	assert.Empty(t, meta)
}
