package mcptrace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTraceparent       = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	testNestedTraceparent = "00-aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa-bbbbbbbbbbbbbbbb-01"
)

// recordMeta is a non-map metadata carrier, like the struct-shaped request
// metadata some hosts pass.
type recordMeta struct {
	traceparent string
	extra       map[string]any
}

func (r recordMeta) MetaFields() map[string]any {
	fields := map[string]any{"traceparent": r.traceparent}
	for k, v := range r.extra {
		fields[k] = v
	}
	return fields
}

func TestCarrierGetReadsRootFields(t *testing.T) {
	c := NewCarrier(map[string]any{"traceparent": testTraceparent})

	assert.Equal(t, testTraceparent, c.Get("traceparent"))
	assert.Equal(t, testTraceparent, c.Get("TRACEPARENT"), "lookup key is case-insensitive")
	assert.Empty(t, c.Get("tracestate"))
}

func TestCarrierAliasPrecedence(t *testing.T) {
	// When multiple spellings are present the first-declared alias wins and
	// the others are never consulted.
	c := NewCarrier(map[string]any{
		"traceparent": testTraceparent,
		"traceParent": testNestedTraceparent,
	})
	assert.Equal(t, []string{testTraceparent}, c.Values("traceparent"))

	c = NewCarrier(map[string]any{"traceParent": testNestedTraceparent})
	assert.Equal(t, []string{testNestedTraceparent}, c.Values("traceparent"))
}

func TestCarrierNestedNamespace(t *testing.T) {
	for _, ns := range []string{"otel", "opentelemetry"} {
		c := NewCarrier(map[string]any{
			ns: map[string]any{"traceParent": testNestedTraceparent},
		})
		assert.Equal(t, testNestedTraceparent, c.Get("traceparent"), "namespace %s", ns)
	}
}

func TestCarrierRootViewPrecedesNamespace(t *testing.T) {
	c := NewCarrier(map[string]any{
		"traceparent": testTraceparent,
		"otel":        map[string]any{"traceparent": testNestedTraceparent},
	})

	// Both views contribute, root first; Get takes the first.
	assert.Equal(t, []string{testTraceparent, testNestedTraceparent}, c.Values("traceparent"))
	assert.Equal(t, testTraceparent, c.Get("traceparent"))
}

func TestCarrierFieldCarrier(t *testing.T) {
	c := NewCarrier(recordMeta{traceparent: testTraceparent})
	assert.Equal(t, testTraceparent, c.Get("traceparent"))

	// Nested namespaces may be records too.
	c = NewCarrier(map[string]any{"otel": recordMeta{traceparent: testNestedTraceparent}})
	assert.Equal(t, testNestedTraceparent, c.Get("traceparent"))
}

func TestCarrierValueCoercion(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  []string
	}{
		{"nil value", nil, nil},
		{"scalar string", "a", []string{"a"}},
		{"scalar int", 7, []string{"7"}},
		{"string slice", []string{"a", "b"}, []string{"a", "b"}},
		{"any slice skips nils", []any{"a", nil, 2}, []string{"a", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCarrier(map[string]any{"baggage": tt.value})
			assert.Equal(t, tt.want, c.Values("baggage"))
		})
	}
}

func TestCarrierKeysUnion(t *testing.T) {
	c := NewCarrier(map[string]any{
		"traceParent": testTraceparent,
		"custom":      "x",
		"otel":        map[string]any{"tracestate": "vendor=1"},
	})

	keys := c.Keys()
	assert.Contains(t, keys, "traceparent")
	assert.Contains(t, keys, "tracestate")
	assert.Contains(t, keys, "custom")
	assert.Contains(t, keys, "otel")
}

func TestCarrierUnsupportedShapes(t *testing.T) {
	for _, meta := range []any{nil, 42, "traceparent", []string{"x"}} {
		c := NewCarrier(meta)
		assert.Empty(t, c.Get("traceparent"))
		assert.Nil(t, c.Values("traceparent"))
		assert.Empty(t, c.Keys())
	}
}

func TestCarrierSetWritesToMapMeta(t *testing.T) {
	meta := map[string]any{}
	c := NewCarrier(meta)
	c.Set("Traceparent", testTraceparent)

	require.Equal(t, testTraceparent, meta["traceparent"])
	assert.Equal(t, testTraceparent, c.Get("traceparent"))

	// Read-only shapes make Set a no-op rather than panicking.
	NewCarrier(recordMeta{}).Set("traceparent", testTraceparent)
}

func TestNormalizeViewSkipsCollisions(t *testing.T) {
	view := normalizeView(map[string]any{
		"traceParent": testTraceparent,
		"TRACEPARENT": testNestedTraceparent,
		"Custom":      "x",
	})

	// traceParent is declared before TRACEPARENT, and the lowercased copy of
	// TRACEPARENT must not clobber the bound canonical key.
	assert.Equal(t, testTraceparent, view["traceparent"])
	assert.Equal(t, "x", view["custom"])
}
