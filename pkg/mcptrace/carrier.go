// Package mcptrace propagates OpenTelemetry trace context through MCP tool
// calls. MCP clients send a _meta object alongside tool call params that may
// carry W3C trace-context fields, either directly or nested under an "otel"
// namespace, mirroring HTTP header propagation. This package normalizes those
// carriers, extracts a parent context from them, and wraps tool invocations
// in server spans linked to the calling trace.
package mcptrace

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/propagation"
)

// FieldCarrier is implemented by metadata records that are not plain maps but
// can expose their fields as key-value pairs. Hosts whose request metadata is
// a struct implement this to make it readable by the carrier.
type FieldCarrier interface {
	MetaFields() map[string]any
}

// Namespace keys that may hold a nested carrier inside a _meta object.
var metaNamespaces = []string{"otel", "opentelemetry"}

// Canonical trace-context fields and their accepted spellings, scanned in
// declared order. The first alias present in a view binds the canonical key.
var metaFieldAliases = []struct {
	canonical string
	aliases   []string
}{
	{"traceparent", []string{"traceparent", "traceParent", "TRACEPARENT"}},
	{"tracestate", []string{"tracestate", "traceState", "TRACESTATE"}},
	{"baggage", []string{"baggage", "Baggage", "BAGGAGE"}},
}

// Carrier adapts an MCP _meta object to propagation.TextMapCarrier. The meta
// value may be a map[string]any, a map[string]string, or a FieldCarrier; any
// other shape behaves like an empty carrier. Lookups consult the root fields
// first and then any nested "otel"/"opentelemetry" namespace.
type Carrier struct {
	meta any
}

var _ propagation.TextMapCarrier = Carrier{}

// NewCarrier wraps a _meta value for use with a TextMapPropagator.
func NewCarrier(meta any) Carrier {
	return Carrier{meta: meta}
}

// Get returns the first value bound to key, or "" when absent.
func (c Carrier) Get(key string) string {
	if values := c.Values(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// Values returns every value bound to key across all candidate views, root
// view first. Slice values contribute one string per non-nil element.
func (c Carrier) Values(key string) []string {
	key = strings.ToLower(key)
	var values []string
	for _, view := range candidateViews(c.meta) {
		if v, ok := view[key]; ok {
			values = append(values, coerceStrings(v)...)
		}
	}
	return values
}

// Keys returns the union of keys across all candidate views.
func (c Carrier) Keys() []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, view := range candidateViews(c.meta) {
		for k := range view {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// Set stores a value when the underlying meta is a mutable map, so the same
// type serves injection. It is a no-op for read-only carrier shapes.
func (c Carrier) Set(key, value string) {
	if m, ok := c.meta.(map[string]any); ok {
		m[strings.ToLower(key)] = value
	}
}

// metaFields dispatches on the admissible carrier shapes. It returns false
// for nil or unsupported values; extraction then degrades to the ambient
// context rather than erroring.
func metaFields(meta any) (map[string]any, bool) {
	switch m := meta.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		fields := make(map[string]any, len(m))
		for k, v := range m {
			fields[k] = v
		}
		return fields, true
	case FieldCarrier:
		if m == nil {
			return nil, false
		}
		fields := m.MetaFields()
		if fields == nil {
			return nil, false
		}
		return fields, true
	default:
		return nil, false
	}
}

// candidateViews builds the normalized lookup views for a carrier in priority
// order: the root fields, then each nested namespace that is itself
// carrier-shaped. Views are built fresh on every call; the carrier is never
// mutated.
func candidateViews(meta any) []map[string]any {
	root, ok := metaFields(meta)
	if !ok {
		return nil
	}
	views := []map[string]any{normalizeView(root)}
	for _, ns := range metaNamespaces {
		nested, ok := metaFields(root[ns])
		if !ok {
			continue
		}
		views = append(views, normalizeView(nested))
	}
	return views
}

// normalizeView lowercases a raw field set and resolves the known aliases.
// Once a canonical key is bound, later spellings of the same field are not
// consulted and lowercased copies never overwrite it.
func normalizeView(raw map[string]any) map[string]any {
	view := make(map[string]any, len(raw))
	for _, field := range metaFieldAliases {
		for _, alias := range field.aliases {
			if v, ok := raw[alias]; ok {
				view[field.canonical] = v
				break
			}
		}
	}
	for k, v := range raw {
		lower := strings.ToLower(k)
		if _, bound := view[lower]; bound {
			continue
		}
		view[lower] = v
	}
	return view
}

// coerceStrings flattens a carrier value into header strings. Nil yields
// nothing, slices yield one string per non-nil element, scalars yield one.
func coerceStrings(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return []string{val}
	case []string:
		out := make([]string, 0, len(val))
		out = append(out, val...)
		return out
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{fmt.Sprint(val)}
	}
}
