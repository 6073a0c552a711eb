package mcptrace

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingTransport wraps an http.RoundTripper to propagate the active trace
// context on outbound requests: the propagator's headers (traceparent etc.)
// plus X-Trace-Id/X-Span-Id convenience headers for backends that index them.
type TracingTransport struct {
	Base       http.RoundTripper
	Propagator propagation.TextMapPropagator
}

// NewTracingTransport creates a transport that injects trace headers. A nil
// base uses http.DefaultTransport.
func NewTracingTransport(base http.RoundTripper) *TracingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &TracingTransport{Base: base}
}

func (t *TracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	ctx := req.Context()

	propagator := t.Propagator
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	propagator.Inject(ctx, propagation.HeaderCarrier(req2.Header))

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		req2.Header.Set("X-Trace-Id", sc.TraceID().String())
		req2.Header.Set("X-Span-Id", sc.SpanID().String())
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req2)
}
