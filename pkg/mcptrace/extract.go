package mcptrace

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// ContextFromMeta returns a context carrying any trace context found in an
// MCP _meta value, using the global text map propagator. A nil meta returns
// ctx unchanged. Extraction never fails: a malformed or absent traceparent
// degrades to ctx unchanged, so the caller starts a new trace root.
func ContextFromMeta(ctx context.Context, meta any) context.Context {
	return extractContext(ctx, meta, nil, nil, nil)
}

// CarrierFactory turns a raw _meta value into a propagation carrier. The
// default is NewCarrier; middleware options may swap in a custom lookup
// strategy.
type CarrierFactory func(meta any) propagation.TextMapCarrier

func extractContext(ctx context.Context, meta any, propagator propagation.TextMapPropagator, carrierFor CarrierFactory, logger *slog.Logger) context.Context {
	if meta == nil {
		return ctx
	}
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	var carrier propagation.TextMapCarrier
	if carrierFor != nil {
		carrier = carrierFor(meta)
	} else {
		carrier = NewCarrier(meta)
	}
	extracted := propagator.Extract(ctx, carrier)
	if logger != nil && logger.Enabled(ctx, slog.LevelDebug) {
		logExtraction(ctx, logger, meta, extracted)
	}
	return extracted
}

// InjectMeta returns a fresh _meta map holding the trace context of ctx,
// suitable for embedding in outbound tools/call params. The map is empty when
// ctx carries no valid span context.
func InjectMeta(ctx context.Context) map[string]any {
	meta := make(map[string]any)
	otel.GetTextMapPropagator().Inject(ctx, NewCarrier(meta))
	return meta
}

// logExtraction emits a debug line describing what extraction decided.
// Diagnostics must never break the traced call, so rendering failures are
// swallowed here.
func logExtraction(ctx context.Context, logger *slog.Logger, meta any, extracted context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Debug("meta extraction diagnostics failed", "panic", r)
		}
	}()
	carrier := NewCarrier(meta)
	sc := trace.SpanContextFromContext(extracted)
	logger.Debug("extracted context from meta",
		"keys", carrier.Keys(),
		"traceparent", carrier.Get("traceparent"),
		"valid", sc.IsValid(),
		"remote", sc.IsRemote(),
		"trace_id", sc.TraceID().String(),
		"span_id", sc.SpanID().String(),
	)
}
