package mcptrace

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// MethodToolsCall is the MCP method identifier for tool invocations. Requests
// with any other method bypass span creation entirely.
const MethodToolsCall = "tools/call"

const tracerName = "github.com/longregen/mcptrace"

// EnvDebug enables verbose extraction diagnostics on stderr when set.
const EnvDebug = "MCPTRACE_DEBUG"

// Message is the tool call payload of an invocation.
type Message struct {
	Name      string
	Arguments map[string]any
}

// RequestContext holds per-request metadata supplied by the host framework.
// Meta is the raw _meta carrier from the client; see Carrier for the shapes
// it may take.
type RequestContext struct {
	Meta any
}

// CallContext is the structural view of a host framework invocation that the
// middleware requires. It deliberately carries only the fields the middleware
// reads, so any MCP server implementation can construct one.
type CallContext struct {
	Method         string
	Source         string
	Message        Message
	RequestContext *RequestContext
}

// Handler continues an invocation downstream.
type Handler func(ctx context.Context, call *CallContext) (any, error)

// ToolMiddleware intercepts tool invocations. Implementations receive the
// invocation and a next handler and must propagate next's error unchanged.
type ToolMiddleware interface {
	OnCallTool(ctx context.Context, call *CallContext, next Handler) (any, error)
}

// Middleware wraps tool invocations in OpenTelemetry server spans parented to
// the trace context extracted from the request's _meta carrier. The zero
// options produce spans named after the tool, kind server, with success and
// error recording enabled and argument capture disabled.
type Middleware struct {
	tracer             trace.Tracer
	provider           trace.TracerProvider
	propagator         propagation.TextMapPropagator
	carrierFor         CarrierFactory
	spanNamePrefix     string
	spanKind           trace.SpanKind
	recordSuccess      bool
	recordErrors       bool
	includeArguments   bool
	langfuseAttributes bool
	logger             *slog.Logger
}

// Option configures a Middleware.
type Option func(*Middleware)

// WithTracer overrides the tracer used for tool spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Middleware) { m.tracer = tracer }
}

// WithTracerProvider sources the tracer from the given provider instead of
// the global one.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(m *Middleware) { m.provider = provider }
}

// WithPropagator overrides the propagator used for _meta extraction. The
// default is the global text map propagator.
func WithPropagator(propagator propagation.TextMapPropagator) Option {
	return func(m *Middleware) { m.propagator = propagator }
}

// WithCarrierFactory overrides how the raw _meta value is adapted into a
// propagation carrier. The default wraps it in a Carrier.
func WithCarrierFactory(factory CarrierFactory) Option {
	return func(m *Middleware) { m.carrierFor = factory }
}

// WithSpanNamePrefix prepends a fixed prefix to every tool span name,
// e.g. "tool." yields "tool.get_temperature".
func WithSpanNamePrefix(prefix string) Option {
	return func(m *Middleware) { m.spanNamePrefix = prefix }
}

// WithSpanKind overrides the span kind, which defaults to server.
func WithSpanKind(kind trace.SpanKind) Option {
	return func(m *Middleware) { m.spanKind = kind }
}

// WithRecordSuccess controls whether fastmcp.tool.success=true is set when
// the handler returns without error. Enabled by default.
func WithRecordSuccess(enabled bool) Option {
	return func(m *Middleware) { m.recordSuccess = enabled }
}

// WithRecordErrors controls whether handler errors are recorded on the span
// with an error status. Enabled by default. The error itself is always
// returned unchanged either way.
func WithRecordErrors(enabled bool) Option {
	return func(m *Middleware) { m.recordErrors = enabled }
}

// WithIncludeArguments records a JSON rendering of the call arguments on the
// span. Disabled by default since arguments may carry payload data.
func WithIncludeArguments(enabled bool) Option {
	return func(m *Middleware) { m.includeArguments = enabled }
}

// WithLangfuseAttributes mirrors span attributes under the
// langfuse.observation.* namespace in addition to the standard keys.
func WithLangfuseAttributes(enabled bool) Option {
	return func(m *Middleware) { m.langfuseAttributes = enabled }
}

// WithLogger sets the logger used for extraction diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) { m.logger = logger }
}

// New builds a tracing middleware. Setting MCPTRACE_DEBUG in the environment
// switches the default logger to a debug-level stderr logger that reports
// extraction decisions.
func New(opts ...Option) *Middleware {
	m := &Middleware{
		spanKind:      trace.SpanKindServer,
		recordSuccess: true,
		recordErrors:  true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		if os.Getenv(EnvDebug) != "" {
			m.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		} else {
			m.logger = slog.Default()
		}
	}
	return m
}

// OnCallTool traces a single tool invocation. Non-tool methods are forwarded
// untouched. For tool calls the parent context is pinned to the _meta
// extraction result at span-open time; re-reading the ambient context later
// would pick up contexts attached by nested layers and mislink the span.
func (m *Middleware) OnCallTool(ctx context.Context, call *CallContext, next Handler) (any, error) {
	if call == nil || call.Method != MethodToolsCall {
		return next(ctx, call)
	}

	var meta any
	if call.RequestContext != nil {
		meta = call.RequestContext.Meta
	}
	parentCtx := extractContext(ctx, meta, m.propagator, m.carrierFor, m.logger)

	spanCtx, span := m.toolTracer().Start(parentCtx, m.spanName(call), trace.WithSpanKind(m.spanKind))
	defer span.End()

	set := m.setterFor(span)
	set(ToolName(call.Message.Name))
	set(MCPMethod(call.Method))
	if call.Source != "" {
		set(MCPSource(call.Source))
	}
	if m.langfuseAttributes {
		span.SetAttributes(attribute.String(AttrObservationType, "tool"))
	}
	if m.includeArguments && call.Message.Arguments != nil {
		set(ToolArguments(renderArguments(call.Message.Arguments)))
	}

	result, err := next(spanCtx, call)
	if err != nil {
		if m.recordErrors {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			set(ToolSuccess(false))
		}
		return result, err
	}
	if m.recordSuccess {
		set(ToolSuccess(true))
	}
	return result, nil
}

func (m *Middleware) toolTracer() trace.Tracer {
	if m.tracer != nil {
		return m.tracer
	}
	provider := m.provider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return provider.Tracer(tracerName)
}

func (m *Middleware) spanName(call *CallContext) string {
	name := call.Message.Name
	if name == "" {
		name = "tool"
	}
	return m.spanNamePrefix + name
}

func (m *Middleware) setterFor(span trace.Span) attrSetter {
	base := func(kv attribute.KeyValue) { span.SetAttributes(kv) }
	if m.langfuseAttributes {
		return mirroredSetter(base)
	}
	return base
}

// renderArguments serializes call arguments for the span attribute. A
// serialization failure degrades to a %v rendering; it must never break the
// traced call.
func renderArguments(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(data)
}
