package mcpserver

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/longregen/mcptrace/pkg/mcptrace"
)

// MetricsMiddleware counts tool invocations and observes their duration. Like
// the tracing middleware it ignores non-tool methods, so the two can be
// chained in either order.
type MetricsMiddleware struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetricsMiddleware registers the tool call metrics on reg.
func NewMetricsMiddleware(reg prometheus.Registerer) *MetricsMiddleware {
	factory := promauto.With(reg)
	return &MetricsMiddleware{
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_tool_calls_total",
			Help: "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcp_tool_call_duration_seconds",
			Help:    "Tool invocation duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
	}
}

func (m *MetricsMiddleware) OnCallTool(ctx context.Context, call *mcptrace.CallContext, next mcptrace.Handler) (any, error) {
	if call == nil || call.Method != mcptrace.MethodToolsCall {
		return next(ctx, call)
	}

	start := time.Now()
	result, err := next(ctx, call)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(call.Message.Name, outcome).Inc()
	m.duration.WithLabelValues(call.Message.Name).Observe(time.Since(start).Seconds())

	return result, err
}
