package mcptrace

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys recorded on tool invocation spans.
const (
	AttrToolName      = "fastmcp.tool.name"
	AttrToolSuccess   = "fastmcp.tool.success"
	AttrToolArguments = "fastmcp.tool.arguments"
	AttrMCPMethod     = "mcp.method"
	AttrMCPSource     = "mcp.source"

	// Langfuse reads these as queryable top-level metadata; the standard
	// attributes above only surface as opaque span attributes there.
	AttrObservationType  = "langfuse.observation.type"
	AttrLangfuseToolName = "langfuse.observation.metadata.tool_name"
	AttrLangfuseMethod   = "langfuse.observation.metadata.mcp_method"
	AttrLangfuseSource   = "langfuse.observation.metadata.mcp_source"
	AttrLangfuseArgs     = "langfuse.observation.metadata.arguments"
)

func ToolName(name string) attribute.KeyValue    { return attribute.String(AttrToolName, name) }
func ToolSuccess(ok bool) attribute.KeyValue     { return attribute.Bool(AttrToolSuccess, ok) }
func ToolArguments(s string) attribute.KeyValue  { return attribute.String(AttrToolArguments, s) }
func MCPMethod(method string) attribute.KeyValue { return attribute.String(AttrMCPMethod, method) }
func MCPSource(source string) attribute.KeyValue { return attribute.String(AttrMCPSource, source) }

// langfuseMirror maps standard attribute keys to their Langfuse-compatible
// duplicates. The mirror is additive: the standard key is always set.
var langfuseMirror = map[attribute.Key]attribute.Key{
	AttrToolName:      AttrLangfuseToolName,
	AttrMCPMethod:     AttrLangfuseMethod,
	AttrMCPSource:     AttrLangfuseSource,
	AttrToolArguments: AttrLangfuseArgs,
}

// attrSetter records one attribute on a span.
type attrSetter func(attribute.KeyValue)

// mirroredSetter wraps a setter so every mirrored key is also written under
// its Langfuse-compatible name. Boolean and unmapped attributes pass through
// untouched.
func mirroredSetter(base attrSetter) attrSetter {
	return func(kv attribute.KeyValue) {
		base(kv)
		if mirror, ok := langfuseMirror[kv.Key]; ok {
			base(attribute.KeyValue{Key: mirror, Value: kv.Value})
		}
	}
}
