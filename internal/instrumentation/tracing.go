package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for the inboxcopilot package.
const TracerName = "github.com/teemow/inboxcopilot"

// Span attribute keys for operations.
const (
	// SpanAttrTool is the MCP tool name attribute.
	SpanAttrTool = "mcp.tool"

	// SpanAttrAgent is the remote agent identifier attribute.
	SpanAttrAgent = "agent.id"

	// SpanAttrSession is the agent session identifier attribute.
	SpanAttrSession = "agent.session"

	// SpanAttrFlow is the flow that issued the agent call (draft, chat, scan, ...).
	SpanAttrFlow = "agent.flow"

	// SpanAttrSchedule is the scheduler job identifier attribute.
	SpanAttrSchedule = "scheduler.schedule_id"

	// SpanAttrOperation is the scheduler operation attribute.
	SpanAttrOperation = "scheduler.operation"

	// SpanAttrThread is the mail thread identifier attribute.
	SpanAttrThread = "mail.thread_id"

	// SpanAttrAuthPrompt is set when an agent reply asked for Gmail
	// authorization.
	SpanAttrAuthPrompt = "agent.auth_prompt"
)

// EventAuthPrompt is the span event recorded with SpanAttrAuthPrompt.
const EventAuthPrompt = "auth_prompt"

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(TracerName)
}

// SpanAttributeBuilder helps construct OpenTelemetry span attributes
// with consistent naming.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 8),
	}
}

// WithTool adds the MCP tool name attribute.
func (b *SpanAttributeBuilder) WithTool(tool string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrTool, tool))
	return b
}

// WithFlow adds the flow attribute.
func (b *SpanAttributeBuilder) WithFlow(flow string) *SpanAttributeBuilder {
	if flow != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrFlow, flow))
	}
	return b
}

// WithThread adds the mail thread attribute.
func (b *SpanAttributeBuilder) WithThread(threadID string) *SpanAttributeBuilder {
	if threadID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrThread, threadID))
	}
	return b
}

// WithAgent adds the agent and session attributes.
func (b *SpanAttributeBuilder) WithAgent(agentID, sessionID string) *SpanAttributeBuilder {
	if agentID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrAgent, agentID))
	}
	if sessionID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrSession, sessionID))
	}
	return b
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts an internal span. The caller ends it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartToolSpan starts a span for an MCP tool invocation.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer().Start(ctx, "tool."+toolName,
		trace.WithAttributes(attribute.String(SpanAttrTool, toolName)),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartAgentSpan starts a client span for a remote agent invocation.
func StartAgentSpan(ctx context.Context, agentID, sessionID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer().Start(ctx, "agent.invoke",
		trace.WithAttributes(NewSpanAttributeBuilder().WithAgent(agentID, sessionID).Build()...),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartSchedulerSpan starts a client span for a scheduler service operation.
func StartSchedulerSpan(ctx context.Context, operation, scheduleID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "scheduler."+operation,
		trace.WithAttributes(
			attribute.String(SpanAttrOperation, operation),
			attribute.String(SpanAttrSchedule, scheduleID),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// MarkAuthPrompt flags the span in ctx as having ended in an authorization
// request from flow.
func MarkAuthPrompt(ctx context.Context, flow string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(attribute.Bool(SpanAttrAuthPrompt, true))
	span.AddEvent(EventAuthPrompt, trace.WithAttributes(attribute.String(SpanAttrFlow, flow)))
}
