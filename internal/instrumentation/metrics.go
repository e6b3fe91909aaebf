package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrAgent     = "agent"
	attrSession   = "session"
	attrResult    = "result"
	attrTool      = "tool"
	attrFrom      = "from"
	attrTo        = "to"
	attrFlow      = "flow"
)

// Metrics provides methods for recording observability metrics.
//
// A zero Metrics (or a nil *Metrics) is a valid no-op recorder, which is what
// the provider hands out when instrumentation is disabled.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Agent metrics
	agentInvocationsTotal   metric.Int64Counter
	agentInvocationDuration metric.Float64Histogram

	// Scheduler metrics
	schedulerOperationsTotal   metric.Int64Counter
	schedulerOperationDuration metric.Float64Histogram

	// Flow metrics
	followUpScanItems          metric.Int64Histogram
	connectionTransitionsTotal metric.Int64Counter
	authPromptsTotal           metric.Int64Counter
	agentInFlight              metric.Int64UpDownCounter

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels
// (session identifiers) are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.agentInvocationsTotal, err = meter.Int64Counter(
		"agent_invocations_total",
		metric.WithDescription("Total number of remote agent invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_invocations_total counter: %w", err)
	}

	// Agents routinely take tens of seconds to answer.
	m.agentInvocationDuration, err = meter.Float64Histogram(
		"agent_invocation_duration_seconds",
		metric.WithDescription("Remote agent invocation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 20.0, 30.0, 60.0, 120.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_invocation_duration_seconds histogram: %w", err)
	}

	m.schedulerOperationsTotal, err = meter.Int64Counter(
		"scheduler_operations_total",
		metric.WithDescription("Total number of scheduler service operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler_operations_total counter: %w", err)
	}

	m.schedulerOperationDuration, err = meter.Float64Histogram(
		"scheduler_operation_duration_seconds",
		metric.WithDescription("Scheduler service operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler_operation_duration_seconds histogram: %w", err)
	}

	m.followUpScanItems, err = meter.Int64Histogram(
		"followup_scan_items",
		metric.WithDescription("Number of follow-up items returned by a scan"),
		metric.WithUnit("{item}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 20, 50, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create followup_scan_items histogram: %w", err)
	}

	m.connectionTransitionsTotal, err = meter.Int64Counter(
		"connection_state_transitions_total",
		metric.WithDescription("Total number of mail connection state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection_state_transitions_total counter: %w", err)
	}

	m.authPromptsTotal, err = meter.Int64Counter(
		"auth_prompts_total",
		metric.WithDescription("Total number of authorization prompts detected in agent output"),
		metric.WithUnit("{prompt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth_prompts_total counter: %w", err)
	}

	m.agentInFlight, err = meter.Int64UpDownCounter(
		"agent_invocations_in_flight",
		metric.WithDescription("Number of agent invocations currently in flight"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_invocations_in_flight gauge: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordAgentInvocation records one remote agent call.
//
// Parameters:
//   - agentID: the configured agent identity (copilot or follow-up agent)
//   - sessionID: only recorded when detailed labels are enabled
//   - result: ResultSuccess, ResultFailure (envelope success=false) or ResultError (transport)
//   - duration: time until the envelope was decoded
func (m *Metrics) RecordAgentInvocation(ctx context.Context, agentID, sessionID, result string, duration time.Duration) {
	if m == nil || m.agentInvocationsTotal == nil || m.agentInvocationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrAgent, agentID),
		attribute.String(attrResult, result),
	}
	if m.detailedLabels && sessionID != "" {
		attrs = append(attrs, attribute.String(attrSession, sessionID))
	}

	m.agentInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.agentInvocationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// AgentInvocationStarted increments the in-flight agent invocation gauge.
func (m *Metrics) AgentInvocationStarted(ctx context.Context, agentID string) {
	if m == nil || m.agentInFlight == nil {
		return
	}
	m.agentInFlight.Add(ctx, 1, metric.WithAttributes(attribute.String(attrAgent, agentID)))
}

// AgentInvocationFinished decrements the in-flight agent invocation gauge.
func (m *Metrics) AgentInvocationFinished(ctx context.Context, agentID string) {
	if m == nil || m.agentInFlight == nil {
		return
	}
	m.agentInFlight.Add(ctx, -1, metric.WithAttributes(attribute.String(attrAgent, agentID)))
}

// RecordSchedulerOperation records a scheduler service call
// (get, logs, pause, resume, trigger).
func (m *Metrics) RecordSchedulerOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil || m.schedulerOperationsTotal == nil || m.schedulerOperationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.schedulerOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.schedulerOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordFollowUpScan records the number of items a completed scan returned.
func (m *Metrics) RecordFollowUpScan(ctx context.Context, items int) {
	if m == nil || m.followUpScanItems == nil {
		return
	}
	m.followUpScanItems.Record(ctx, int64(items))
}

// RecordConnectionTransition records a mail connection state change.
func (m *Metrics) RecordConnectionTransition(ctx context.Context, from, to string) {
	if m == nil || m.connectionTransitionsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrFrom, from),
		attribute.String(attrTo, to),
	}

	m.connectionTransitionsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAuthPrompt records an authorization URL or authorization wording
// detected during the given flow (connect, scan, inbox).
func (m *Metrics) RecordAuthPrompt(ctx context.Context, flow string) {
	if m == nil || m.authPromptsTotal == nil {
		return
	}
	m.authPromptsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrFlow, flow)))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
//
// Parameters:
//   - toolName: Name of the MCP tool (e.g., "copilot_chat", "followup_scan")
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the tool execution
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
