// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for inboxcopilot.
//
// # Metrics
//
// HTTP:
//   - http_requests_total, http_request_duration_seconds
//
// Remote agents:
//   - agent_invocations_total: by agent and result (success, failure, error)
//   - agent_invocation_duration_seconds
//   - agent_invocations_in_flight
//
// Scheduler service:
//   - scheduler_operations_total, scheduler_operation_duration_seconds
//
// Flows:
//   - followup_scan_items: items returned per scan
//   - connection_state_transitions_total: by from/to state
//   - auth_prompts_total: authorization prompts detected, by flow
//
// MCP tools:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds
//
// # Tracing
//
// Spans are created for MCP tool calls (tool.<name>), agent invocations
// (agent.invoke) and scheduler calls (scheduler.<operation>).
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT
//   - OTEL_TRACES_SAMPLER_ARG (default: 0.1)
//   - OTEL_SERVICE_NAME (default: inboxcopilot)
//   - METRICS_DETAILED_LABELS: add session ids to agent metrics
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	metrics := provider.Metrics()
//	metrics.RecordAgentInvocation(ctx, agentID, sessionID, instrumentation.ResultSuccess, time.Since(start))
package instrumentation
