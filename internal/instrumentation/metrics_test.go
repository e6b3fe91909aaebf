package instrumentation

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newManualMetrics returns a Metrics backed by a manual reader so tests can
// collect what was recorded.
func newManualMetrics(t *testing.T, detailedLabels bool) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"), detailedLabels)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is %T, not an int64 sum", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	ctx, provider := newTestProvider(t)

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil")
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/healthz", 200, 100*time.Millisecond)
	metrics.RecordHTTPRequest(ctx, "POST", "/mcp", 500, 50*time.Millisecond)
}

func TestMetrics_RecordAgentInvocation(t *testing.T) {
	ctx := context.Background()
	metrics, reader := newManualMetrics(t, false)

	metrics.RecordAgentInvocation(ctx, "copilot", "session_1_a", ResultSuccess, 2*time.Second)
	metrics.RecordAgentInvocation(ctx, "copilot", "session_1_a", ResultFailure, time.Second)
	metrics.RecordAgentInvocation(ctx, "followup", "session_2_b", ResultError, time.Second)

	got := collect(t, reader)
	m, ok := got["agent_invocations_total"]
	if !ok {
		t.Fatal("agent_invocations_total was not recorded")
	}
	if total := sumValue(t, m); total != 3 {
		t.Errorf("agent_invocations_total = %d, want 3", total)
	}

	sum := m.Data.(metricdata.Sum[int64])
	for _, dp := range sum.DataPoints {
		if _, ok := dp.Attributes.Value(attrSession); ok {
			t.Error("session label must not be recorded without detailed labels")
		}
	}

	if _, ok := got["agent_invocation_duration_seconds"]; !ok {
		t.Error("agent_invocation_duration_seconds was not recorded")
	}
}

func TestMetrics_RecordAgentInvocation_DetailedLabels(t *testing.T) {
	ctx := context.Background()
	metrics, reader := newManualMetrics(t, true)

	metrics.RecordAgentInvocation(ctx, "copilot", "session_1_a", ResultSuccess, time.Second)

	sum := collect(t, reader)["agent_invocations_total"].Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 {
		t.Fatalf("expected 1 data point, got %d", len(sum.DataPoints))
	}
	if v, ok := sum.DataPoints[0].Attributes.Value(attrSession); !ok || v.AsString() != "session_1_a" {
		t.Errorf("session label = %v (present %v), want session_1_a", v.AsString(), ok)
	}
}

func TestMetrics_AgentInFlight(t *testing.T) {
	ctx := context.Background()
	metrics, reader := newManualMetrics(t, false)

	metrics.AgentInvocationStarted(ctx, "copilot")
	metrics.AgentInvocationStarted(ctx, "copilot")
	metrics.AgentInvocationFinished(ctx, "copilot")

	m, ok := collect(t, reader)["agent_invocations_in_flight"]
	if !ok {
		t.Fatal("agent_invocations_in_flight was not recorded")
	}
	if total := sumValue(t, m); total != 1 {
		t.Errorf("agent_invocations_in_flight = %d, want 1", total)
	}
}

func TestMetrics_RecordSchedulerOperation(t *testing.T) {
	ctx := context.Background()
	metrics, reader := newManualMetrics(t, false)

	metrics.RecordSchedulerOperation(ctx, OperationGet, StatusSuccess, 20*time.Millisecond)
	metrics.RecordSchedulerOperation(ctx, OperationPause, StatusError, 20*time.Millisecond)

	m, ok := collect(t, reader)["scheduler_operations_total"]
	if !ok {
		t.Fatal("scheduler_operations_total was not recorded")
	}
	if total := sumValue(t, m); total != 2 {
		t.Errorf("scheduler_operations_total = %d, want 2", total)
	}
}

func TestMetrics_FlowMetrics(t *testing.T) {
	ctx := context.Background()
	metrics, reader := newManualMetrics(t, false)

	metrics.RecordFollowUpScan(ctx, 4)
	metrics.RecordConnectionTransition(ctx, "unknown", "connecting")
	metrics.RecordConnectionTransition(ctx, "connecting", "connected")
	metrics.RecordAuthPrompt(ctx, FlowConnect)

	got := collect(t, reader)
	if _, ok := got["followup_scan_items"]; !ok {
		t.Error("followup_scan_items was not recorded")
	}
	if total := sumValue(t, got["connection_state_transitions_total"]); total != 2 {
		t.Errorf("connection_state_transitions_total = %d, want 2", total)
	}
	if total := sumValue(t, got["auth_prompts_total"]); total != 1 {
		t.Errorf("auth_prompts_total = %d, want 1", total)
	}
}

func TestMetrics_RecordToolInvocation(t *testing.T) {
	ctx := context.Background()
	metrics, reader := newManualMetrics(t, false)

	metrics.RecordToolInvocation(ctx, "copilot_chat", StatusSuccess, 100*time.Millisecond)
	metrics.RecordToolInvocation(ctx, "followup_scan", StatusError, 50*time.Millisecond)

	if total := sumValue(t, collect(t, reader)["mcp_tool_invocations_total"]); total != 2 {
		t.Errorf("mcp_tool_invocations_total = %d, want 2", total)
	}
}

func TestMetrics_NoOp_WhenDisabled(t *testing.T) {
	ctx := context.Background()

	provider, err := NewProvider(ctx, Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Enabled:        false,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil even when disabled")
	}

	// All these should not panic even with nil underlying metrics
	metrics.RecordHTTPRequest(ctx, "GET", "/mcp", 200, 100*time.Millisecond)
	metrics.RecordAgentInvocation(ctx, "copilot", "s", ResultSuccess, time.Second)
	metrics.AgentInvocationStarted(ctx, "copilot")
	metrics.AgentInvocationFinished(ctx, "copilot")
	metrics.RecordSchedulerOperation(ctx, OperationGet, StatusSuccess, time.Second)
	metrics.RecordFollowUpScan(ctx, 3)
	metrics.RecordConnectionTransition(ctx, "unknown", "connected")
	metrics.RecordAuthPrompt(ctx, FlowScan)
	metrics.RecordToolInvocation(ctx, "test_tool", StatusSuccess, 100*time.Millisecond)
}

func TestMetrics_NilReceiver(t *testing.T) {
	var metrics *Metrics
	ctx := context.Background()

	// Should not panic
	metrics.RecordAgentInvocation(ctx, "copilot", "s", ResultError, time.Second)
	metrics.RecordToolInvocation(ctx, "test_tool", StatusSuccess, time.Second)
	metrics.RecordConnectionTransition(ctx, "connecting", "error")
}
