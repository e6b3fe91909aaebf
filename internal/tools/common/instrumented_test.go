package common

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/teemow/inboxcopilot/internal/config"
	"github.com/teemow/inboxcopilot/internal/instrumentation"
	"github.com/teemow/inboxcopilot/internal/server"
)

func testConfig() *config.Config {
	return &config.Config{
		AgentBaseURL:     "https://agents.example.com",
		AgentAPIKey:      "key",
		SchedulerBaseURL: "https://agents.example.com",
		SchedulerAPIKey:  "key",
		CopilotAgentID:   "copilot-agent",
		FollowUpAgentID:  "followup-agent",
		ScheduleID:       "sched-1",
		Settings:         config.DefaultSettings(),
		NoticeTTL:        time.Minute,
	}
}

func newServerContext(t *testing.T, opts server.Options) *server.ServerContext {
	t.Helper()
	opts.Config = testConfig()
	sc, err := server.NewServerContext(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func requestWith(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func toolInvocations(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "mcp_tool_invocations_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				status, _ := dp.Attributes.Value("status")
				out[status.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestInstrumentedToolHandler_WithoutInstrumentation(t *testing.T) {
	sc := newServerContext(t, server.Options{})

	called := false
	wrapped := InstrumentedToolHandler("test_tool", sc, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("success"), nil
	})

	result, err := wrapped(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "success", ResultText(result))
}

func TestInstrumentedToolHandler_RecordsOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := instrumentation.NewMetrics(mp.Meter("test"), false)
	require.NoError(t, err)

	var logs bytes.Buffer
	audit := instrumentation.NewAuditLogger(slog.New(slog.NewJSONHandler(&logs, nil)))

	sc := newServerContext(t, server.Options{Metrics: metrics, Audit: audit})

	tests := []struct {
		name    string
		handler ToolHandler
		wantErr bool
	}{
		{
			name: "success",
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText("ok"), nil
			},
		},
		{
			name: "error result",
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultError("no draft yet"), nil
			},
		},
		{
			name: "handler error",
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return nil, errors.New("boom")
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := InstrumentedToolHandler("copilot_chat", sc, tt.handler)
			_, err := wrapped(context.Background(), requestWith(map[string]any{ArgThreadID: "t1"}))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Equal(t, map[string]int64{"success": 1, "error": 2}, toolInvocations(t, reader))
	assert.Contains(t, logs.String(), `"tool":"copilot_chat"`)
	assert.Contains(t, logs.String(), `"thread":"t1"`)
	assert.Contains(t, logs.String(), "tool_failed")
}
