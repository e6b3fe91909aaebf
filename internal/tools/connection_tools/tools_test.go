package connection_tools

import (
	"errors"
	"testing"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxcopilot/internal/agent"
	"github.com/teemow/inboxcopilot/internal/connection"
	"github.com/teemow/inboxcopilot/internal/tools/tooltest"
)

func setup(t *testing.T) (*tooltest.Env, *mcpserver.MCPServer) {
	t.Helper()
	env := tooltest.NewEnv(t)
	s := tooltest.NewMCPServer()
	require.NoError(t, RegisterConnectionTools(s, env.SC))
	return env, s
}

func TestRegisterConnectionTools(t *testing.T) {
	_, s := setup(t)
	assert.ElementsMatch(t, []string{"gmail_connect", "gmail_connection_status", "status_get"}, tooltest.ToolNames(s))
}

func TestConnect(t *testing.T) {
	tests := []struct {
		name    string
		result  *agent.Result
		want    connection.State
		authURL string
	}{
		{
			name:   "connected",
			result: tooltest.Structured(t, map[string]any{"message": "Latest email: Welcome"}),
			want:   connection.StateConnected,
		},
		{
			name: "authorization link",
			result: &agent.Result{Success: true, Response: &agent.Response{
				Message: "Authorize here: https://backend.composio.dev/api/v3/s/abc123",
			}},
			want:    connection.StateUnknown,
			authURL: "https://backend.composio.dev/api/v3/s/abc123",
		},
		{
			name:   "agent failure",
			result: &agent.Result{Success: false, Error: "tool execution failed"},
			want:   connection.StateError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, s := setup(t)
			env.Agent.Queue(tt.result)

			var out connection.Outcome
			tooltest.Decode(t, tooltest.Call(t, s, "gmail_connect", nil), &out)

			assert.Equal(t, tt.want, out.State)
			assert.Equal(t, tt.authURL, out.AuthURL)
			assert.Equal(t, connection.VerifyInstruction, env.Agent.LastMessage())
			assert.Equal(t, tt.want, env.SC.Connection().State())
		})
	}
}

func TestConnect_TransportError(t *testing.T) {
	env, s := setup(t)
	env.Agent.Err = errors.New("dial tcp: connection refused")

	result := tooltest.Call(t, s, "gmail_connect", nil)
	assert.True(t, result.IsError)
	assert.Contains(t, tooltest.Text(result), "connection refused")

	var snap connection.Snapshot
	tooltest.Decode(t, tooltest.Call(t, s, "gmail_connection_status", nil), &snap)
	assert.Equal(t, connection.StateError, snap.State)
	assert.Contains(t, snap.Error, "connection refused")
	assert.False(t, snap.Connecting)
}

func TestStatusGet(t *testing.T) {
	env, s := setup(t)
	env.SC.Status().Info("Scanning inbox...")
	env.SC.Status().SetActiveAgent("followup-agent")

	var view struct {
		Notice *struct {
			Kind string `json:"kind"`
			Text string `json:"text"`
		} `json:"notice"`
		ActiveAgent string `json:"active_agent"`
		Gmail       string `json:"gmail"`
	}
	tooltest.Decode(t, tooltest.Call(t, s, "status_get", nil), &view)

	require.NotNil(t, view.Notice)
	assert.Equal(t, "info", view.Notice.Kind)
	assert.Equal(t, "Scanning inbox...", view.Notice.Text)
	assert.Equal(t, "followup-agent", view.ActiveAgent)
	assert.Equal(t, "unknown", view.Gmail)
}
