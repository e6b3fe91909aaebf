package connection

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxcopilot/internal/agent"
	"github.com/teemow/inboxcopilot/internal/session"
	"github.com/teemow/inboxcopilot/internal/status"
)

type call struct {
	message   string
	agentID   string
	sessionID string
}

func newTestMonitor(t *testing.T, result *agent.Result, err error) (*Monitor, *status.Hub, *[]call) {
	t.Helper()
	var calls []call
	inv := agent.InvokerFunc(func(_ context.Context, message, agentID, sessionID string) (*agent.Result, error) {
		calls = append(calls, call{message, agentID, sessionID})
		return result, err
	})
	hub := status.NewHub(status.WithTTL(0))
	t.Cleanup(hub.Close)

	n := 0
	sessions := session.NewManagerWithGenerator(func() string {
		n++
		return "s" + string(rune('0'+n))
	})
	m := NewMonitor(Config{Invoker: inv, Sessions: sessions, Status: hub, AgentID: "copilot"})
	return m, hub, &calls
}

func structured(v string) *agent.Result {
	raw, _ := json.Marshal(v)
	return &agent.Result{Success: true, Response: &agent.Response{Result: raw}}
}

func TestMonitor_InitialState(t *testing.T) {
	m, _, _ := newTestMonitor(t, nil, nil)
	assert.Equal(t, StateUnknown, m.State())
	assert.False(t, m.Snapshot().Connecting)
}

func TestMonitor_ConnectUsesFreshSession(t *testing.T) {
	m, _, calls := newTestMonitor(t, structured(`{"message":"Latest email: hello"}`), nil)
	current := m.sessions.Current()

	_, err := m.Connect(context.Background())
	require.NoError(t, err)

	require.Len(t, *calls, 1)
	assert.Equal(t, VerifyInstruction, (*calls)[0].message)
	assert.Equal(t, "copilot", (*calls)[0].agentID)
	assert.NotEqual(t, current, (*calls)[0].sessionID)
	assert.Equal(t, current, m.sessions.Current(), "Mint must not replace the conversation session")
}

func TestMonitor_Connect(t *testing.T) {
	tests := []struct {
		name       string
		result     *agent.Result
		wantState  State
		wantError  string
		wantURL    string
		wantNotice status.Kind
		wantText   string
	}{
		{
			name:       "structured payload means connected",
			result:     structured(`{"message":"Your latest email is from Bob"}`),
			wantState:  StateConnected,
			wantNotice: status.KindSuccess,
			wantText:   "Your latest email is from Bob",
		},
		{
			name:       "success without payload message uses default notice",
			result:     structured(`{"emails":[]}`),
			wantState:  StateConnected,
			wantNotice: status.KindSuccess,
			wantText:   msgConnected,
		},
		{
			name:       "auth url in payload wins over structure",
			result:     structured(`{"message":"Please visit https://composio.dev/connect/xyz to continue"}`),
			wantState:  StateUnknown,
			wantURL:    "https://composio.dev/connect/xyz",
			wantNotice: status.KindInfo,
			wantText:   msgAuthWindow,
		},
		{
			name:       "message asking for authorization",
			result:     structured(`I need you to authorize access to your mailbox first.`),
			wantState:  StateUnknown,
			wantError:  diagnosticPrefix + "I need you to authorize access to your mailbox first.",
			wantNotice: status.KindInfo,
			wantText:   msgNeedsAuthorization,
		},
		{
			name: "success with only an envelope message",
			result: &agent.Result{
				Success:  true,
				Response: &agent.Response{Message: "Gmail is not connected"},
			},
			wantState:  StateUnknown,
			wantError:  diagnosticPrefix + diagnosticFallback,
			wantNotice: status.KindInfo,
			wantText:   msgNeedsAuthorization,
		},
		{
			name: "auth url in raw response of a failure",
			result: &agent.Result{
				Success:     false,
				Error:       "tool call failed",
				RawResponse: `redirect to https://accounts.google.com/o/oauth2/auth?client_id=1`,
			},
			wantState:  StateUnknown,
			wantURL:    "https://accounts.google.com/o/oauth2/auth?client_id=1",
			wantNotice: status.KindInfo,
			wantText:   msgAuthWindow,
		},
		{
			name:       "failure mentioning permissions",
			result:     &agent.Result{Success: false, Error: "missing permission for gmail"},
			wantState:  StateUnknown,
			wantError:  msgAuthRequired,
			wantNotice: status.KindError,
			wantText:   "missing permission for gmail",
		},
		{
			name:       "plain failure",
			result:     &agent.Result{Success: false, Error: "quota exceeded"},
			wantState:  StateError,
			wantError:  "quota exceeded",
			wantNotice: status.KindError,
			wantText:   "quota exceeded",
		},
		{
			name:       "failure without any text",
			result:     &agent.Result{Success: false},
			wantState:  StateError,
			wantError:  msgConnectFailed,
			wantNotice: status.KindError,
			wantText:   msgIssueDetected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, hub, _ := newTestMonitor(t, tt.result, nil)

			out, err := m.Connect(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.wantState, out.State)
			assert.Equal(t, tt.wantError, out.Error)
			assert.Equal(t, tt.wantURL, out.AuthURL)

			snap := m.Snapshot()
			assert.Equal(t, tt.wantState, snap.State)
			assert.Equal(t, tt.wantError, snap.Error)
			assert.False(t, snap.Connecting)

			n, ok := hub.Notice()
			require.True(t, ok)
			assert.Equal(t, tt.wantNotice, n.Kind)
			assert.Equal(t, tt.wantText, n.Text)
			assert.Empty(t, hub.ActiveAgent())
		})
	}
}

func TestMonitor_ConnectTransportError(t *testing.T) {
	m, hub, _ := newTestMonitor(t, nil, errors.New("dial tcp: connection refused"))

	out, err := m.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, out.State)
	assert.Equal(t, StateError, m.State())
	assert.Equal(t, "dial tcp: connection refused", m.Snapshot().Error)

	n, ok := hub.Notice()
	require.True(t, ok)
	assert.Equal(t, status.KindError, n.Kind)
}

func TestMonitor_ConnectEmptyResult(t *testing.T) {
	m, hub, calls := newTestMonitor(t, nil, nil)

	out, err := m.Connect(context.Background())
	require.NoError(t, err)
	require.Len(t, *calls, 1)
	assert.Equal(t, StateError, out.State)
	assert.Equal(t, msgConnectFailed, out.Error)
	assert.Equal(t, StateError, m.State())
	assert.False(t, m.Snapshot().Connecting)

	n, ok := hub.Notice()
	require.True(t, ok)
	assert.Equal(t, status.KindError, n.Kind)
	assert.Equal(t, msgIssueDetected, n.Text)
}

func TestMonitor_Observe(t *testing.T) {
	m, _, _ := newTestMonitor(t, nil, nil)

	m.ObserveSuccess(context.Background())
	assert.Equal(t, StateConnected, m.State())

	m.ObserveAuthRequired(context.Background())
	assert.Equal(t, StateUnknown, m.State())
	assert.Empty(t, m.Snapshot().Error)
}
