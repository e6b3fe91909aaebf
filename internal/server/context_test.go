package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxcopilot/internal/agent"
	"github.com/teemow/inboxcopilot/internal/clipboard"
	"github.com/teemow/inboxcopilot/internal/config"
	"github.com/teemow/inboxcopilot/internal/connection"
	"github.com/teemow/inboxcopilot/internal/copilot"
	"github.com/teemow/inboxcopilot/internal/followup"
	"github.com/teemow/inboxcopilot/internal/scheduler"
)

type scriptedAgent struct {
	mu       sync.Mutex
	messages []string
	agents   []string
	results  []*agent.Result
}

func (a *scriptedAgent) Invoke(_ context.Context, message, agentID, _ string) (*agent.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, message)
	a.agents = append(a.agents, agentID)
	if len(a.results) == 0 {
		return &agent.Result{Success: true, Response: &agent.Response{Message: "ok"}}, nil
	}
	r := a.results[0]
	a.results = a.results[1:]
	return r, nil
}

func structured(t *testing.T, v any) *agent.Result {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return &agent.Result{Success: true, Response: &agent.Response{Result: raw}}
}

type stubScheduler struct {
	schedule scheduler.Schedule
}

func (s *stubScheduler) GetSchedule(context.Context, string) (*scheduler.Schedule, error) {
	sc := s.schedule
	return &sc, nil
}

func (s *stubScheduler) GetScheduleLogs(context.Context, string, int) ([]scheduler.ExecutionLog, error) {
	return []scheduler.ExecutionLog{}, nil
}

func (s *stubScheduler) PauseSchedule(context.Context, string) error {
	s.schedule.IsActive = false
	return nil
}

func (s *stubScheduler) ResumeSchedule(context.Context, string) error {
	s.schedule.IsActive = true
	return nil
}

func (s *stubScheduler) TriggerScheduleNow(context.Context, string) error { return nil }

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

func newTestContext(t *testing.T, a *scriptedAgent) *ServerContext {
	t.Helper()
	sc, err := NewServerContext(context.Background(), Options{
		Config:    testConfig(),
		Invoker:   a,
		Scheduler: &stubScheduler{schedule: scheduler.Schedule{ID: "sched-1", CronExpression: "0 9 * * 1-5", IsActive: true}},
		Clipboard: clipboard.CopierFunc(func(string) bool { return true }),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func TestNewServerContext_RequiresConfig(t *testing.T) {
	_, err := NewServerContext(context.Background(), Options{})
	assert.Error(t, err)
}

func TestNewServerContext_BuildsRemoteClients(t *testing.T) {
	sc, err := NewServerContext(context.Background(), Options{Config: testConfig()})
	require.NoError(t, err)
	defer func() { _ = sc.Shutdown() }()

	assert.NotNil(t, sc.Copilot())
	assert.NotNil(t, sc.FollowUp())
	assert.NotNil(t, sc.Schedule())
	assert.Equal(t, connection.StateUnknown, sc.Connection().State())
}

func TestNewServerContext_InvalidRemoteConfig(t *testing.T) {
	cfg := testConfig()
	cfg.AgentAPIKey = ""
	_, err := NewServerContext(context.Background(), Options{Config: cfg})
	assert.ErrorContains(t, err, "agent client")
}

func TestServerContext_SharedStatusAndConnection(t *testing.T) {
	a := &scriptedAgent{results: []*agent.Result{
		structured(t, map[string]any{"follow_up_items": []any{}, "message": "nothing to do"}),
	}}
	sc := newTestContext(t, a)

	_, err := sc.FollowUp().Scan(context.Background(), sc.ScanOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"followup-agent"}, a.agents)
	assert.Equal(t, connection.StateConnected, sc.Connection().State(), "a successful scan is connection evidence")

	n, ok := sc.Status().Notice()
	require.True(t, ok)
	assert.NotEmpty(t, n.Text)
}

func TestServerContext_Refine(t *testing.T) {
	a := &scriptedAgent{results: []*agent.Result{
		structured(t, map[string]any{
			"follow_up_items": []any{map[string]any{
				"email_subject": "Budget",
				"sender":        "cfo@example.com",
				"category":      "unanswered",
				"reason":        "No reply for 5 days",
				"last_activity": "2026-02-25",
				"thread_id":     "t1",
				"draft_content": "Any update on the budget?",
			}},
		}),
	}}
	sc := newTestContext(t, a)
	_, err := sc.FollowUp().Scan(context.Background(), sc.ScanOptions())
	require.NoError(t, err)
	before := sc.Sessions().Current()

	state, err := sc.Refine("t1")
	require.NoError(t, err)

	assert.True(t, state.Open)
	require.NotNil(t, state.Email)
	assert.Equal(t, copilot.Email{
		ID:        "t1",
		ThreadID:  "t1",
		Subject:   "Budget",
		Sender:    "cfo@example.com",
		Snippet:   "No reply for 5 days",
		Timestamp: "2026-02-25",
	}, *state.Email)
	require.NotNil(t, state.Draft)
	assert.Equal(t, "Re: Budget", state.Draft.Subject)
	assert.Equal(t, "Any update on the budget?", state.Draft.Body)
	assert.Equal(t, "professional", state.Draft.Tone)
	assert.NotEqual(t, before, state.SessionID, "refinement starts a fresh conversation")
	assert.Len(t, state.Transcript, 1)
}

func TestServerContext_RefineUnknownThread(t *testing.T) {
	sc := newTestContext(t, &scriptedAgent{})
	_, err := sc.Refine("missing")
	assert.ErrorIs(t, err, followup.ErrUnknownThread)
}

func TestServerContext_UpdateSettings(t *testing.T) {
	sc := newTestContext(t, &scriptedAgent{})

	s := sc.Settings()
	s.Tone = "loud"
	assert.Error(t, sc.UpdateSettings(s))
	assert.Equal(t, "professional", sc.Settings().Tone)

	s.Tone = "friendly"
	s.UnansweredDays = 7
	s.QuestionDetection = false
	require.NoError(t, sc.UpdateSettings(s))
	assert.Equal(t, followup.Options{ThresholdDays: 7, CommitmentDetection: true}, sc.ScanOptions())

	sc.Copilot().Seed(copilot.Email{ThreadID: "t9", Subject: "Hello"}, copilot.Draft{Body: "hi"}, "")
	assert.Equal(t, "friendly", sc.Copilot().Draft().Tone)
}

func TestServerContext_Shutdown(t *testing.T) {
	sc := newTestContext(t, &scriptedAgent{})
	assert.False(t, sc.IsShutdown())

	require.NoError(t, sc.Shutdown())
	require.NoError(t, sc.Shutdown())
	assert.True(t, sc.IsShutdown())
	assert.Error(t, sc.Context().Err())
}
