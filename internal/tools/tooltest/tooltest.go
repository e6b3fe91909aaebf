// Package tooltest provides fakes and helpers for testing MCP tool packages
// against a real ServerContext.
package tooltest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxcopilot/internal/agent"
	"github.com/teemow/inboxcopilot/internal/clipboard"
	"github.com/teemow/inboxcopilot/internal/config"
	"github.com/teemow/inboxcopilot/internal/scheduler"
	"github.com/teemow/inboxcopilot/internal/server"
)

// Agent replays queued results and records every call. With an empty queue
// it answers a plain successful message.
type Agent struct {
	mu       sync.Mutex
	Messages []string
	Agents   []string
	Sessions []string
	Results  []*agent.Result
	Err      error
}

// Invoke implements agent.Invoker.
func (a *Agent) Invoke(_ context.Context, message, agentID, sessionID string) (*agent.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Messages = append(a.Messages, message)
	a.Agents = append(a.Agents, agentID)
	a.Sessions = append(a.Sessions, sessionID)
	if a.Err != nil {
		return nil, a.Err
	}
	if len(a.Results) == 0 {
		return &agent.Result{Success: true, Response: &agent.Response{Message: "ok"}}, nil
	}
	r := a.Results[0]
	a.Results = a.Results[1:]
	return r, nil
}

// Queue appends results to replay.
func (a *Agent) Queue(results ...*agent.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Results = append(a.Results, results...)
}

// Calls returns the number of recorded invocations.
func (a *Agent) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Messages)
}

// LastMessage returns the most recent instruction.
func (a *Agent) LastMessage() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.Messages) == 0 {
		return ""
	}
	return a.Messages[len(a.Messages)-1]
}

// Structured wraps v as a successful agent result with a structured payload.
func Structured(t *testing.T, v any) *agent.Result {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return &agent.Result{Success: true, Response: &agent.Response{Result: raw}}
}

// Scheduler is an in-memory scheduler.Service.
type Scheduler struct {
	mu         sync.Mutex
	Schedule   scheduler.Schedule
	Logs       []scheduler.ExecutionLog
	Triggered  int
	TriggerErr error
}

// GetSchedule implements scheduler.Service.
func (s *Scheduler) GetSchedule(context.Context, string) (*scheduler.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.Schedule
	return &sc, nil
}

// GetScheduleLogs implements scheduler.Service.
func (s *Scheduler) GetScheduleLogs(_ context.Context, _ string, limit int) ([]scheduler.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := append([]scheduler.ExecutionLog{}, s.Logs...)
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// PauseSchedule implements scheduler.Service.
func (s *Scheduler) PauseSchedule(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Schedule.IsActive = false
	return nil
}

// ResumeSchedule implements scheduler.Service.
func (s *Scheduler) ResumeSchedule(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Schedule.IsActive = true
	return nil
}

// TriggerScheduleNow implements scheduler.Service.
func (s *Scheduler) TriggerScheduleNow(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TriggerErr != nil {
		return s.TriggerErr
	}
	s.Triggered++
	return nil
}

// Config returns a complete configuration pointing at placeholder hosts.
func Config() *config.Config {
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

// Env bundles a ServerContext with its fakes.
type Env struct {
	SC        *server.ServerContext
	Agent     *Agent
	Scheduler *Scheduler
	Copied    []string
	mu        sync.Mutex
}

// CopiedTexts returns everything written to the fake clipboard.
func (e *Env) CopiedTexts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.Copied...)
}

// NewEnv builds a ServerContext wired to fakes. It is shut down when the
// test ends.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	env := &Env{
		Agent: &Agent{},
		Scheduler: &Scheduler{Schedule: scheduler.Schedule{
			ID:             "sched-1",
			CronExpression: "0 9 * * 1-5",
			IsActive:       true,
		}},
	}
	sc, err := server.NewServerContext(context.Background(), server.Options{
		Config:    Config(),
		Invoker:   env.Agent,
		Scheduler: env.Scheduler,
		Clipboard: clipboard.CopierFunc(func(text string) bool {
			env.mu.Lock()
			defer env.mu.Unlock()
			env.Copied = append(env.Copied, text)
			return true
		}),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	env.SC = sc
	return env
}

// NewMCPServer returns an MCP server with tool capabilities.
func NewMCPServer() *mcpserver.MCPServer {
	return mcpserver.NewMCPServer("inboxcopilot-test", "test", mcpserver.WithToolCapabilities(true))
}

// ToolNames lists the tools registered on s.
func ToolNames(s *mcpserver.MCPServer) []string {
	tools := s.ListTools()
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	return names
}

// Call invokes a registered tool directly and fails the test on a Go error.
func Call(t *testing.T, s *mcpserver.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool, ok := s.ListTools()[name]
	require.True(t, ok, "tool %s is not registered", name)

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := tool.Handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

// Text returns the first text content of result.
func Text(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			return tc.Text
		}
	}
	return ""
}

// Decode unmarshals the JSON text of a tool result into v.
func Decode(t *testing.T, result *mcp.CallToolResult, v any) {
	t.Helper()
	require.False(t, result.IsError, "unexpected tool error: %s", Text(result))
	require.NoError(t, json.Unmarshal([]byte(Text(result)), v))
}
