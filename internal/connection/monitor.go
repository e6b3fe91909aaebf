package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/inboxcopilot/internal/agent"
	"github.com/teemow/inboxcopilot/internal/authurl"
	"github.com/teemow/inboxcopilot/internal/instrumentation"
	"github.com/teemow/inboxcopilot/internal/logging"
	"github.com/teemow/inboxcopilot/internal/session"
	"github.com/teemow/inboxcopilot/internal/status"
)

// State is the believed state of the mail account connection.
type State string

// Connection states.
const (
	StateUnknown    State = "unknown"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateError      State = "error"
)

// VerifyInstruction asks the copilot agent for something that only works with
// a live mail connection.
const VerifyInstruction = "Fetch my most recent email from Gmail inbox to verify the connection is working."

// User-facing texts.
const (
	msgConnecting         = "Initiating Gmail connection..."
	msgAuthWindow         = `Opening Gmail authorization window. Please authorize access, then click "Connect Gmail" again.`
	msgNeedsAuthorization = "Gmail needs authorization. Check the message below."
	msgConnected          = "Gmail connected successfully"
	msgIssueDetected      = "Gmail connection issue detected"
	msgAuthRequired       = `Gmail authorization is required. Please try clicking "Connect Gmail" again -- the agent should provide an authorization link.`
	msgConnectFailed      = "Failed to connect. Please try again."
	diagnosticPrefix      = "Gmail authorization may be needed. The agent reported: "
	diagnosticFallback    = "authorization required"
)

// Snapshot is the observable state of the monitor.
type Snapshot struct {
	State      State     `json:"state"`
	Error      string    `json:"error,omitempty"`
	Connecting bool      `json:"connecting"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Outcome is the result of one Connect attempt.
type Outcome struct {
	State State  `json:"state"`
	Error string `json:"error,omitempty"`

	// AuthURL is set when the agent asked the user to authorize access.
	// The caller opens or prints it.
	AuthURL string `json:"auth_url,omitempty"`

	// Message is the agent's own text, if any.
	Message string `json:"message,omitempty"`
}

// Config configures a Monitor.
type Config struct {
	Invoker  agent.Invoker
	Sessions *session.Manager
	Status   *status.Hub
	AgentID  string
	Metrics  *instrumentation.Metrics
	Logger   *slog.Logger
}

// Monitor tracks the connection state machine
// unknown → connecting → {connected | error | unknown}.
type Monitor struct {
	invoker  agent.Invoker
	sessions *session.Manager
	status   *status.Hub
	agentID  string
	metrics  *instrumentation.Metrics
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	errText    string
	connecting bool
	updatedAt  time.Time
}

// NewMonitor creates a Monitor in the unknown state.
func NewMonitor(cfg Config) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = session.NewManager()
	}
	hub := cfg.Status
	if hub == nil {
		hub = status.NewHub(status.WithLogger(logger))
	}
	return &Monitor{
		invoker:   cfg.Invoker,
		sessions:  sessions,
		status:    hub,
		agentID:   cfg.AgentID,
		metrics:   cfg.Metrics,
		logger:    logging.WithFlow(logger.With("component", "connection"), instrumentation.FlowConnect),
		state:     StateUnknown,
		updatedAt: time.Now(),
	}
}

// Snapshot returns the current state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, Error: m.errText, Connecting: m.connecting, UpdatedAt: m.updatedAt}
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ObserveSuccess records that another flow got a usable agent result, which
// is taken as evidence that the connection is live.
func (m *Monitor) ObserveSuccess(ctx context.Context) {
	m.transition(ctx, StateConnected, "")
}

// ObserveAuthRequired records that another flow was answered with an
// authorization URL.
func (m *Monitor) ObserveAuthRequired(ctx context.Context) {
	m.transition(ctx, StateUnknown, "")
}

// Connect runs one connection check with a freshly minted session.
//
// Transport failures move the machine to the error state and are returned.
// Every other outcome, including "authorization required", is reported in
// the Outcome.
func (m *Monitor) Connect(ctx context.Context) (Outcome, error) {
	m.mu.Lock()
	m.connecting = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.connecting = false
		m.mu.Unlock()
	}()

	m.transition(ctx, StateConnecting, "")
	m.status.Info(msgConnecting)

	end := m.status.Begin(m.agentID)
	sessionID := m.sessions.Mint()
	result, err := m.invoker.Invoke(ctx, VerifyInstruction, m.agentID, sessionID)
	end()

	if err != nil {
		m.logger.Warn("connection check failed", logging.Session(sessionID), logging.Err(err))
		m.transition(ctx, StateError, err.Error())
		m.status.Error(err.Error())
		return Outcome{State: StateError, Error: err.Error()}, err
	}
	if result == nil {
		result = &agent.Result{}
	}

	out := m.evaluate(ctx, result)
	m.logger.Info("connection check completed",
		logging.Session(sessionID),
		logging.State(string(out.State)),
		slog.Bool("auth_url", out.AuthURL != ""))
	return out, nil
}

func (m *Monitor) evaluate(ctx context.Context, result *agent.Result) Outcome {
	if url := authurl.Find(result.Serialize()); url != "" {
		return m.authPrompt(ctx, url)
	}

	payload := agent.Parse(result)
	if payload.Present() || result.Success {
		msg := reportedMessage(payload, result)
		if authurl.NeedsAuthorization(msg) {
			reported := payload.Message()
			if reported == "" {
				reported, _ = payload.String("text")
			}
			if reported == "" {
				reported = diagnosticFallback
			}
			diag := diagnosticPrefix + reported
			m.transition(ctx, StateUnknown, diag)
			m.status.Info(msgNeedsAuthorization)
			return Outcome{State: StateUnknown, Error: diag, Message: msg}
		}

		m.transition(ctx, StateConnected, "")
		notice := payload.Message()
		if notice == "" {
			notice = msgConnected
		}
		m.status.Success(notice)
		return Outcome{State: StateConnected, Message: payload.Message()}
	}

	errMsg := result.Error
	if errMsg == "" {
		errMsg = result.Message()
	}

	if url := authurl.Find(errMsg + " " + result.RawResponse); url != "" {
		out := m.authPrompt(ctx, url)
		m.status.Error(noticeText(errMsg))
		return out
	}

	var out Outcome
	switch {
	case authurl.ErrorSuggestsAuthorization(errMsg):
		out = Outcome{State: StateUnknown, Error: msgAuthRequired}
	case errMsg != "":
		out = Outcome{State: StateError, Error: errMsg}
	default:
		out = Outcome{State: StateError, Error: msgConnectFailed}
	}
	m.transition(ctx, out.State, out.Error)
	m.status.Error(noticeText(errMsg))
	return out
}

func (m *Monitor) authPrompt(ctx context.Context, url string) Outcome {
	m.transition(ctx, StateUnknown, "")
	m.metrics.RecordAuthPrompt(ctx, instrumentation.FlowConnect)
	instrumentation.MarkAuthPrompt(ctx, instrumentation.FlowConnect)
	m.status.Info(msgAuthWindow)
	return Outcome{State: StateUnknown, AuthURL: url}
}

// reportedMessage is the text checked for authorization phrases: the payload
// message, then a "text" field, then the envelope message.
func reportedMessage(p agent.Payload, r *agent.Result) string {
	if msg := p.Message(); msg != "" {
		return msg
	}
	if text, ok := p.String("text"); ok && text != "" {
		return text
	}
	return r.Message()
}

func noticeText(errMsg string) string {
	if errMsg == "" {
		return msgIssueDetected
	}
	return errMsg
}

func (m *Monitor) transition(ctx context.Context, to State, errText string) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.errText = errText
	m.updatedAt = time.Now()
	m.mu.Unlock()

	if from != to {
		m.metrics.RecordConnectionTransition(ctx, string(from), string(to))
		m.logger.Debug("connection state changed", "from", string(from), logging.State(string(to)))
	}
}
