package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teemow/inboxcopilot/internal/agent"
	"github.com/teemow/inboxcopilot/internal/clipboard"
	"github.com/teemow/inboxcopilot/internal/config"
	"github.com/teemow/inboxcopilot/internal/connection"
	"github.com/teemow/inboxcopilot/internal/copilot"
	"github.com/teemow/inboxcopilot/internal/followup"
	"github.com/teemow/inboxcopilot/internal/instrumentation"
	"github.com/teemow/inboxcopilot/internal/scheduler"
	"github.com/teemow/inboxcopilot/internal/session"
	"github.com/teemow/inboxcopilot/internal/status"
)

// Options configures a ServerContext.
type Options struct {
	Config *config.Config

	// Invoker replaces the HTTP agent client (tests, dry runs).
	Invoker agent.Invoker

	// Scheduler replaces the HTTP scheduler client.
	Scheduler scheduler.Service

	// Clipboard replaces the system clipboard.
	Clipboard clipboard.Copier

	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
	Logger  *slog.Logger
}

// ServerContext wires the copilot, follow-up, connection and schedule
// components to one shared status hub and session manager.
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.Config
	settings config.Settings

	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	logger  *slog.Logger

	hub        *status.Hub
	sessions   *session.Manager
	copilot    *copilot.Copilot
	followUp   *followup.Controller
	connection *connection.Monitor
	schedule   *scheduler.Panel

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new server context. Remote clients are built
// from the configuration unless Options supplies replacements.
func NewServerContext(ctx context.Context, opts Options) (*ServerContext, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	invoker := opts.Invoker
	if invoker == nil {
		client, err := agent.NewClient(agent.ClientConfig{
			BaseURL: cfg.AgentBaseURL,
			APIKey:  cfg.AgentAPIKey,
			Metrics: opts.Metrics,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create agent client: %w", err)
		}
		invoker = client
	}

	svc := opts.Scheduler
	if svc == nil {
		client, err := scheduler.NewClient(scheduler.ClientConfig{
			BaseURL: cfg.SchedulerBaseURL,
			APIKey:  cfg.SchedulerAPIKey,
			Metrics: opts.Metrics,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create scheduler client: %w", err)
		}
		svc = client
	}

	shutdownCtx, cancel := context.WithCancel(ctx)

	ttl := cfg.NoticeTTL
	if ttl <= 0 {
		ttl = config.DefaultNoticeTTL
	}
	hub := status.NewHub(status.WithTTL(ttl), status.WithLogger(logger))
	sessions := session.NewManager()

	monitor := connection.NewMonitor(connection.Config{
		Invoker:  invoker,
		Sessions: sessions,
		Status:   hub,
		AgentID:  cfg.CopilotAgentID,
		Metrics:  opts.Metrics,
		Logger:   logger,
	})

	sc := &ServerContext{
		ctx:        shutdownCtx,
		cancel:     cancel,
		cfg:        cfg,
		settings:   cfg.Settings,
		metrics:    opts.Metrics,
		audit:      opts.Audit,
		logger:     logger,
		hub:        hub,
		sessions:   sessions,
		connection: monitor,
	}

	sc.copilot = copilot.New(copilot.Config{
		Invoker:    invoker,
		Sessions:   sessions,
		Status:     hub,
		Clipboard:  opts.Clipboard,
		Connection: monitor,
		AgentID:    cfg.CopilotAgentID,
		Tone:       cfg.Settings.Tone,
		Metrics:    opts.Metrics,
		Audit:      opts.Audit,
		Logger:     logger,
	})
	sc.followUp = followup.NewController(followup.Config{
		Invoker:     invoker,
		Sessions:    sessions,
		Status:      hub,
		Connection:  monitor,
		ScanAgentID: cfg.FollowUpAgentID,
		SendAgentID: cfg.CopilotAgentID,
		Metrics:     opts.Metrics,
		Audit:       opts.Audit,
		Logger:      logger,
	})
	sc.schedule = scheduler.NewPanel(scheduler.PanelConfig{
		Service:    svc,
		ScheduleID: cfg.ScheduleID,
		Status:     hub,
		Audit:      opts.Audit,
		Logger:     logger,
	})

	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Config returns the configuration the context was built from.
func (sc *ServerContext) Config() *config.Config {
	return sc.cfg
}

// Logger returns the base logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metrics recorder (nil when instrumentation is off).
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger (nil when instrumentation is off).
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.audit
}

// Status returns the shared status hub.
func (sc *ServerContext) Status() *status.Hub {
	return sc.hub
}

// Sessions returns the shared session manager.
func (sc *ServerContext) Sessions() *session.Manager {
	return sc.sessions
}

// Copilot returns the draft copilot.
func (sc *ServerContext) Copilot() *copilot.Copilot {
	return sc.copilot
}

// FollowUp returns the follow-up scan controller.
func (sc *ServerContext) FollowUp() *followup.Controller {
	return sc.followUp
}

// Connection returns the Gmail connection monitor.
func (sc *ServerContext) Connection() *connection.Monitor {
	return sc.connection
}

// Schedule returns the schedule control panel.
func (sc *ServerContext) Schedule() *scheduler.Panel {
	return sc.schedule
}

// Settings returns the current user preferences.
func (sc *ServerContext) Settings() config.Settings {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.settings
}

// UpdateSettings validates and applies new preferences. The tone takes
// effect on the next draft.
func (sc *ServerContext) UpdateSettings(s config.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	sc.mu.Lock()
	sc.settings = s
	sc.mu.Unlock()
	sc.copilot.SetTone(s.Tone)
	return nil
}

// ScanOptions derives follow-up scan options from the settings.
func (sc *ServerContext) ScanOptions() followup.Options {
	s := sc.Settings()
	return followup.Options{
		ThresholdDays:       s.UnansweredDays,
		CommitmentDetection: s.CommitmentDetection,
		QuestionDetection:   s.QuestionDetection,
	}
}

// Refine hands a follow-up item to the copilot: the item becomes the
// selected email and its suggested follow-up becomes the draft.
func (sc *ServerContext) Refine(threadID string) (copilot.State, error) {
	item, ok := sc.followUp.Item(threadID)
	if !ok {
		return copilot.State{}, fmt.Errorf("%w: %s", followup.ErrUnknownThread, threadID)
	}

	email := copilot.Email{
		ID:        item.ThreadID,
		ThreadID:  item.ThreadID,
		Subject:   item.Subject,
		Sender:    item.Sender,
		Snippet:   item.Reason,
		Timestamp: item.LastActivity,
	}
	draft := copilot.Draft{
		Subject: "Re: " + item.Subject,
		Body:    item.DraftContent,
	}
	sc.copilot.Seed(email, draft, "")
	return sc.copilot.State(), nil
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	sc.hub.Close()
	return nil
}
