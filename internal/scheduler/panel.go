package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxcopilot/internal/instrumentation"
	"github.com/teemow/inboxcopilot/internal/logging"
	"github.com/teemow/inboxcopilot/internal/status"
)

// User-facing texts.
const (
	msgLoadError      = "Error loading schedule"
	msgPaused         = "Schedule paused"
	msgResumed        = "Schedule resumed"
	msgToggleError    = "Error toggling schedule"
	msgToggleDeclined = "Schedule unchanged"
	msgTriggered      = "Schedule triggered! Check Follow-Up Hub for results."
	msgTriggerError   = "Error triggering schedule"
)

// PanelConfig configures a Panel.
type PanelConfig struct {
	Service    Service
	ScheduleID string
	Status     *status.Hub
	LogLimit   int
	Audit      *instrumentation.AuditLogger
	Logger     *slog.Logger
}

// View is a copy of the panel state.
type View struct {
	Schedule    *Schedule      `json:"schedule,omitempty"`
	Description string         `json:"description,omitempty"`
	Logs        []ExecutionLog `json:"logs"`
	Loading     bool           `json:"loading"`
	Acting      bool           `json:"acting"`
}

// Panel controls the one recurring follow-up scan. The local copy of the
// schedule is only ever replaced by what the service returns.
type Panel struct {
	svc        Service
	scheduleID string
	status     *status.Hub
	logLimit   int
	audit      *instrumentation.AuditLogger
	logger     *slog.Logger

	mu       sync.Mutex
	schedule *Schedule
	logs     []ExecutionLog
	loading  bool
	acting   bool
}

// NewPanel creates a Panel.
func NewPanel(cfg PanelConfig) *Panel {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := cfg.Status
	if hub == nil {
		hub = status.NewHub(status.WithLogger(logger))
	}
	limit := cfg.LogLimit
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	return &Panel{
		svc:        cfg.Service,
		scheduleID: cfg.ScheduleID,
		status:     hub,
		logLimit:   limit,
		audit:      cfg.Audit,
		logger:     logger.With("component", "schedule_panel", "schedule", cfg.ScheduleID),
		logs:       []ExecutionLog{},
	}
}

// View returns the current state.
func (p *Panel) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewLocked()
}

func (p *Panel) viewLocked() View {
	v := View{
		Logs:    slices.Clone(p.logs),
		Loading: p.loading,
		Acting:  p.acting,
	}
	if p.schedule != nil {
		s := *p.schedule
		v.Schedule = &s
		v.Description = s.Describe()
	}
	return v
}

// Load fetches the schedule and its recent executions in parallel. Each part
// that succeeds is applied even when the other fails.
func (p *Panel) Load(ctx context.Context) (View, error) {
	p.setFlag(&p.loading, true)
	defer p.setFlag(&p.loading, false)

	var (
		g        errgroup.Group
		schedule *Schedule
		logs     []ExecutionLog
	)
	g.Go(func() error {
		s, err := p.svc.GetSchedule(ctx, p.scheduleID)
		if err != nil {
			return fmt.Errorf("get schedule: %w", err)
		}
		schedule = s
		return nil
	})
	g.Go(func() error {
		l, err := p.svc.GetScheduleLogs(ctx, p.scheduleID, p.logLimit)
		if err != nil {
			return fmt.Errorf("get schedule logs: %w", err)
		}
		logs = l
		return nil
	})
	err := g.Wait()

	p.mu.Lock()
	if schedule != nil {
		p.schedule = schedule
	}
	if logs != nil {
		p.logs = logs
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("schedule load failed", logging.Err(err))
		p.status.Error(msgLoadError)
		return p.View(), err
	}
	return p.View(), nil
}

// Toggle pauses an active schedule or resumes a paused one, then re-fetches
// it. The re-fetched active flag is what the panel shows, whatever the
// toggle call returned. A pause or resume the service declines (for
// example one that is already paused) is reported with the service's own
// message as an info notice; only transport failures and a failed re-fetch
// are errors.
func (p *Panel) Toggle(ctx context.Context) (View, error) {
	p.mu.Lock()
	if p.schedule == nil {
		p.mu.Unlock()
		return p.View(), ErrNoSchedule
	}
	wasActive := p.schedule.IsActive
	p.acting = true
	p.mu.Unlock()
	defer p.setFlag(&p.acting, false)

	ti := instrumentation.NewToolInvocation("schedule_toggle").WithSpanContext(ctx)

	var toggleErr error
	if wasActive {
		toggleErr = p.svc.PauseSchedule(ctx, p.scheduleID)
	} else {
		toggleErr = p.svc.ResumeSchedule(ctx, p.scheduleID)
	}

	refreshed, refreshErr := p.svc.GetSchedule(ctx, p.scheduleID)
	if refreshErr == nil && refreshed != nil {
		p.mu.Lock()
		p.schedule = refreshed
		p.mu.Unlock()
	}

	declined, ok := serviceMessage(toggleErr)
	if ok {
		toggleErr = nil
		if declined == "" {
			declined = msgToggleDeclined
		}
	}

	if err := errors.Join(toggleErr, refreshErr); err != nil {
		p.audit.LogAction(ctx, instrumentation.ActionScheduleToggle, ti.CompleteWithError(err))
		p.logger.Warn("schedule toggle failed", logging.Err(err), slog.Bool("was_active", wasActive))
		p.status.Error(msgToggleError)
		return p.View(), fmt.Errorf("toggle schedule: %w", err)
	}

	view := p.View()
	if declined != "" {
		p.audit.LogAction(ctx, instrumentation.ActionScheduleToggle, ti.Complete(true, errors.New(declined)))
		p.logger.Info("schedule toggle declined by service", slog.String("message", declined), slog.Bool("was_active", wasActive))
		p.status.Info(declined)
		return view, nil
	}

	p.audit.LogAction(ctx, instrumentation.ActionScheduleToggle, ti.CompleteSuccess())
	if view.Schedule != nil && view.Schedule.IsActive {
		p.status.Success(msgResumed)
	} else {
		p.status.Success(msgPaused)
	}
	return view, nil
}

// serviceMessage reports whether err is a failure the service answered with
// success=false, and its message.
func serviceMessage(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 0 {
		return apiErr.Message, true
	}
	return "", false
}

// TriggerNow runs the schedule immediately. The outcome is reported as a
// notice; the returned error is for callers that want to exit non-zero.
func (p *Panel) TriggerNow(ctx context.Context) (status.Notice, error) {
	p.setFlag(&p.acting, true)
	defer p.setFlag(&p.acting, false)

	ti := instrumentation.NewToolInvocation("schedule_trigger").WithSpanContext(ctx)

	if err := p.svc.TriggerScheduleNow(ctx, p.scheduleID); err != nil {
		p.audit.LogAction(ctx, instrumentation.ActionScheduleTrigger, ti.CompleteWithError(err))
		text := msgTriggerError
		if msg, ok := serviceMessage(err); ok && msg != "" {
			text = msg
		}
		return p.status.Notify(status.KindError, text), fmt.Errorf("trigger schedule: %w", err)
	}

	p.audit.LogAction(ctx, instrumentation.ActionScheduleTrigger, ti.CompleteSuccess())
	return p.status.Notify(status.KindSuccess, msgTriggered), nil
}

func (p *Panel) setFlag(flag *bool, v bool) {
	p.mu.Lock()
	*flag = v
	p.mu.Unlock()
}
