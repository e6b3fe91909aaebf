package followup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teemow/inboxcopilot/internal/agent"
	"github.com/teemow/inboxcopilot/internal/authurl"
	"github.com/teemow/inboxcopilot/internal/instrumentation"
	"github.com/teemow/inboxcopilot/internal/logging"
	"github.com/teemow/inboxcopilot/internal/session"
	"github.com/teemow/inboxcopilot/internal/status"
	"github.com/teemow/inboxcopilot/internal/tools/batch"
)

// Local rejections.
var (
	ErrNoDraftContent = errors.New("no draft content available for this follow-up")
	ErrUnknownThread  = errors.New("unknown follow-up thread")
	ErrInvalidDate    = errors.New("reminder date must be YYYY-MM-DD")
)

// DefaultThresholdDays is used when Options.ThresholdDays is not positive.
const DefaultThresholdDays = 3

// reminderLayout is the format of reminder dates.
const reminderLayout = "2006-01-02"

// User-facing texts.
const (
	msgAuth          = "Gmail authorization needed. Opening authorization window..."
	msgScanFailed    = "Failed to scan inbox"
	msgScanError     = "Error scanning for follow-ups"
	msgNoDraft       = "No draft content available for this follow-up"
	msgSent          = "Follow-up sent"
	msgSendFailed    = "Failed to send follow-up"
	msgSendError     = "Error sending follow-up"
	msgFoundTemplate = "Found %d items needing follow-up"
)

// Config configures a Controller.
type Config struct {
	Invoker    agent.Invoker
	Sessions   *session.Manager
	Status     *status.Hub
	Connection ConnectionObserver

	// ScanAgentID is the follow-up agent that scans the inbox.
	ScanAgentID string

	// SendAgentID is the copilot agent that sends follow-ups.
	SendAgentID string

	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
	Logger  *slog.Logger
}

// Snapshot is a copy of the controller state.
type Snapshot struct {
	Result   *ScanResult `json:"result,omitempty"`
	Visible  []Item      `json:"visible"`
	Filter   string      `json:"filter"`
	Scanning bool        `json:"scanning"`
	Sending  string      `json:"sending,omitempty"`
}

// Controller runs follow-up scans and keeps their results.
type Controller struct {
	invoker     agent.Invoker
	sessions    *session.Manager
	status      *status.Hub
	connection  ConnectionObserver
	scanAgentID string
	sendAgentID string
	metrics     *instrumentation.Metrics
	audit       *instrumentation.AuditLogger
	logger      *slog.Logger
	now         func() time.Time

	mu        sync.Mutex
	result    *ScanResult
	items     []Item
	filter    string
	scanning  bool
	sending   string
	reminders map[string]string
}

// NewController creates a Controller.
func NewController(cfg Config) *Controller {
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
	var observer ConnectionObserver = nopObserver{}
	if cfg.Connection != nil {
		observer = cfg.Connection
	}
	return &Controller{
		invoker:     cfg.Invoker,
		sessions:    sessions,
		status:      hub,
		connection:  observer,
		scanAgentID: cfg.ScanAgentID,
		sendAgentID: cfg.SendAgentID,
		metrics:     cfg.Metrics,
		audit:       cfg.Audit,
		logger:      logger.With("component", "followup"),
		now:         time.Now,
		filter:      CategoryAll,
		reminders:   make(map[string]string),
	}
}

// Instruction builds the scan request for opts.
func Instruction(opts Options) string {
	days := opts.ThresholdDays
	if days <= 0 {
		days = DefaultThresholdDays
	}
	checks := []string{fmt.Sprintf("unanswered emails older than %d days", days)}
	if opts.CommitmentDetection {
		checks = append(checks, "pending commitments")
	}
	if opts.QuestionDetection {
		checks = append(checks, "open questions")
	}
	checks = append(checks, "flagged items")

	list := strings.Join(checks[:len(checks)-1], ", ")
	if len(checks) > 2 {
		list += ","
	}
	list += " and " + checks[len(checks)-1]
	return "Scan my inbox for emails that need follow-up. Check for " + list + "."
}

// Scan asks the follow-up agent for items needing attention and stores the
// result. An authorization URL anywhere in the answer short-circuits with
// *agent.AuthorizationRequiredError before the payload is looked at.
func (c *Controller) Scan(ctx context.Context, opts Options) (*ScanResult, error) {
	c.mu.Lock()
	c.scanning = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.scanning = false
		c.mu.Unlock()
	}()

	ctx, span := instrumentation.StartSpan(ctx, "followup.scan",
		instrumentation.NewSpanAttributeBuilder().WithFlow(instrumentation.FlowScan).Build()...)
	defer span.End()

	logger := logging.WithFlow(c.logger, instrumentation.FlowScan)
	sessionID := c.sessions.Current()

	end := c.status.Begin(c.scanAgentID)
	result, err := c.invoker.Invoke(ctx, Instruction(opts), c.scanAgentID, sessionID)
	end()
	if err != nil {
		instrumentation.SetSpanError(span, err)
		logger.Warn("follow-up scan failed", logging.Session(sessionID), logging.Err(err))
		c.status.Error(msgScanError)
		return nil, fmt.Errorf("scan follow-ups: %w", err)
	}
	if result == nil {
		result = &agent.Result{}
	}

	if url := authurl.Find(result.Serialize()); url != "" {
		c.connection.ObserveAuthRequired(ctx)
		c.metrics.RecordAuthPrompt(ctx, instrumentation.FlowScan)
		instrumentation.MarkAuthPrompt(ctx, instrumentation.FlowScan)
		c.status.Info(msgAuth)
		logger.Info("authorization required", logging.Session(sessionID))
		return nil, &agent.AuthorizationRequiredError{URL: url}
	}

	payload := agent.Parse(result)
	if !payload.Present() {
		text := result.ErrorText(msgScanFailed)
		c.status.Error(text)
		return nil, agent.Failure(text)
	}

	res := coerce(payload, c.now())

	c.mu.Lock()
	for i := range res.Items {
		if date, ok := c.reminders[res.Items[i].ThreadID]; ok {
			res.Items[i].HasReminder = true
			res.Items[i].ReminderDate = date
		}
	}
	c.result = res
	c.items = res.Items
	out := res.clone()
	c.mu.Unlock()

	c.connection.ObserveSuccess(ctx)
	c.metrics.RecordFollowUpScan(ctx, len(res.Items))

	notice := res.Message
	if notice == "" {
		notice = fmt.Sprintf(msgFoundTemplate, len(res.Items))
	}
	c.status.Success(notice)

	instrumentation.SetSpanSuccess(span)
	logger.Info("follow-up scan completed",
		logging.Session(sessionID),
		slog.Int("items", len(res.Items)),
		slog.Int("total_count", res.TotalCount))
	return out, nil
}

// Result returns a copy of the last scan result, or nil.
func (c *Controller) Result() *ScanResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result.clone()
}

// Items returns all stored items.
func (c *Controller) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FilterByCategory(c.items, CategoryAll)
}

// Item returns the stored item for threadID.
func (c *Controller) Item(threadID string) (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(threadID)
	if i < 0 {
		return Item{}, false
	}
	return c.items[i], true
}

// SetFilter sets the live category filter ("all" shows everything).
func (c *Controller) SetFilter(category string) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		category = CategoryAll
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = category
}

// Filter returns the live category filter.
func (c *Controller) Filter() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// Visible returns the stored items matching the live filter.
func (c *Controller) Visible() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FilterByCategory(c.items, c.filter)
}

// Sending returns the thread currently being sent, or "".
func (c *Controller) Sending() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Snapshot returns a copy of the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Result:   c.result.clone(),
		Visible:  FilterByCategory(c.items, c.filter),
		Filter:   c.filter,
		Scanning: c.scanning,
		Sending:  c.sending,
	}
}

// Send asks the copilot agent to send item's draft. An item without draft
// content is rejected without contacting the agent.
func (c *Controller) Send(ctx context.Context, item Item) (status.Notice, error) {
	if strings.TrimSpace(item.DraftContent) == "" {
		c.status.Error(msgNoDraft)
		return status.Notice{}, ErrNoDraftContent
	}

	c.mu.Lock()
	c.sending = item.ThreadID
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.sending == item.ThreadID {
			c.sending = ""
		}
		c.mu.Unlock()
	}()

	ctx, span := instrumentation.StartSpan(ctx, "followup.send",
		instrumentation.NewSpanAttributeBuilder().
			WithFlow(instrumentation.FlowFollowUp).
			WithThread(item.ThreadID).Build()...)
	defer span.End()

	sessionID := c.sessions.Current()
	subject := "Re: " + item.Subject
	ti := instrumentation.NewToolInvocation("send_followup").
		WithThread(item.ThreadID).
		WithAgent(c.sendAgentID, sessionID).
		WithMail(subject, item.Sender).
		WithSpanContext(ctx)

	instruction := fmt.Sprintf("Send this follow-up email for thread %s: Subject: %q Body: %s",
		item.ThreadID, subject, item.DraftContent)

	end := c.status.Begin(c.sendAgentID)
	result, err := c.invoker.Invoke(ctx, instruction, c.sendAgentID, sessionID)
	end()
	if err != nil {
		instrumentation.SetSpanError(span, err)
		c.audit.LogAction(ctx, instrumentation.ActionSendFollowUp, ti.CompleteWithError(err))
		c.status.Error(msgSendError)
		return status.Notice{}, fmt.Errorf("send follow-up %s: %w", item.ThreadID, err)
	}

	payload := agent.Parse(result)
	if !payload.Present() {
		text := result.ErrorText(msgSendFailed)
		c.audit.LogAction(ctx, instrumentation.ActionSendFollowUp, ti.CompleteWithError(errors.New(text)))
		c.status.Error(text)
		return status.Notice{}, agent.Failure(text)
	}

	text := payload.Message()
	if text == "" {
		text = msgSent
	}
	c.audit.LogAction(ctx, instrumentation.ActionSendFollowUp, ti.CompleteSuccess())
	instrumentation.SetSpanSuccess(span)
	return c.status.Notify(status.KindSuccess, text), nil
}

// SendThread sends the stored item for threadID.
func (c *Controller) SendThread(ctx context.Context, threadID string) (status.Notice, error) {
	item, ok := c.Item(threadID)
	if !ok {
		return status.Notice{}, fmt.Errorf("%w: %s", ErrUnknownThread, threadID)
	}
	return c.Send(ctx, item)
}

// SendMany sends the stored items for threadIDs one after another and
// reports a result per thread.
func (c *Controller) SendMany(ctx context.Context, threadIDs []string) []batch.Result {
	return batch.ProcessBatch(ctx, threadIDs, func(ctx context.Context, id string) (string, error) {
		n, err := c.SendThread(ctx, id)
		if err != nil {
			return "", err
		}
		return n.Text, nil
	})
}

// SetReminder records a reminder date (YYYY-MM-DD) for a stored thread. An
// empty date removes the reminder.
func (c *Controller) SetReminder(threadID, date string) (Item, error) {
	date = strings.TrimSpace(date)
	if date != "" {
		if _, err := time.Parse(reminderLayout, date); err != nil {
			return Item{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(threadID)
	if i < 0 {
		return Item{}, fmt.Errorf("%w: %s", ErrUnknownThread, threadID)
	}

	if date == "" {
		delete(c.reminders, threadID)
	} else {
		c.reminders[threadID] = date
	}

	// Items are shared with c.result; copy before writing.
	items := FilterByCategory(c.items, CategoryAll)
	items[i].HasReminder = date != ""
	items[i].ReminderDate = date
	c.items = items
	if c.result != nil {
		c.result.Items = items
	}
	return items[i], nil
}

func (c *Controller) indexLocked(threadID string) int {
	for i, it := range c.items {
		if it.ThreadID == threadID {
			return i
		}
	}
	return -1
}
