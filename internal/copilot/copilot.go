package copilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/teemow/inboxcopilot/internal/agent"
	"github.com/teemow/inboxcopilot/internal/authurl"
	"github.com/teemow/inboxcopilot/internal/clipboard"
	"github.com/teemow/inboxcopilot/internal/instrumentation"
	"github.com/teemow/inboxcopilot/internal/logging"
	"github.com/teemow/inboxcopilot/internal/session"
	"github.com/teemow/inboxcopilot/internal/status"
)

// Local rejections. No remote call is made when one of these is returned.
var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrBusy            = errors.New("copilot is busy with another request")
	ErrNoDraft         = errors.New("no draft to work with")
	ErrNoEmailSelected = errors.New("no email selected")
)

const (
	// DefaultTone is used when no tone is configured.
	DefaultTone = "professional"

	// StatusDraftReady is the status of a freshly generated draft.
	StatusDraftReady = "draft_ready"

	// DefaultCopiedTTL is how long the "copied" indicator stays on.
	DefaultCopiedTTL = 2 * time.Second
)

// User-facing texts.
const (
	msgDrafted          = "I have drafted a reply for you. You can edit it directly or ask me to refine it."
	msgChatFallback     = "Here is my response."
	msgSeeded           = "Here is the follow-up draft. You can refine it by sending me instructions."
	msgDraftFailed      = "Failed to generate draft"
	msgDraftError       = "Error generating draft"
	msgChatFailed       = "Failed to get a response from the copilot"
	msgChatError        = "Error sending message"
	msgReplySent        = "Reply sent successfully"
	msgReplyFailed      = "Failed to send reply"
	msgReplyError       = "Error sending reply"
	msgThreadError      = "Error loading thread"
	msgInboxAuth        = "Gmail authorization needed. Opening authorization window..."
	msgInboxFailed      = "Failed to fetch emails. You may need to connect Gmail first via Settings."
	msgInboxError       = "Error fetching emails. Please check your Gmail connection in Settings."
	instructionFetchAll = "Fetch my recent emails from Gmail"
)

// Config configures a Copilot.
type Config struct {
	Invoker    agent.Invoker
	Sessions   *session.Manager
	Status     *status.Hub
	Clipboard  clipboard.Copier
	Connection ConnectionObserver
	AgentID    string
	Tone       string
	CopiedTTL  time.Duration
	Metrics    *instrumentation.Metrics
	Audit      *instrumentation.AuditLogger
	Logger     *slog.Logger
}

// Copilot is the conversational draft state machine for one selected email.
//
// Phases: no draft → pending → ready. The mutex guards local state only and
// is never held across an agent call; when two calls race the later
// completion wins.
type Copilot struct {
	invoker    agent.Invoker
	sessions   *session.Manager
	status     *status.Hub
	copier     clipboard.Copier
	connection ConnectionObserver
	agentID    string
	copiedTTL  time.Duration
	metrics    *instrumentation.Metrics
	audit      *instrumentation.AuditLogger
	logger     *slog.Logger

	mu            sync.Mutex
	tone          string
	email         *Email
	open          bool
	threadContent string
	draft         *Draft
	transcript    []ChatMessage
	editing       bool
	editBuffer    string
	loading       bool
	loadingThread bool
	fetchingInbox bool
	copiedUntil   time.Time
	inbox         []Email
}

// New creates a Copilot.
func New(cfg Config) *Copilot {
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
	copier := cfg.Clipboard
	if copier == nil {
		copier = clipboard.NewSystem(logger)
	}
	var observer ConnectionObserver = nopObserver{}
	if cfg.Connection != nil {
		observer = cfg.Connection
	}
	tone := cfg.Tone
	if tone == "" {
		tone = DefaultTone
	}
	ttl := cfg.CopiedTTL
	if ttl <= 0 {
		ttl = DefaultCopiedTTL
	}
	return &Copilot{
		invoker:    cfg.Invoker,
		sessions:   sessions,
		status:     hub,
		copier:     copier,
		connection: observer,
		agentID:    cfg.AgentID,
		copiedTTL:  ttl,
		metrics:    cfg.Metrics,
		audit:      cfg.Audit,
		logger:     logging.WithAgent(logger.With("component", "copilot"), cfg.AgentID),
		tone:       tone,
	}
}

// SetTone changes the tone used for new drafts.
func (c *Copilot) SetTone(tone string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tone == "" {
		tone = DefaultTone
	}
	c.tone = tone
}

// State returns a copy of the current state.
func (c *Copilot) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		SessionID:     c.sessions.Current(),
		Open:          c.open,
		ThreadContent: c.threadContent,
		Draft:         c.draft.Clone(),
		Transcript:    make([]ChatMessage, len(c.transcript)),
		Editing:       c.editing,
		EditBuffer:    c.editBuffer,
		Loading:       c.loading,
		LoadingThread: c.loadingThread,
		FetchingInbox: c.fetchingInbox,
		Copied:        time.Now().Before(c.copiedUntil),
		Inbox:         slices.Clone(c.inbox),
	}
	if c.email != nil {
		e := *c.email
		s.Email = &e
	}
	for i, m := range c.transcript {
		m.Draft = m.Draft.Clone()
		s.Transcript[i] = m
	}
	return s
}

// Draft returns a copy of the current draft, or nil.
func (c *Copilot) Draft() *Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft.Clone()
}

// Transcript returns a copy of the conversation.
func (c *Copilot) Transcript() []ChatMessage {
	return c.State().Transcript
}

// FindEmail looks up a fetched inbox entry by thread id.
func (c *Copilot) FindEmail(threadID string) (Email, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.inbox {
		if e.ThreadID == threadID {
			return e, true
		}
	}
	return Email{}, false
}

// FetchInbox asks the copilot agent for recent mail, or searches when query
// is set. An authorization URL in the answer short-circuits with
// *agent.AuthorizationRequiredError.
func (c *Copilot) FetchInbox(ctx context.Context, query string) (InboxView, error) {
	ctx, span := instrumentation.StartSpan(ctx, "copilot.fetch_inbox",
		instrumentation.NewSpanAttributeBuilder().WithFlow(instrumentation.FlowInbox).Build()...)
	defer span.End()

	c.mu.Lock()
	c.fetchingInbox = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.fetchingInbox = false
		c.mu.Unlock()
	}()

	instruction := instructionFetchAll
	if q := strings.TrimSpace(query); q != "" {
		instruction = "Search my Gmail inbox for: " + q
	}

	result, sessionID, err := c.invoke(ctx, instruction, c.sessions.Current())
	if err != nil {
		instrumentation.SetSpanError(span, err)
		c.status.Error(msgInboxError)
		return InboxView{}, fmt.Errorf("fetch inbox: %w", err)
	}

	if url := authurl.Find(result.Serialize()); url != "" {
		c.connection.ObserveAuthRequired(ctx)
		c.metrics.RecordAuthPrompt(ctx, instrumentation.FlowInbox)
		instrumentation.MarkAuthPrompt(ctx, instrumentation.FlowInbox)
		c.status.Info(msgInboxAuth)
		c.logger.Info("authorization required", logging.Session(sessionID), slog.String("flow", instrumentation.FlowInbox))
		return InboxView{}, &agent.AuthorizationRequiredError{URL: url}
	}

	payload := agent.Parse(result)
	if !payload.Present() {
		text := result.ErrorText(msgInboxFailed)
		c.status.Error(text)
		return InboxView{}, agent.Failure(text)
	}

	c.connection.ObserveSuccess(ctx)
	if msg := payload.Message(); msg != "" {
		c.status.Info(msg)
	}

	view := InboxView{Summary: payload.Message(), Emails: emailsFrom(payload)}

	c.mu.Lock()
	if content, ok := threadContentFrom(payload, "thread_summary", "draft_body"); ok {
		c.threadContent = content
		if view.Summary == "" {
			view.Summary = content
		}
	}
	if view.Emails != nil {
		c.inbox = slices.Clone(view.Emails)
	}
	c.mu.Unlock()

	instrumentation.SetSpanSuccess(span)
	return view, nil
}

// SelectEmail selects email, closes the copilot and loads the full thread
// with the current session.
func (c *Copilot) SelectEmail(ctx context.Context, email Email) error {
	c.mu.Lock()
	e := email
	c.email = &e
	c.open = false
	c.threadContent = ""
	c.loadingThread = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.loadingThread = false
		c.mu.Unlock()
	}()

	ctx, span := instrumentation.StartSpan(ctx, "copilot.load_thread",
		instrumentation.NewSpanAttributeBuilder().
			WithFlow(instrumentation.FlowThread).
			WithThread(email.ThreadID).Build()...)
	defer span.End()

	instruction := fmt.Sprintf("Fetch the full email thread for thread ID: %s. Subject: %q from %s",
		email.ThreadID, email.Subject, email.Sender)

	result, _, err := c.invoke(ctx, instruction, c.sessions.Current())
	if err != nil {
		instrumentation.SetSpanError(span, err)
		c.status.Error(msgThreadError)
		return fmt.Errorf("load thread %s: %w", email.ThreadID, err)
	}

	payload := agent.Parse(result)
	if !payload.Present() {
		return nil
	}

	content, _ := threadContentFrom(payload, "thread_summary", "message", "draft_body")
	c.mu.Lock()
	if c.email != nil && c.email.ThreadID == email.ThreadID {
		c.threadContent = content
	}
	c.mu.Unlock()
	return nil
}

// Open opens the copilot for email with an empty conversation and generates
// a first draft.
func (c *Copilot) Open(ctx context.Context, email Email) (*Draft, error) {
	c.mu.Lock()
	if c.email == nil || c.email.ThreadID != email.ThreadID {
		c.threadContent = ""
	}
	e := email
	c.email = &e
	c.open = true
	c.transcript = nil
	c.draft = nil
	c.editing = false
	c.editBuffer = ""
	c.mu.Unlock()

	return c.GenerateDraft(ctx)
}

// GenerateDraft asks for a new draft of a reply to the selected email in a
// fresh session.
func (c *Copilot) GenerateDraft(ctx context.Context) (*Draft, error) {
	c.mu.Lock()
	if c.email == nil {
		c.mu.Unlock()
		return nil, ErrNoEmailSelected
	}
	email := *c.email
	tone := c.tone
	thread := c.threadContent
	if thread == "" {
		thread = email.Snippet
	}
	c.loading = true
	c.mu.Unlock()
	defer c.setLoading(false)

	ctx, span := instrumentation.StartSpan(ctx, "copilot.generate_draft",
		instrumentation.NewSpanAttributeBuilder().
			WithFlow(instrumentation.FlowDraft).
			WithThread(email.ThreadID).Build()...)
	defer span.End()

	sessionID := c.sessions.Rotate()
	instruction := fmt.Sprintf("Draft a %s reply to this email thread. Subject: %q. From: %s. Context: %s",
		tone, email.Subject, email.Sender, thread)

	result, _, err := c.invoke(ctx, instruction, sessionID)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		c.status.Error(msgDraftError)
		return nil, fmt.Errorf("generate draft: %w", err)
	}

	payload := agent.Parse(result)
	if !payload.Present() {
		text := result.ErrorText(msgDraftFailed)
		c.status.Error(text)
		return nil, agent.Failure(text)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	body, ok := payload.String("draft_body")
	if !ok {
		body = payload.Message()
	}
	draft := reconcile(c.draft, payload, body, defaults{
		subject: "Re: " + email.Subject,
		tone:    tone,
		status:  StatusDraftReady,
	})
	c.draft = draft
	c.transcript = append(c.transcript, ChatMessage{
		Role:      RoleAssistant,
		Content:   msgDrafted,
		Draft:     draft.Clone(),
		Timestamp: time.Now(),
	})

	instrumentation.SetSpanSuccess(span)
	return draft.Clone(), nil
}

// Chat sends a refinement request in the current session. The draft is only
// replaced when the agent answers with a non-empty draft body.
func (c *Copilot) Chat(ctx context.Context, text string) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return ChatMessage{}, ErrBusy
	}
	c.loading = true
	c.transcript = append(c.transcript, ChatMessage{Role: RoleUser, Content: text, Timestamp: time.Now()})
	var subject string
	if c.email != nil {
		subject = "Re: " + c.email.Subject
	}
	c.mu.Unlock()
	defer c.setLoading(false)

	ctx, span := instrumentation.StartSpan(ctx, "copilot.chat",
		instrumentation.NewSpanAttributeBuilder().WithFlow(instrumentation.FlowChat).Build()...)
	defer span.End()

	result, _, err := c.invoke(ctx, text, c.sessions.Current())
	if err != nil {
		instrumentation.SetSpanError(span, err)
		c.status.Error(msgChatError)
		return ChatMessage{}, fmt.Errorf("chat: %w", err)
	}

	payload := agent.Parse(result)
	if !payload.Present() {
		msg := result.ErrorText(msgChatFailed)
		c.status.Error(msg)
		return ChatMessage{}, agent.Failure(msg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	reply := ChatMessage{Role: RoleAssistant, Timestamp: time.Now()}
	body, hasBody := payload.NonEmpty("draft_body")
	if hasBody {
		c.draft = reconcile(c.draft, payload, body, defaults{subject: subject})
		reply.Draft = c.draft.Clone()
	}

	switch {
	case payload.Message() != "":
		reply.Content = payload.Message()
	case hasBody:
		reply.Content = body
	default:
		reply.Content = msgChatFallback
	}
	c.transcript = append(c.transcript, reply)

	instrumentation.SetSpanSuccess(span)
	m := reply
	m.Draft = reply.Draft.Clone()
	return m, nil
}

// StartEdit enters edit mode with the current body in the edit buffer.
func (c *Copilot) StartEdit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return ErrNoDraft
	}
	c.editing = true
	c.editBuffer = c.draft.Body
	return nil
}

// UpdateEdit replaces the edit buffer, entering edit mode if needed.
func (c *Copilot) UpdateEdit(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return ErrNoDraft
	}
	c.editing = true
	c.editBuffer = text
	return nil
}

// CancelEdit leaves edit mode. The reconciled draft is unchanged.
func (c *Copilot) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editing = false
	c.editBuffer = ""
}

// effectiveBodyLocked is the text that gets sent or copied.
func (c *Copilot) effectiveBodyLocked() string {
	if c.editing {
		return c.editBuffer
	}
	if c.draft == nil {
		return ""
	}
	return c.draft.Body
}

// SendReply asks the copilot agent to send the draft to the selected thread.
// A reply the agent reports as failed yields an error notice, not a Go error.
func (c *Copilot) SendReply(ctx context.Context) (status.Notice, error) {
	c.mu.Lock()
	if c.email == nil {
		c.mu.Unlock()
		return status.Notice{}, ErrNoEmailSelected
	}
	if c.draft == nil || c.draft.Body == "" {
		c.mu.Unlock()
		return status.Notice{}, ErrNoDraft
	}
	email := *c.email
	subject := c.draft.Subject
	if subject == "" {
		subject = "Re: " + email.Subject
	}
	body := c.effectiveBodyLocked()
	c.loading = true
	c.mu.Unlock()
	defer c.setLoading(false)

	ctx, span := instrumentation.StartSpan(ctx, "copilot.send_reply",
		instrumentation.NewSpanAttributeBuilder().
			WithFlow(instrumentation.FlowSend).
			WithThread(email.ThreadID).Build()...)
	defer span.End()

	sessionID := c.sessions.Current()
	ti := instrumentation.NewToolInvocation("send_reply").
		WithThread(email.ThreadID).
		WithAgent(c.agentID, sessionID).
		WithMail(subject, email.Sender).
		WithSpanContext(ctx)

	instruction := fmt.Sprintf("Send this reply to thread %s: Subject: %q Body: %s", email.ThreadID, subject, body)
	result, _, err := c.invoke(ctx, instruction, sessionID)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		c.audit.LogAction(ctx, instrumentation.ActionSendReply, ti.CompleteWithError(err))
		c.status.Error(msgReplyError)
		return status.Notice{}, fmt.Errorf("send reply: %w", err)
	}

	var notice status.Notice
	payload := agent.Parse(result)
	switch {
	case !payload.Present():
		text := result.ErrorText(msgReplyFailed)
		c.audit.LogAction(ctx, instrumentation.ActionSendReply, ti.CompleteWithError(errors.New(text)))
		notice = c.status.Notify(status.KindError, text)
	default:
		text := payload.Message()
		if text == "" {
			text = msgReplySent
		}
		kind := status.KindSuccess
		if st, _ := payload.String("status"); st == "error" {
			kind = status.KindError
			c.audit.LogAction(ctx, instrumentation.ActionSendReply, ti.CompleteWithError(errors.New(text)))
		} else {
			c.audit.LogAction(ctx, instrumentation.ActionSendReply, ti.CompleteSuccess())
		}
		notice = c.status.Notify(kind, text)
	}

	c.mu.Lock()
	c.editing = false
	c.editBuffer = ""
	c.mu.Unlock()
	return notice, nil
}

// Copy copies the effective body to the clipboard. On success the copied
// indicator is on for the configured TTL.
func (c *Copilot) Copy() bool {
	c.mu.Lock()
	text := c.effectiveBodyLocked()
	c.mu.Unlock()

	if !c.copier.Copy(text) {
		return false
	}

	c.mu.Lock()
	c.copiedUntil = time.Now().Add(c.copiedTTL)
	c.mu.Unlock()
	return true
}

// Copied reports whether the copied indicator is on.
func (c *Copilot) Copied() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Before(c.copiedUntil)
}

// Seed opens the copilot on email with a ready-made draft, in a fresh
// session. It is used to refine a follow-up draft. An empty note uses the
// default assistant greeting.
func (c *Copilot) Seed(email Email, draft Draft, note string) {
	if note == "" {
		note = msgSeeded
	}
	c.sessions.Rotate()

	c.mu.Lock()
	defer c.mu.Unlock()

	if draft.Subject == "" {
		draft.Subject = "Re: " + email.Subject
	}
	if draft.Tone == "" {
		draft.Tone = c.tone
	}
	if draft.Status == "" {
		draft.Status = StatusDraftReady
	}

	e := email
	c.email = &e
	c.threadContent = email.Snippet
	c.open = true
	c.draft = draft.Clone()
	c.editing = false
	c.editBuffer = ""
	c.transcript = []ChatMessage{{
		Role:      RoleAssistant,
		Content:   note,
		Draft:     &Draft{Subject: draft.Subject, Body: draft.Body},
		Timestamp: time.Now(),
	}}
}

// Close closes the copilot panel. The conversation is kept.
func (c *Copilot) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
}

func (c *Copilot) setLoading(v bool) {
	c.mu.Lock()
	c.loading = v
	c.mu.Unlock()
}

func (c *Copilot) invoke(ctx context.Context, instruction, sessionID string) (*agent.Result, string, error) {
	end := c.status.Begin(c.agentID)
	defer end()

	result, err := c.invoker.Invoke(ctx, instruction, c.agentID, sessionID)
	if err != nil {
		c.logger.Warn("copilot call failed", logging.Session(sessionID), logging.Err(err))
		return nil, sessionID, err
	}
	if result == nil {
		result = &agent.Result{}
	}
	return result, sessionID, nil
}

type defaults struct {
	subject string
	tone    string
	status  string
}

// reconcile merges an agent answer into the previous draft. Every field takes
// the incoming value when present, else the previous value, else the default.
func reconcile(prev *Draft, p agent.Payload, body string, def defaults) *Draft {
	if prev == nil {
		prev = &Draft{}
	}
	d := &Draft{
		Subject:       pick(p, "draft_subject", prev.Subject, def.subject),
		Body:          body,
		ThreadSummary: pick(p, "thread_summary", prev.ThreadSummary, ""),
		Tone:          pick(p, "tone", prev.Tone, def.tone),
		Status:        pick(p, "status", prev.Status, def.status),
		Message:       pick(p, "message", prev.Message, ""),
	}
	if body == "" {
		d.Body = prev.Body
	}
	if actions, ok := p.StringSlice("suggested_actions"); ok {
		d.SuggestedActions = actions
	} else {
		d.SuggestedActions = slices.Clone(prev.SuggestedActions)
	}
	return d
}

func pick(p agent.Payload, key, prev, def string) string {
	if v, ok := p.String(key); ok {
		return v
	}
	if prev != "" {
		return prev
	}
	return def
}

// threadContentFrom returns the first present string among keys. For a text
// payload the text itself is used.
func threadContentFrom(p agent.Payload, keys ...string) (string, bool) {
	if p.Kind() == agent.TextOnly {
		if slices.Contains(keys, "message") {
			return p.Text(), true
		}
		return "", false
	}
	for _, k := range keys {
		if v, ok := p.String(k); ok {
			return v, true
		}
	}
	return "", false
}
