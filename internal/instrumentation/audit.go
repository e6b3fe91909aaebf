package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/inboxcopilot/internal/logging"
)

// Consequential actions recorded in the audit log.
const (
	ActionSendReply       = "send_reply"
	ActionSendFollowUp    = "send_followup"
	ActionScheduleToggle  = "schedule_toggle"
	ActionScheduleTrigger = "schedule_trigger"
)

// ToolInvocation captures information about one MCP tool call or CLI action
// for audit logging.
//
// # Privacy Considerations
//
// Subject and Recipient come straight from mail content. They are only
// emitted when the audit logger is configured with IncludePII.
type ToolInvocation struct {
	// Tool name (or CLI action)
	Tool string

	// Target information
	ThreadID  string
	SessionID string
	AgentID   string
	Subject   string
	Recipient string

	// Execution details
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	// Tracing context
	TraceID string
	SpanID  string
}

// Status returns "success" or "error" based on the Success field.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes without mail content.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	return ti.attrs(ShortID(ti.SessionID), false)
}

// LogAuditAttrs returns slog attributes for full audit logging, including the
// subject and recipient of the mail the action touched.
func (ti *ToolInvocation) LogAuditAttrs() []slog.Attr {
	return ti.attrs(ti.SessionID, true)
}

func (ti *ToolInvocation) attrs(session string, full bool) []slog.Attr {
	attrs := []slog.Attr{
		logging.Tool(ti.Tool),
		slog.Duration(logging.KeyDuration, ti.Duration),
		slog.Bool("success", ti.Success),
	}

	if ti.ThreadID != "" {
		attrs = append(attrs, logging.Thread(ti.ThreadID))
	}
	if ti.AgentID != "" {
		attrs = append(attrs, logging.Agent(ti.AgentID))
	}
	if session != "" {
		attrs = append(attrs, logging.Session(session))
	}
	if full && ti.Subject != "" {
		attrs = append(attrs, slog.String("subject", ti.Subject))
	}
	if full && ti.Recipient != "" {
		attrs = append(attrs, slog.String("recipient", ti.Recipient))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if full && ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, ti.Error))
	}
	return attrs
}

// NewToolInvocation creates a new ToolInvocation with timing started.
// Call Complete() when the operation finishes.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithThread sets the mail thread the action targets.
func (ti *ToolInvocation) WithThread(threadID string) *ToolInvocation {
	ti.ThreadID = threadID
	return ti
}

// WithAgent sets the agent and session that carried out the action.
func (ti *ToolInvocation) WithAgent(agentID, sessionID string) *ToolInvocation {
	ti.AgentID = agentID
	ti.SessionID = sessionID
	return ti
}

// WithMail sets the subject and recipient of the mail the action touched.
func (ti *ToolInvocation) WithMail(subject, recipient string) *ToolInvocation {
	ti.Subject = subject
	ti.Recipient = recipient
	return ti
}

// WithSpanContext extracts trace context from the current span.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ti.TraceID = span.SpanContext().TraceID().String()
		ti.SpanID = span.SpanContext().SpanID().String()
	}
	return ti
}

// Complete marks the invocation as completed and calculates duration.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// CompleteWithError marks the invocation as failed with the given error.
func (ti *ToolInvocation) CompleteWithError(err error) *ToolInvocation {
	return ti.Complete(false, err)
}

// CompleteSuccess marks the invocation as successful.
func (ti *ToolInvocation) CompleteSuccess() *ToolInvocation {
	return ti.Complete(true, nil)
}

// AuditLogger provides structured audit logging for tool invocations and
// consequential actions.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates a new AuditLogger with the given slog.Logger.
// By default, mail content is not included in logs.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: false,
		enabled:    true,
	}
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// SetIncludePII sets whether to include subjects and recipients in audit logs.
func (al *AuditLogger) SetIncludePII(include bool) {
	al.includePII = include
}

// SetEnabled sets whether audit logging is enabled.
func (al *AuditLogger) SetEnabled(enabled bool) {
	al.enabled = enabled
}

// LogToolInvocation logs a tool invocation.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = ti.LogAuditAttrs()
	} else {
		attrs = ti.LogAttrs()
	}
	attrs = append(attrs, logging.Status(ti.Status()))

	if ti.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "tool_executed", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "tool_failed", attrs...)
	}
}

// LogAction logs one consequential action (see the Action constants).
// Actions are always logged at info level with an "action" attribute so they
// can be routed separately from tool traffic.
func (al *AuditLogger) LogAction(ctx context.Context, action string, ti *ToolInvocation) {
	if al == nil || !al.enabled || ti == nil {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = ti.LogAuditAttrs()
	} else {
		attrs = ti.LogAttrs()
	}
	attrs = append([]slog.Attr{slog.String("action", action)}, attrs...)

	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit_action", attrs...)
}
