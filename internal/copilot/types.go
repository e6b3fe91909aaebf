package copilot

import (
	"context"
	"slices"
	"time"

	"github.com/teemow/inboxcopilot/internal/agent"
)

// Email is one message as listed in the inbox.
type Email struct {
	ID        string `json:"id"`
	ThreadID  string `json:"thread_id"`
	Subject   string `json:"subject"`
	Sender    string `json:"sender"`
	Snippet   string `json:"snippet,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Unread    bool   `json:"is_unread"`
}

// Draft is the reply the copilot is working on.
type Draft struct {
	Subject          string   `json:"draft_subject"`
	Body             string   `json:"draft_body"`
	ThreadSummary    string   `json:"thread_summary,omitempty"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
	Tone             string   `json:"tone,omitempty"`
	Status           string   `json:"status,omitempty"`
	Message          string   `json:"message,omitempty"`
}

// Clone returns a deep copy of d.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	c := *d
	c.SuggestedActions = slices.Clone(d.SuggestedActions)
	return &c
}

// Role is the author of a chat message.
type Role string

// Chat roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one transcript entry. Entries are never modified once
// appended.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Draft     *Draft    `json:"draft,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// InboxView is what an inbox fetch produced.
type InboxView struct {
	// Summary is the agent's text answer (a summary or listing of the inbox).
	Summary string `json:"summary,omitempty"`

	// Emails is the structured list, when the agent returned one.
	Emails []Email `json:"emails,omitempty"`
}

// State is a point-in-time copy of the copilot state.
type State struct {
	SessionID     string        `json:"session_id"`
	Email         *Email        `json:"email,omitempty"`
	Open          bool          `json:"open"`
	ThreadContent string        `json:"thread_content,omitempty"`
	Draft         *Draft        `json:"draft,omitempty"`
	Transcript    []ChatMessage `json:"transcript"`
	Editing       bool          `json:"editing"`
	EditBuffer    string        `json:"edit_buffer,omitempty"`
	Loading       bool          `json:"loading"`
	LoadingThread bool          `json:"loading_thread"`
	FetchingInbox bool          `json:"fetching_inbox"`
	Copied        bool          `json:"copied"`
	Inbox         []Email       `json:"inbox,omitempty"`
}

// ConnectionObserver receives evidence about the mail connection.
type ConnectionObserver interface {
	ObserveSuccess(ctx context.Context)
	ObserveAuthRequired(ctx context.Context)
}

type nopObserver struct{}

func (nopObserver) ObserveSuccess(context.Context)      {}
func (nopObserver) ObserveAuthRequired(context.Context) {}

// emailsFrom coerces an optional "emails" list. Entries that are not objects
// are skipped.
func emailsFrom(p agent.Payload) []Email {
	list, ok := p.List("emails")
	if !ok {
		return nil
	}
	out := make([]Email, 0, len(list))
	for _, v := range list {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		e := agent.Fields(m)
		email := Email{
			ID:        firstString(e, "id", "message_id"),
			ThreadID:  firstString(e, "thread_id", "threadId"),
			Subject:   firstString(e, "subject"),
			Sender:    firstString(e, "sender", "from"),
			Snippet:   firstString(e, "snippet", "preview"),
			Timestamp: firstString(e, "timestamp", "date"),
		}
		if email.ThreadID == "" {
			email.ThreadID = email.ID
		}
		if email.ID == "" {
			email.ID = email.ThreadID
		}
		if unread, ok := e.Bool("is_unread"); ok {
			email.Unread = unread
		} else if unread, ok := e.Bool("isUnread"); ok {
			email.Unread = unread
		}
		out = append(out, email)
	}
	return out
}

func firstString(p agent.Payload, keys ...string) string {
	for _, k := range keys {
		if s, ok := p.String(k); ok {
			return s
		}
	}
	return ""
}
