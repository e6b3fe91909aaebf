package copilot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxcopilot/internal/agent"
	"github.com/teemow/inboxcopilot/internal/clipboard"
	"github.com/teemow/inboxcopilot/internal/session"
	"github.com/teemow/inboxcopilot/internal/status"
)

type call struct {
	message   string
	agentID   string
	sessionID string
}

// fakeAgent answers calls from a queue of scripted replies.
type fakeAgent struct {
	mu      sync.Mutex
	calls   []call
	replies []reply
}

type reply struct {
	result *agent.Result
	err    error
}

func (f *fakeAgent) Invoke(_ context.Context, message, agentID, sessionID string) (*agent.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{message, agentID, sessionID})
	if len(f.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.result, r.err
}

func (f *fakeAgent) push(results ...*agent.Result) {
	for _, r := range results {
		f.replies = append(f.replies, reply{result: r})
	}
}

func (f *fakeAgent) fail(err error) {
	f.replies = append(f.replies, reply{err: err})
}

type fakeObserver struct {
	successes, authPrompts int
}

func (o *fakeObserver) ObserveSuccess(context.Context)      { o.successes++ }
func (o *fakeObserver) ObserveAuthRequired(context.Context) { o.authPrompts++ }

// payload builds a successful envelope whose result is a JSON-encoded string.
func payload(s string) *agent.Result {
	raw, _ := json.Marshal(s)
	return &agent.Result{Success: true, Response: &agent.Response{Result: raw}}
}

type fixture struct {
	copilot  *Copilot
	agent    *fakeAgent
	hub      *status.Hub
	observer *fakeObserver
	copied   []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{agent: &fakeAgent{}, observer: &fakeObserver{}}
	f.hub = status.NewHub(status.WithTTL(0))
	t.Cleanup(f.hub.Close)

	n := 0
	sessions := session.NewManagerWithGenerator(func() string {
		n++
		return fmt.Sprintf("session_%d", n)
	})

	f.copilot = New(Config{
		Invoker:    f.agent,
		Sessions:   sessions,
		Status:     f.hub,
		Connection: f.observer,
		AgentID:    "copilot-agent",
		Clipboard: clipboard.CopierFunc(func(text string) bool {
			f.copied = append(f.copied, text)
			return true
		}),
	})
	return f
}

func (f *fixture) notice(t *testing.T) status.Notice {
	t.Helper()
	n, ok := f.hub.Notice()
	require.True(t, ok, "expected a notice")
	return n
}

var testEmail = Email{
	ID:       "m1",
	ThreadID: "t1",
	Subject:  "A",
	Sender:   "alice@example.com",
	Snippet:  "Can we meet on Friday?",
}

func TestCopilot_OpenGeneratesDraft(t *testing.T) {
	f := newFixture(t)
	f.agent.push(payload(`{"draft_subject":"Re: A","draft_body":"Friday works.","thread_summary":"Meeting request","suggested_actions":["Accept","Propose another day"],"tone":"professional","status":"draft_ready"}`))

	draft, err := f.copilot.Open(context.Background(), testEmail)
	require.NoError(t, err)

	want := &Draft{
		Subject:          "Re: A",
		Body:             "Friday works.",
		ThreadSummary:    "Meeting request",
		SuggestedActions: []string{"Accept", "Propose another day"},
		Tone:             "professional",
		Status:           StatusDraftReady,
	}
	if diff := cmp.Diff(want, draft); diff != "" {
		t.Errorf("draft mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, f.agent.calls, 1)
	assert.Equal(t, `Draft a professional reply to this email thread. Subject: "A". From: alice@example.com. Context: Can we meet on Friday?`, f.agent.calls[0].message)
	assert.Equal(t, "copilot-agent", f.agent.calls[0].agentID)

	st := f.copilot.State()
	assert.True(t, st.Open)
	require.Len(t, st.Transcript, 1)
	assert.Equal(t, RoleAssistant, st.Transcript[0].Role)
	assert.Equal(t, msgDrafted, st.Transcript[0].Content)
	assert.Equal(t, "Friday works.", st.Transcript[0].Draft.Body)
	assert.False(t, st.Loading)
	assert.Empty(t, f.hub.ActiveAgent())
}

func TestCopilot_GenerateDraftDefaults(t *testing.T) {
	f := newFixture(t)
	f.copilot.SetTone("friendly")
	f.agent.push(payload(`Sure, here is a reply: see you Friday.`))

	draft, err := f.copilot.Open(context.Background(), testEmail)
	require.NoError(t, err)

	want := &Draft{
		Subject: "Re: A",
		Body:    "Sure, here is a reply: see you Friday.",
		Tone:    "friendly",
		Status:  StatusDraftReady,
	}
	if diff := cmp.Diff(want, draft); diff != "" {
		t.Errorf("draft mismatch (-want +got):\n%s", diff)
	}
}

func TestCopilot_GenerateDraftFailureKeepsDraft(t *testing.T) {
	f := newFixture(t)
	f.agent.push(payload(`{"draft_body":"first"}`))
	_, err := f.copilot.Open(context.Background(), testEmail)
	require.NoError(t, err)
	before := f.copilot.Draft()

	f.agent.push(&agent.Result{Success: false, Error: "rate limited"})
	_, err = f.copilot.GenerateDraft(context.Background())
	require.ErrorIs(t, err, agent.ErrNoResult)
	assert.Equal(t, "rate limited", f.notice(t).Text)

	f.agent.push(&agent.Result{Success: false})
	_, err = f.copilot.GenerateDraft(context.Background())
	require.Error(t, err)
	assert.Equal(t, msgDraftFailed, f.notice(t).Text)

	f.agent.fail(errors.New("connection reset"))
	_, err = f.copilot.GenerateDraft(context.Background())
	require.Error(t, err)
	n := f.notice(t)
	assert.Equal(t, status.KindError, n.Kind)
	assert.Equal(t, msgDraftError, n.Text)

	if diff := cmp.Diff(before, f.copilot.Draft()); diff != "" {
		t.Errorf("draft changed after failures (-before +after):\n%s", diff)
	}
	assert.Len(t, f.copilot.Transcript(), 1)
}

func TestCopilot_GenerateDraftRequiresEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.copilot.GenerateDraft(context.Background())
	assert.ErrorIs(t, err, ErrNoEmailSelected)
	assert.Empty(t, f.agent.calls)
}

func TestCopilot_ChatMergesNonDestructively(t *testing.T) {
	f := newFixture(t)
	f.agent.push(payload(`{"draft_subject":"Re: A","draft_body":"old","tone":"professional","thread_summary":"sum"}`))
	_, err := f.copilot.Open(context.Background(), testEmail)
	require.NoError(t, err)

	f.agent.push(payload(`{"draft_body":"new"}`))
	msg, err := f.copilot.Chat(context.Background(), "make it shorter")
	require.NoError(t, err)

	want := &Draft{
		Subject:       "Re: A",
		Body:          "new",
		ThreadSummary: "sum",
		Tone:          "professional",
		Status:        StatusDraftReady,
	}
	if diff := cmp.Diff(want, f.copilot.Draft()); diff != "" {
		t.Errorf("draft mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "new", msg.Content)
	require.NotNil(t, msg.Draft)
	assert.Equal(t, "new", msg.Draft.Body)
}

func TestCopilot_ChatWithoutDraftBody(t *testing.T) {
	tests := []struct {
		name        string
		result      *agent.Result
		wantContent string
	}{
		{
			name:        "message only",
			result:      payload(`{"message":"Do you want me to mention the budget?"}`),
			wantContent: "Do you want me to mention the budget?",
		},
		{
			name:        "plain text",
			result:      payload(`I can do that.`),
			wantContent: "I can do that.",
		},
		{
			name:        "empty object",
			result:      payload(`{}`),
			wantContent: msgChatFallback,
		},
		{
			name:        "blank draft body",
			result:      payload(`{"draft_body":"  "}`),
			wantContent: msgChatFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.agent.push(payload(`{"draft_body":"old"}`))
			_, err := f.copilot.Open(context.Background(), testEmail)
			require.NoError(t, err)

			f.agent.push(tt.result)
			msg, err := f.copilot.Chat(context.Background(), "hello")
			require.NoError(t, err)

			assert.Equal(t, tt.wantContent, msg.Content)
			assert.Nil(t, msg.Draft)
			assert.Equal(t, "old", f.copilot.Draft().Body)
		})
	}
}

func TestCopilot_ChatRejections(t *testing.T) {
	f := newFixture(t)

	_, err := f.copilot.Chat(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	f.copilot.setLoading(true)
	_, err = f.copilot.Chat(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrBusy)
	f.copilot.setLoading(false)

	assert.Empty(t, f.agent.calls)
	assert.Empty(t, f.copilot.Transcript())
}

func TestCopilot_ChatFailure(t *testing.T) {
	f := newFixture(t)
	f.agent.push(payload(`{"draft_body":"old"}`))
	_, err := f.copilot.Open(context.Background(), testEmail)
	require.NoError(t, err)

	f.agent.push(&agent.Result{Success: false, Error: "agent overloaded"})
	_, err = f.copilot.Chat(context.Background(), "shorter please")
	require.ErrorIs(t, err, agent.ErrNoResult)

	tr := f.copilot.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, RoleUser, tr[1].Role)
	assert.Equal(t, "shorter please", tr[1].Content)
	assert.Equal(t, "old", f.copilot.Draft().Body)
	assert.Equal(t, "agent overloaded", f.notice(t).Text)
}

func TestCopilot_SessionRotation(t *testing.T) {
	f := newFixture(t)
	other := Email{ThreadID: "t2", Subject: "B", Sender: "bob@example.com"}

	f.agent.push(payload(`{"draft_body":"x"}`), payload(`{"draft_body":"y"}`))
	_, err := f.copilot.Open(context.Background(), testEmail)
	require.NoError(t, err)
	_, err = f.copilot.Open(context.Background(), other)
	require.NoError(t, err)
	assert.NotEqual(t, f.agent.calls[0].sessionID, f.agent.calls[1].sessionID)

	f.agent.push(payload(`{"message":"one"}`), payload(`{"message":"two"}`))
	_, err = f.copilot.Chat(context.Background(), "first")
	require.NoError(t, err)
	_, err = f.copilot.Chat(context.Background(), "second")
	require.NoError(t, err)

	assert.Equal(t, f.agent.calls[1].sessionID, f.agent.calls[2].sessionID)
	assert.Equal(t, f.agent.calls[2].sessionID, f.agent.calls[3].sessionID)
}

func TestCopilot_OpenResetsConversation(t *testing.T) {
	f := newFixture(t)
	f.agent.push(payload(`{"draft_body":"x","tone":"casual"}`), payload(`{"message":"ok"}`))
	_, err := f.copilot.Open(context.Background(), testEmail)
	require.NoError(t, err)
	_, err = f.copilot.Chat(context.Background(), "hi")
	require.NoError(t, err)
	require.NoError(t, f.copilot.StartEdit())

	f.agent.push(payload(`{"draft_body":"y"}`))
	_, err = f.copilot.Open(context.Background(), testEmail)
	require.NoError(t, err)

	st := f.copilot.State()
	assert.Len(t, st.Transcript, 1)
	assert.False(t, st.Editing)
	assert.Equal(t, "professional", st.Draft.Tone, "previous draft must not leak into a reopened copilot")
}

func TestCopilot_EditAndSend(t *testing.T) {
	f := newFixture(t)
	f.agent.push(payload(`{"draft_subject":"Re: A","draft_body":"original"}`))
	_, err := f.copilot.Open(context.Background(), testEmail)
	require.NoError(t, err)

	require.NoError(t, f.copilot.StartEdit())
	assert.Equal(t, "original", f.copilot.State().EditBuffer)
	require.NoError(t, f.copilot.UpdateEdit("edited by hand"))

	assert.True(t, f.copilot.Copy())
	assert.Equal(t, []string{"edited by hand"}, f.copied)
	assert.True(t, f.copilot.Copied())

	f.agent.push(payload(`{"message":"Sent!","status":"sent"}`))
	n, err := f.copilot.SendReply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.KindSuccess, n.Kind)
	assert.Equal(t, "Sent!", n.Text)

	last := f.agent.calls[len(f.agent.calls)-1]
	assert.Equal(t, `Send this reply to thread t1: Subject: "Re: A" Body: edited by hand`, last.message)
	assert.Equal(t, f.agent.calls[0].sessionID, last.sessionID)

	st := f.copilot.State()
	assert.False(t, st.Editing)
	assert.Equal(t, "original", st.Draft.Body)
}

func TestCopilot_CancelEditUsesDraftBody(t *testing.T) {
	f := newFixture(t)
	f.agent.push(payload(`{"draft_body":"original"}`))
	_, err := f.copilot.Open(context.Background(), testEmail)
	require.NoError(t, err)

	require.NoError(t, f.copilot.UpdateEdit("scratch"))
	f.copilot.CancelEdit()
	assert.True(t, f.copilot.Copy())
	assert.Equal(t, []string{"original"}, f.copied)
}

func TestCopilot_SendReplyOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		result   *agent.Result
		wantKind status.Kind
		wantText string
	}{
		{"default success", payload(`{}`), status.KindSuccess, msgReplySent},
		{"reported error", payload(`{"status":"error","message":"Recipient rejected"}`), status.KindError, "Recipient rejected"},
		{"plain text", payload(`Reply delivered.`), status.KindSuccess, "Reply delivered."},
		{"failed envelope", &agent.Result{Success: false, Error: "gmail send failed"}, status.KindError, "gmail send failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.agent.push(payload(`{"draft_body":"hello"}`), tt.result)
			_, err := f.copilot.Open(context.Background(), testEmail)
			require.NoError(t, err)

			n, err := f.copilot.SendReply(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, n.Kind)
			assert.Equal(t, tt.wantText, n.Text)
		})
	}
}

func TestCopilot_SendReplyGuards(t *testing.T) {
	f := newFixture(t)
	_, err := f.copilot.SendReply(context.Background())
	assert.ErrorIs(t, err, ErrNoEmailSelected)

	f.agent.push(payload(`{"draft_body":""}`))
	_, err = f.copilot.Open(context.Background(), testEmail)
	require.NoError(t, err)

	_, err = f.copilot.SendReply(context.Background())
	assert.ErrorIs(t, err, ErrNoDraft)
	assert.Len(t, f.agent.calls, 1)
}

func TestCopilot_CopyFailure(t *testing.T) {
	f := newFixture(t)
	f.copilot.copier = clipboard.CopierFunc(func(string) bool { return false })
	assert.False(t, f.copilot.Copy())
	assert.False(t, f.copilot.Copied())
}

func TestCopilot_CopiedExpires(t *testing.T) {
	f := newFixture(t)
	f.copilot.copiedTTL = 10 * time.Millisecond
	assert.True(t, f.copilot.Copy())
	assert.True(t, f.copilot.Copied())
	assert.Eventually(t, func() bool { return !f.copilot.Copied() }, time.Second, 5*time.Millisecond)
}

func TestCopilot_FetchInbox(t *testing.T) {
	f := newFixture(t)
	f.agent.push(payload(`{"message":"You have 2 new emails","thread_summary":"Two threads","emails":[{"id":"m1","thread_id":"t1","subject":"A","sender":"alice@example.com","is_unread":true},"junk",{"threadId":"t2","subject":"B","from":"bob@example.com"}]}`))

	view, err := f.copilot.FetchInbox(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, instructionFetchAll, f.agent.calls[0].message)
	assert.Equal(t, "You have 2 new emails", view.Summary)
	want := []Email{
		{ID: "m1", ThreadID: "t1", Subject: "A", Sender: "alice@example.com", Unread: true},
		{ID: "t2", ThreadID: "t2", Subject: "B", Sender: "bob@example.com"},
	}
	if diff := cmp.Diff(want, view.Emails); diff != "" {
		t.Errorf("emails mismatch (-want +got):\n%s", diff)
	}

	e, ok := f.copilot.FindEmail("t2")
	assert.True(t, ok)
	assert.Equal(t, "B", e.Subject)
	assert.Equal(t, "Two threads", f.copilot.State().ThreadContent)
	assert.Equal(t, 1, f.observer.successes)
	assert.Equal(t, status.KindInfo, f.notice(t).Kind)
}

func TestCopilot_FetchInboxSearch(t *testing.T) {
	f := newFixture(t)
	f.agent.push(payload(`Found nothing.`))

	view, err := f.copilot.FetchInbox(context.Background(), " invoices ")
	require.NoError(t, err)
	assert.Equal(t, "Search my Gmail inbox for: invoices", f.agent.calls[0].message)
	assert.Equal(t, "Found nothing.", view.Summary)
	assert.Empty(t, view.Emails)
}

func TestCopilot_FetchInboxAuthorization(t *testing.T) {
	f := newFixture(t)
	f.agent.push(payload(`{"message":"Connect here: https://composio.dev/connect/abc123"}`))

	_, err := f.copilot.FetchInbox(context.Background(), "")
	var authErr *agent.AuthorizationRequiredError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "https://composio.dev/connect/abc123", authErr.URL)
	assert.Equal(t, 1, f.observer.authPrompts)
	assert.Zero(t, f.observer.successes)
	assert.Equal(t, msgInboxAuth, f.notice(t).Text)
}

func TestCopilot_FetchInboxFailure(t *testing.T) {
	f := newFixture(t)
	f.agent.push(&agent.Result{Success: false})
	_, err := f.copilot.FetchInbox(context.Background(), "")
	require.ErrorIs(t, err, agent.ErrNoResult)
	assert.Equal(t, msgInboxFailed, f.notice(t).Text)

	f.agent.fail(errors.New("timeout"))
	_, err = f.copilot.FetchInbox(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, msgInboxError, f.notice(t).Text)
	assert.False(t, f.copilot.State().FetchingInbox)
}

func TestCopilot_SelectEmailLoadsThread(t *testing.T) {
	f := newFixture(t)
	f.agent.push(payload(`{"message":"Alice asks about Friday."}`))

	require.NoError(t, f.copilot.SelectEmail(context.Background(), testEmail))

	assert.Equal(t, `Fetch the full email thread for thread ID: t1. Subject: "A" from alice@example.com`, f.agent.calls[0].message)
	st := f.copilot.State()
	assert.False(t, st.Open)
	assert.False(t, st.LoadingThread)
	assert.Equal(t, "Alice asks about Friday.", st.ThreadContent)

	f.agent.push(payload(`{"draft_body":"ok"}`))
	_, err := f.copilot.GenerateDraft(context.Background())
	require.NoError(t, err)
	assert.Contains(t, f.agent.calls[1].message, "Context: Alice asks about Friday.")
}

func TestCopilot_SelectEmailTransportError(t *testing.T) {
	f := newFixture(t)
	f.agent.fail(errors.New("boom"))
	require.Error(t, f.copilot.SelectEmail(context.Background(), testEmail))
	assert.Equal(t, msgThreadError, f.notice(t).Text)
}

func TestCopilot_Seed(t *testing.T) {
	f := newFixture(t)
	before := f.copilot.State().SessionID

	email := Email{ThreadID: "t9", Subject: "Invoice", Sender: "ap@example.com", Snippet: "Awaiting your reply for 5 days"}
	f.copilot.Seed(email, Draft{Body: "Just following up."}, "")

	st := f.copilot.State()
	assert.NotEqual(t, before, st.SessionID)
	assert.True(t, st.Open)
	assert.Equal(t, "Awaiting your reply for 5 days", st.ThreadContent)
	want := &Draft{Subject: "Re: Invoice", Body: "Just following up.", Tone: DefaultTone, Status: StatusDraftReady}
	if diff := cmp.Diff(want, st.Draft); diff != "" {
		t.Errorf("draft mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, st.Transcript, 1)
	assert.Equal(t, msgSeeded, st.Transcript[0].Content)

	f.agent.push(payload(`{"draft_body":"Following up on the invoice."}`))
	_, err := f.copilot.Chat(context.Background(), "mention the invoice")
	require.NoError(t, err)
	assert.Equal(t, st.SessionID, f.agent.calls[0].sessionID)
	assert.Equal(t, "Re: Invoice", f.copilot.Draft().Subject)
}

func TestCopilot_StateIsACopy(t *testing.T) {
	f := newFixture(t)
	f.agent.push(payload(`{"draft_body":"x","suggested_actions":["a"]}`))
	_, err := f.copilot.Open(context.Background(), testEmail)
	require.NoError(t, err)

	st := f.copilot.State()
	st.Draft.SuggestedActions[0] = "mutated"
	st.Transcript[0].Content = "mutated"

	again := f.copilot.State()
	assert.Equal(t, []string{"a"}, again.Draft.SuggestedActions)
	assert.Equal(t, msgDrafted, again.Transcript[0].Content)
}

func TestReconcile(t *testing.T) {
	prev := &Draft{Subject: "Re: A", Body: "old", Tone: "professional", SuggestedActions: []string{"x"}}

	got := reconcile(prev, agent.Fields(map[string]any{"draft_body": "new"}), "new", defaults{})
	want := &Draft{Subject: "Re: A", Body: "new", Tone: "professional", SuggestedActions: []string{"x"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reconcile mismatch (-want +got):\n%s", diff)
	}

	got = reconcile(nil, agent.Fields(nil), "", defaults{subject: "Re: B", tone: "casual", status: StatusDraftReady})
	want = &Draft{Subject: "Re: B", Tone: "casual", Status: StatusDraftReady}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reconcile defaults mismatch (-want +got):\n%s", diff)
	}
}
