// Package status holds the process-wide status notice and active-agent
// indicator and publishes their changes to subscribers.
//
// A notice lives for a fixed time (5s by default) and is then cleared. The
// active agent is set when an agent call starts and cleared when it finishes;
// it is a best-effort presence indicator only.
package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/inboxcopilot/internal/logging"
)

// DefaultTTL is how long a notice stays visible.
const DefaultTTL = 5 * time.Second

// defaultBuffer is the channel buffer of a subscription.
const defaultBuffer = 16

// Kind is the severity of a notice.
type Kind string

// Notice kinds.
const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Notice is a transient status message.
type Notice struct {
	ID        uint64    `json:"id"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the full observable state of the hub.
type Snapshot struct {
	Notice      *Notice `json:"notice,omitempty"`
	ActiveAgent string  `json:"active_agent,omitempty"`
}

// EventType names a change.
type EventType string

// Event types.
const (
	EventNotice        EventType = "notice"
	EventNoticeCleared EventType = "notice_cleared"
	EventActiveAgent   EventType = "active_agent"

	// EventSnapshot is never published by the hub. Stream consumers send it
	// first so a new subscriber starts from the current state.
	EventSnapshot EventType = "snapshot"
)

// Event is published to subscribers on every change.
type Event struct {
	Type     EventType `json:"type"`
	Snapshot Snapshot  `json:"state"`
}

// Option configures a Hub.
type Option func(*Hub)

// WithTTL sets how long notices stay visible.
func WithTTL(ttl time.Duration) Option {
	return func(h *Hub) { h.ttl = ttl }
}

// WithLogger sets the logger notices are mirrored to.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

// Hub is safe for concurrent use.
type Hub struct {
	mu          sync.Mutex
	ttl         time.Duration
	logger      *slog.Logger
	notice      *Notice
	timer       *time.Timer
	seq         uint64
	activeAgent string
	subs        map[uint64]chan Event
	nextSub     uint64
	closed      bool
}

// NewHub creates a Hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		ttl:    DefaultTTL,
		logger: slog.Default(),
		subs:   make(map[uint64]chan Event),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Notify replaces the current notice. The notice is cleared after the TTL
// unless another notice replaces it first.
func (h *Hub) Notify(kind Kind, text string) Notice {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	n := Notice{ID: h.seq, Kind: kind, Text: text, CreatedAt: time.Now()}
	h.notice = &n

	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	if !h.closed && h.ttl > 0 {
		id := n.ID
		h.timer = time.AfterFunc(h.ttl, func() { h.expire(id) })
	}

	level := slog.LevelInfo
	if kind == KindError {
		level = slog.LevelWarn
	}
	h.logger.Log(context.Background(), level, "status notice", "kind", string(kind), logging.Text("text", text))

	h.publishLocked(EventNotice)
	return n
}

// Success posts a success notice.
func (h *Hub) Success(text string) { h.Notify(KindSuccess, text) }

// Error posts an error notice.
func (h *Hub) Error(text string) { h.Notify(KindError, text) }

// Info posts an info notice.
func (h *Hub) Info(text string) { h.Notify(KindInfo, text) }

// Clear removes the current notice.
func (h *Hub) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clearLocked()
}

func (h *Hub) expire(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.notice == nil || h.notice.ID != id {
		return
	}
	h.clearLocked()
}

func (h *Hub) clearLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	if h.notice == nil {
		return
	}
	h.notice = nil
	h.publishLocked(EventNoticeCleared)
}

// Notice returns the visible notice, if any.
func (h *Hub) Notice() (Notice, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.notice == nil {
		return Notice{}, false
	}
	return *h.notice, true
}

// Begin marks agentID as active and returns the function that clears it.
// The returned function only clears the indicator while agentID is still
// the active agent.
func (h *Hub) Begin(agentID string) (end func()) {
	h.SetActiveAgent(agentID)
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if h.activeAgent == agentID {
				h.activeAgent = ""
				h.publishLocked(EventActiveAgent)
			}
		})
	}
}

// SetActiveAgent sets the active-agent indicator ("" clears it).
func (h *Hub) SetActiveAgent(agentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.activeAgent == agentID {
		return
	}
	h.activeAgent = agentID
	h.publishLocked(EventActiveAgent)
}

// ActiveAgent returns the agent currently working, or "".
func (h *Hub) ActiveAgent() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.activeAgent
}

// Snapshot returns the current state.
func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

func (h *Hub) snapshotLocked() Snapshot {
	s := Snapshot{ActiveAgent: h.activeAgent}
	if h.notice != nil {
		n := *h.notice
		s.Notice = &n
	}
	return s
}

// Subscribe returns a channel of events and a cancel function that closes it.
// Slow subscribers miss events rather than blocking the hub; the current
// state is always available through Snapshot.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, defaultBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

func (h *Hub) publishLocked(t EventType) {
	ev := Event{Type: t, Snapshot: h.snapshotLocked()}
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close stops the expiry timer and closes all subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
