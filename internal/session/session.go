// Package session issues the opaque identifiers that scope a conversation
// with a remote agent.
//
// The agent keeps its own conversational memory keyed by the session id, so
// the id must be reused for turns of one conversation and replaced when an
// independent exchange starts.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// suffixLength is the number of random characters after the timestamp.
const suffixLength = 9

// NewID mints a fresh id of the form session_<unix-millis>_<9 random chars>.
func NewID() string {
	return newID(time.Now())
}

func newID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:suffixLength]
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), suffix)
}

// Manager holds the current conversation's session id.
type Manager struct {
	mu      sync.RWMutex
	current string
	mint    func() string
}

// NewManager returns a Manager with a fresh current session.
func NewManager() *Manager {
	return NewManagerWithGenerator(NewID)
}

// NewManagerWithGenerator returns a Manager that mints ids with gen.
func NewManagerWithGenerator(gen func() string) *Manager {
	return &Manager{current: gen(), mint: gen}
}

// Current returns the id of the ongoing conversation.
func (m *Manager) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Rotate replaces the current id with a fresh one and returns it.
func (m *Manager) Rotate() string {
	id := m.mint()
	m.mu.Lock()
	m.current = id
	m.mu.Unlock()
	return id
}

// Mint returns a fresh id for a one-off exchange without touching the
// current conversation.
func (m *Manager) Mint() string {
	return m.mint()
}
