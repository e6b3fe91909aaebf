package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation = "operation"
	KeyAgent     = "agent"
	KeySession   = "session"
	KeyFlow      = "flow"
	KeyDuration  = "duration"
	KeyStatus    = "status"
	KeyState     = "state"
	KeyError     = "error"
	KeyTool      = "tool"
	KeyThread    = "thread"
)

// maxLoggedText bounds how much agent output ends up in a single log line.
const maxLoggedText = 200

// Options configures the process logger.
type Options struct {
	// Debug lowers the level to slog.LevelDebug.
	Debug bool

	// JSON selects the JSON handler (used for HTTP deployments).
	JSON bool
}

// NewLogger builds the process logger writing to w.
func NewLogger(w io.Writer, opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// WithAgent returns a logger with the agent attribute set.
func WithAgent(logger *slog.Logger, agentID string) *slog.Logger {
	return logger.With(slog.String(KeyAgent, agentID))
}

// WithFlow returns a logger with the flow attribute set
// (draft, chat, scan, connect, schedule, ...).
func WithFlow(logger *slog.Logger, flow string) *slog.Logger {
	return logger.With(slog.String(KeyFlow, flow))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Agent returns a slog attribute for the agent identifier.
func Agent(agentID string) slog.Attr {
	return slog.String(KeyAgent, agentID)
}

// Session returns a slog attribute for the session identifier.
func Session(sessionID string) slog.Attr {
	return slog.String(KeySession, sessionID)
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// State returns a slog attribute for a state machine state.
func State(state string) slog.Attr {
	return slog.String(KeyState, state)
}

// Thread returns a slog attribute for a mail thread identifier.
func Thread(threadID string) slog.Attr {
	return slog.String(KeyThread, threadID)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
// This allows safely passing Err(maybeNilErr) without adding empty attributes.
//
// Usage:
//
//	logger.Info("operation", logging.Err(err))  // Safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// SanitizeToken returns a masked version of a token for logging.
// It returns a length indicator without exposing any token content,
// as even partial token prefixes can aid attacks.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// Truncate shortens free text coming back from an agent so it can be logged
// without flooding the output. Newlines are flattened.
func Truncate(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxLoggedText {
		return text
	}
	return string(runes[:maxLoggedText]) + "..."
}

// Text returns a slog attribute with truncated agent text.
func Text(key, text string) slog.Attr {
	return slog.String(key, Truncate(text))
}
