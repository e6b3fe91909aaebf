// Package clipboard copies draft text to the system clipboard.
package clipboard

import (
	"log/slog"

	"github.com/atotto/clipboard"
)

// clipboardWriteAll is a package-level variable to allow mocking in tests.
var clipboardWriteAll = clipboard.WriteAll

// Copier copies text and reports whether it worked. Failures are never
// fatal; callers only flip a local indicator.
type Copier interface {
	Copy(text string) bool
}

// CopierFunc adapts a function to the Copier interface.
type CopierFunc func(text string) bool

// Copy calls f.
func (f CopierFunc) Copy(text string) bool { return f(text) }

// System copies to the desktop clipboard.
type System struct {
	logger *slog.Logger
}

// NewSystem returns a System copier. A nil logger uses slog.Default().
func NewSystem(logger *slog.Logger) *System {
	if logger == nil {
		logger = slog.Default()
	}
	return &System{logger: logger.With("component", "clipboard")}
}

// Available reports whether a clipboard utility was found on this host.
func (s *System) Available() bool {
	return !clipboard.Unsupported
}

// Copy writes text to the clipboard.
func (s *System) Copy(text string) bool {
	if err := clipboardWriteAll(text); err != nil {
		s.logger.Debug("clipboard copy failed", "error", err)
		return false
	}
	return true
}
