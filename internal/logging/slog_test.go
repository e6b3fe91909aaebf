package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestWithHelpers(t *testing.T) {
	logger := slog.Default()
	if WithAgent(logger, "agent-1") == nil {
		t.Error("WithAgent returned nil")
	}
	if WithFlow(logger, "scan") == nil {
		t.Error("WithFlow returned nil")
	}
}

func TestAttrs(t *testing.T) {
	tests := []struct {
		name    string
		attr    slog.Attr
		wantKey string
		wantVal string
	}{
		{"operation", Operation("draft.generate"), KeyOperation, "draft.generate"},
		{"agent", Agent("agent-1"), KeyAgent, "agent-1"},
		{"session", Session("session_1_abc"), KeySession, "session_1_abc"},
		{"tool", Tool("followup_scan"), KeyTool, "followup_scan"},
		{"status", Status("error"), KeyStatus, "error"},
		{"state", State("connected"), KeyState, "connected"},
		{"thread", Thread("thread_001"), KeyThread, "thread_001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.wantKey {
				t.Errorf("key = %q, want %q", tt.attr.Key, tt.wantKey)
			}
			if tt.attr.Value.String() != tt.wantVal {
				t.Errorf("value = %q, want %q", tt.attr.Value.String(), tt.wantVal)
			}
		})
	}
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("test error"))
	if attr.Key != KeyError {
		t.Errorf("Err key = %q, want %q", attr.Key, KeyError)
	}
	if attr.Value.String() != "test error" {
		t.Errorf("Err value = %q, want %q", attr.Value.String(), "test error")
	}

	// Empty Group has empty key
	attr = Err(nil)
	if attr.Key != "" {
		t.Errorf("Err(nil) key = %q, want empty string (empty group)", attr.Key)
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"", "<empty>"},
		{"abc123", "[token:6 chars]"},
		{"a_very_long_token_string", "[token:24 chars]"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := SanitizeToken(tt.token)
			if result != tt.expected {
				t.Errorf("SanitizeToken(%q) = %q, want %q", tt.token, result, tt.expected)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("line one\n\nline   two"); got != "line one line two" {
		t.Errorf("Truncate flattened = %q", got)
	}

	long := strings.Repeat("a", maxLoggedText+50)
	got := Truncate(long)
	if len(got) != maxLoggedText+3 {
		t.Errorf("Truncate length = %d, want %d", len(got), maxLoggedText+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Truncate should end with ellipsis, got %q", got[len(got)-5:])
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, Options{JSON: true})
	logger.Debug("hidden")
	logger.Info("shown", Agent("a1"))
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug message should be filtered at info level")
	}
	if !strings.Contains(out, `"agent":"a1"`) {
		t.Errorf("expected JSON agent attribute, got %q", out)
	}

	buf.Reset()
	logger = NewLogger(&buf, Options{Debug: true})
	logger.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("debug message should be written in debug mode")
	}
}
