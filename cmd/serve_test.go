package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxcopilot/internal/tools/tooltest"
)

func TestParseCommaSeparatedList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: nil},
		{name: "single origin", input: "https://copilot.example.com", expected: []string{"https://copilot.example.com"}},
		{
			name:     "origin patterns with spaces",
			input:    "localhost:*, *.example.com ,",
			expected: []string{"localhost:*", "*.example.com"},
		},
		{name: "only separators", input: " , ,", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseCommaSeparatedList(tt.input))
		})
	}
}

func TestApplyServeEnv(t *testing.T) {
	env := map[string]string{
		"INBOXCOPILOT_ALLOWED_ORIGINS": "localhost:*",
		"METRICS_ENABLED":              "false",
		"METRICS_ADDR":                 ":9191",
	}
	getenv := func(k string) string { return env[k] }
	defaults := func() serveOptions {
		return serveOptions{metrics: MetricsConfig{Enabled: true, Addr: ":9090"}}
	}

	t.Run("flags not set", func(t *testing.T) {
		opts := defaults()
		applyServeEnv(&opts, func(string) bool { return false }, getenv)
		assert.Equal(t, []string{"localhost:*"}, opts.allowedOrigins)
		assert.Equal(t, MetricsConfig{Enabled: false, Addr: ":9191"}, opts.metrics)
	})

	t.Run("flags win", func(t *testing.T) {
		opts := defaults()
		opts.allowedOrigins = []string{"*.example.com"}
		applyServeEnv(&opts, func(string) bool { return true }, getenv)
		assert.Equal(t, []string{"*.example.com"}, opts.allowedOrigins)
		assert.Equal(t, MetricsConfig{Enabled: true, Addr: ":9090"}, opts.metrics)
	})

	t.Run("unparsable bool keeps default", func(t *testing.T) {
		opts := defaults()
		applyServeEnv(&opts, func(string) bool { return false }, func(k string) string {
			if k == "METRICS_ENABLED" {
				return "sometimes"
			}
			return ""
		})
		assert.True(t, opts.metrics.Enabled)
		assert.Nil(t, opts.allowedOrigins)
	})
}

func TestRegisterAllTools(t *testing.T) {
	env := tooltest.NewEnv(t)

	readOnly := tooltest.NewMCPServer()
	require.NoError(t, registerAllTools(readOnly, env.SC, true))
	full := tooltest.NewMCPServer()
	require.NoError(t, registerAllTools(full, env.SC, false))

	assert.Len(t, tooltest.ToolNames(full), len(tooltest.ToolNames(readOnly))+5)
	assert.Contains(t, tooltest.ToolNames(readOnly), "status_get")
	assert.NotContains(t, tooltest.ToolNames(readOnly), "followup_send")
}

func TestRunServe_UnsupportedTransport(t *testing.T) {
	err := runServe(serveOptions{transport: "sse"})
	assert.EqualError(t, err, "unsupported transport type: sse (supported: stdio, streamable-http)")
}
