package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryOf(t *testing.T) {
	tests := map[string]string{
		"inbox_fetch":          "Inbox",
		"copilot_chat":         "Copilot",
		"followup_send_batch":  "Follow-Ups",
		"gmail_connect":        "Connection",
		"status_get":           "Connection",
		"schedule_trigger_now": "Schedule",
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			i := categoryOf(name)
			require.GreaterOrEqual(t, i, 0)
			assert.Equal(t, want, toolCategories[i].title)
		})
	}
	assert.Equal(t, -1, categoryOf("something"))
}

func TestNewToolDoc(t *testing.T) {
	tool := mcp.NewTool("followup_set_reminder",
		mcp.WithDescription("Set a reminder"),
		mcp.WithString("threadId", mcp.Required(), mcp.Description("Thread to remind about")),
		mcp.WithString("date", mcp.Description("YYYY-MM-DD | empty clears")),
		mcp.WithBoolean("all"),
	)

	doc := newToolDoc(tool, false)
	require.Len(t, doc.args, 3)
	assert.Equal(t, argDoc{name: "threadId", kind: "string", required: true, description: "Thread to remind about"}, doc.args[0])
	assert.Equal(t, "all", doc.args[1].name)
	assert.Equal(t, "boolean", doc.args[1].kind)
	assert.Equal(t, "date", doc.args[2].name)

	var buf bytes.Buffer
	require.NoError(t, renderToolDocs(&buf, []toolDoc{doc}))
	assert.Contains(t, buf.String(), "| `date` | string | no | YYYY-MM-DD \\| empty clears |")
}

func TestCollectToolDocs(t *testing.T) {
	docs, err := collectToolDocs()
	require.NoError(t, err)

	var write []string
	for _, d := range docs {
		if d.write {
			write = append(write, d.name)
		}
	}
	assert.Equal(t, []string{
		"copilot_send_reply", "followup_send", "followup_send_batch", "schedule_toggle", "schedule_trigger_now",
	}, write)

	var buf bytes.Buffer
	require.NoError(t, renderToolDocs(&buf, docs))
	md := buf.String()

	assert.True(t, strings.HasPrefix(md, "# inboxcopilot MCP tools\n"))
	var last int
	for _, c := range toolCategories {
		i := strings.Index(md, "## "+c.title+"\n")
		require.GreaterOrEqual(t, i, 0, c.title)
		assert.Greater(t, i, last, "categories keep their declared order")
		last = i
	}
	assert.NotContains(t, md, "## Uncategorized")
	assert.Contains(t, md, "### `copilot_send_reply` (**write**)")
	assert.Contains(t, md, "### `inbox_fetch`\n")
}
