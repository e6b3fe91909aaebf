package common

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Argument names shared by several tools.
const (
	ArgThreadID  = "threadId"
	ArgThreadIDs = "threadIds"
)

// StringArg returns a trimmed string argument, or "".
func StringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return strings.TrimSpace(s)
}

// RequiredString returns a non-blank string argument.
func RequiredString(args map[string]any, name string) (string, error) {
	s := StringArg(args, name)
	if s == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return s, nil
}

// RawString returns a string argument untrimmed. Draft bodies keep their
// whitespace.
func RawString(args map[string]any, name string) (string, bool) {
	s, ok := args[name].(string)
	return s, ok
}

// BoolArg returns a boolean argument, or def when it is absent.
func BoolArg(args map[string]any, name string, def bool) bool {
	if b, ok := args[name].(bool); ok {
		return b
	}
	return def
}

// IntArg returns a numeric argument, or def when it is absent or not a
// whole number. JSON numbers arrive as float64.
func IntArg(args map[string]any, name string, def int) int {
	switch v := args[name].(type) {
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	case int:
		return v
	}
	return def
}

// JSONResult renders v as an indented JSON text result.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ResultText concatenates the text contents of a tool result.
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
