// Package connection_tools provides MCP tools for the Gmail connection and
// the shared status line: checking and establishing the connection through
// the copilot agent, and reading the current notice and active agent.
package connection_tools
