// Package followup_tools provides MCP tools for follow-up tracking: scanning
// the inbox for threads that need attention, filtering the result, setting
// reminders, handing a draft to the copilot and sending follow-ups.
//
// Sending tools are write operations and are only registered when the
// server runs with write access.
package followup_tools
