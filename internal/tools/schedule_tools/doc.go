// Package schedule_tools provides MCP tools for the recurring follow-up
// scan: reading the schedule and its recent runs, pausing or resuming it and
// running it immediately.
//
// Toggling and triggering are write operations and are only registered when
// the server runs with write access.
package schedule_tools
