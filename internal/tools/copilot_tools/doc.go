// Package copilot_tools provides MCP tools for the reply copilot: fetching
// and selecting inbox mail, drafting a reply, refining it in conversation,
// editing it by hand, copying it and sending it.
//
// The send tool is a write operation and is only registered when the server
// runs with write access.
package copilot_tools
