package instrumentation

import "strings"

// Cardinality management helpers for metrics.
//
// Agent output, thread identifiers and raw request paths are unbounded. Only
// values from the fixed sets below should end up as metric labels.

// Scheduler operation label values.
const (
	OperationGet     = "get"
	OperationLogs    = "logs"
	OperationPause   = "pause"
	OperationResume  = "resume"
	OperationTrigger = "trigger"
)

// Flow label values for authorization prompts and agent calls.
const (
	FlowConnect  = "connect"
	FlowScan     = "scan"
	FlowInbox    = "inbox"
	FlowDraft    = "draft"
	FlowChat     = "chat"
	FlowSend     = "send"
	FlowFollowUp = "followup"
	FlowThread   = "thread"
)

// LabelOther replaces label values outside an allowed set.
const LabelOther = "other"

// BoundedLabel returns value when it is one of allowed (case-insensitive),
// else LabelOther.
//
// Example:
//
//	BoundedLabel("/mcp", "/mcp", "/events")     // "/mcp"
//	BoundedLabel("/x/123", "/mcp", "/events")   // "other"
func BoundedLabel(value string, allowed ...string) string {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return a
		}
	}
	return LabelOther
}

// ShortID shortens an identifier for lower-cardinality logging.
// Identifiers of 8 characters or less are returned unchanged.
//
//	ShortID("session_1718000000000_ab12cd34e") // "session_"
func ShortID(id string) string {
	if id == "" {
		return "unknown"
	}
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
