// Package followup runs follow-up scans through the follow-up agent and keeps
// the resulting items.
//
// The agent decides which emails need attention; this package only coerces
// its answer into Items, keeps a category filter over them and sends the
// drafted follow-ups through the copilot agent. Reminder dates are kept
// locally and survive rescans of the same thread.
package followup
