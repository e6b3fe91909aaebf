// Package connection tracks whether the remote agent can reach the user's
// Gmail account.
//
// The state is only ever inferred: Connect asks the copilot agent for the most
// recent email and classifies the answer, and other flows report evidence
// through ObserveSuccess and ObserveAuthRequired. A successful structured
// agent answer is treated as proof the connection is live.
package connection
