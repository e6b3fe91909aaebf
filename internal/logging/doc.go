// Package logging provides structured logging utilities for the inboxcopilot application.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithFlow(slog.Default(), "scan")
//	logger.Info("scan finished",
//	    logging.Agent(agentID),
//	    logging.Session(sessionID),
//	    logging.State("connected"))
//
// Agent replies are free text of arbitrary length; log them through Text or
// Truncate so a single reply cannot flood the output.
//
// # Security Considerations
//
// API keys are never logged directly; use SanitizeToken.
package logging
