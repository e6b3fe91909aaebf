// Package server wires the inboxcopilot components together and serves them
// over HTTP.
//
// # Key Components
//
// ServerContext owns the process-wide pieces: one status hub, one session
// manager, the draft copilot, the follow-up controller, the Gmail connection
// monitor and the schedule panel. The copilot and the follow-up controller
// report agent successes and authorization prompts to the connection monitor.
//
// HTTPServer mounts the MCP streamable HTTP transport on /mcp, a websocket
// stream of status events on /events and the Kubernetes probes on /healthz
// and /readyz. chi's Recoverer is the outermost error boundary.
//
// MetricsServer exposes Prometheus metrics on a dedicated port so that
// operational data stays off the application listener.
package server
