package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxcopilot/internal/config"
	"github.com/teemow/inboxcopilot/internal/instrumentation"
	"github.com/teemow/inboxcopilot/internal/logging"
	"github.com/teemow/inboxcopilot/internal/server"
	"github.com/teemow/inboxcopilot/internal/tools/connection_tools"
	"github.com/teemow/inboxcopilot/internal/tools/copilot_tools"
	"github.com/teemow/inboxcopilot/internal/tools/followup_tools"
	"github.com/teemow/inboxcopilot/internal/tools/schedule_tools"
)

// Supported transports.
const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// serveOptions collects the serve flags.
type serveOptions struct {
	transport        string
	httpAddr         string
	yolo             bool
	disableStreaming bool
	allowedOrigins   []string
	metrics          MetricsConfig
}

func newServeCmd() *cobra.Command {
	var (
		opts           serveOptions
		allowedOrigins string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server to provide the email copilot,
follow-up tracking and schedule tools to AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport, plus a websocket status
    stream on /events and health probes on /healthz and /readyz

Safety Mode:
  By default, the server operates in read-only mode: drafts can be generated,
  refined and copied, but nothing is sent and the schedule cannot be changed.
  Use --yolo to enable write operations (sending replies and follow-ups,
  pausing, resuming and triggering the schedule).

Configuration:
  INBOXCOPILOT_AGENT_URL and INBOXCOPILOT_API_KEY are required, either in the
  environment or in a .env file. See 'inboxcopilot --help' for the settings
  file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.allowedOrigins = parseCommaSeparatedList(allowedOrigins)
			applyServeEnv(&opts, cmd.Flags().Changed, os.Getenv)
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&opts.yolo, "yolo", false, "Enable write operations (sending mail, changing the schedule)")
	cmd.Flags().BoolVar(&opts.disableStreaming, "disable-streaming", false, "Answer MCP requests with plain JSON instead of SSE (for streamable-http transport)")
	cmd.Flags().StringVar(&allowedOrigins, "allowed-origins", "", "Comma-separated websocket origin patterns for /events (default: same origin only)")
	cmd.Flags().BoolVar(&opts.metrics.Enabled, "metrics-enabled", true, "Start the Prometheus metrics server (for streamable-http transport)")
	cmd.Flags().StringVar(&opts.metrics.Addr, "metrics-addr", ":9090", "Metrics server address")

	return cmd
}

func runServe(opts serveOptions) error {
	if opts.transport != transportStdio && opts.transport != transportStreamableHTTP {
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", opts.transport)
	}

	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// stdout belongs to the MCP protocol in stdio mode.
	logger := logging.NewLogger(os.Stderr, logging.Options{
		Debug: cfg.Debug,
		JSON:  opts.transport == transportStreamableHTTP,
	})
	slog.SetDefault(logger)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	instrConfig.Transport = opts.transport

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	// Start metrics server if enabled and not in stdio mode
	var metricsServer *server.MetricsServer
	if opts.transport != transportStdio && opts.metrics.Enabled && provider.Enabled() {
		metricsServer, err = startMetricsServer(opts.metrics, provider, logger)
		if err != nil {
			return err
		}
	}

	opt := server.Options{Config: cfg, Logger: logger}
	if provider.Enabled() {
		opt.Metrics = provider.Metrics()
		opt.Audit = instrumentation.NewAuditLoggerWithConfig(logger, provider.AuditConfig())
	}

	// Create server context
	serverContext, err := server.NewServerContext(shutdownCtx, opt)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		// Shutdown metrics server first
		if metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Warn("error during metrics server shutdown", logging.Err(err))
			}
		}
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("error during server context shutdown", logging.Err(err))
		}
	}()

	// Create MCP server
	mcpSrv := mcpserver.NewMCPServer("inboxcopilot", version,
		mcpserver.WithToolCapabilities(true),
	)

	// readOnly is the inverse of yolo
	readOnly := !opts.yolo
	if readOnly {
		logger.Info("starting server in READ-ONLY mode (use --yolo to enable write operations)")
	} else {
		logger.Info("starting server with WRITE operations enabled (--yolo flag is set)")
	}

	// Register all tools
	if err := registerAllTools(mcpSrv, serverContext, readOnly); err != nil {
		return err
	}

	// Start the appropriate server based on transport type
	switch opts.transport {
	case transportStreamableHTTP:
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, opts, logger)
	default:
		return runStdioServer(mcpSrv)
	}
}

// startMetricsServer starts the metrics server and waits until it listens.
func startMetricsServer(cfg MetricsConfig, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    cfg.Addr,
		Enabled:                 true,
		InstrumentationProvider: provider,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	// Use ready channel to confirm metrics server started successfully
	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	// Wait for metrics server to be ready or fail
	select {
	case <-metricsReady:
		logger.Info("metrics server started", "addr", metricsServer.Addr())
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("metrics server startup timed out")
	}
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// registerAllTools registers all MCP tools
// Extracted to avoid duplication between serve and generate-docs
func registerAllTools(mcpSrv *mcpserver.MCPServer, ctx *server.ServerContext, readOnly bool) error {
	// Define all tool registrations
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Copilot",
			register: func() error {
				return copilot_tools.RegisterCopilotTools(mcpSrv, ctx, readOnly)
			},
		},
		{
			name: "Follow-Up",
			register: func() error {
				return followup_tools.RegisterFollowUpTools(mcpSrv, ctx, readOnly)
			},
		},
		{
			name: "Connection",
			register: func() error {
				return connection_tools.RegisterConnectionTools(mcpSrv, ctx)
			},
		},
		{
			name: "Schedule",
			register: func() error {
				return schedule_tools.RegisterScheduleTools(mcpSrv, ctx, readOnly)
			},
		},
	}

	// Register all tools
	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s tools: %w", reg.name, err)
		}
	}

	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, serverContext *server.ServerContext, opts serveOptions, logger *slog.Logger) error {
	httpServer := server.NewHTTPServer(mcpSrv, serverContext, server.HTTPServerConfig{
		DisableStreaming: opts.disableStreaming,
		AllowedOrigins:   opts.allowedOrigins,
	})

	logger.Info("streamable HTTP server starting",
		"addr", opts.httpAddr,
		"mcp_endpoint", "/mcp",
		"events_endpoint", "/events",
		"health_endpoints", "/healthz, /readyz")

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(opts.httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		logger.Info("HTTP server stopped normally")
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}

// applyServeEnv fills options whose flags were not given from the
// environment.
func applyServeEnv(opts *serveOptions, changed func(flag string) bool, getenv func(string) string) {
	if !changed("allowed-origins") && len(opts.allowedOrigins) == 0 {
		opts.allowedOrigins = parseCommaSeparatedList(getenv("INBOXCOPILOT_ALLOWED_ORIGINS"))
	}
	if !changed("metrics-enabled") {
		if v, err := strconv.ParseBool(getenv("METRICS_ENABLED")); err == nil {
			opts.metrics.Enabled = v
		}
	}
	if !changed("metrics-addr") {
		if addr := getenv("METRICS_ADDR"); addr != "" {
			opts.metrics.Addr = addr
		}
	}
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty or contains only whitespace/commas.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// placeholderConfig is a valid configuration that never reaches a real
// service. generate-docs uses it to register the tools.
func placeholderConfig() *config.Config {
	return &config.Config{
		AgentBaseURL:     "http://localhost",
		AgentAPIKey:      "placeholder",
		SchedulerBaseURL: "http://localhost",
		SchedulerAPIKey:  "placeholder",
		CopilotAgentID:   config.DefaultCopilotAgentID,
		FollowUpAgentID:  config.DefaultFollowUpAgentID,
		ScheduleID:       config.DefaultScheduleID,
		Settings:         config.DefaultSettings(),
		NoticeTTL:        config.DefaultNoticeTTL,
	}
}
