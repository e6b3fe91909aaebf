package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxcopilot/internal/instrumentation"
)

// HTTP server timeouts. There is no write timeout: the event stream and
// streaming MCP responses stay open.
const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
)

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// DisableStreaming answers MCP requests with plain JSON instead of SSE.
	DisableStreaming bool

	// AllowedOrigins are the websocket origin patterns for /events
	// (default: same origin only).
	AllowedOrigins []string
}

// HTTPServer serves the MCP endpoint, the live status stream and the
// health probes from one chi router.
type HTTPServer struct {
	mcpServer *mcpserver.MCPServer
	sc        *ServerContext
	health    *HealthChecker
	cfg       HTTPServerConfig

	mu         sync.Mutex
	httpServer *http.Server
}

// NewHTTPServer creates an HTTPServer for mcpSrv.
func NewHTTPServer(mcpSrv *mcpserver.MCPServer, sc *ServerContext, cfg HTTPServerConfig) *HTTPServer {
	return &HTTPServer{
		mcpServer: mcpSrv,
		sc:        sc,
		health:    NewHealthChecker(sc),
		cfg:       cfg,
	}
}

// HealthChecker returns the health checker behind /healthz and /readyz.
func (s *HTTPServer) HealthChecker() *HealthChecker {
	return s.health
}

// Handler builds the router:
//
//	/mcp              MCP streamable HTTP transport
//	/events           websocket stream of status events
//	/healthz, /readyz probes
//
// The recoverer is the outermost error boundary; a panicking handler
// answers 500 and the server keeps running.
func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpMetrics(s.sc.Metrics()))

	s.health.RegisterHealthEndpoints(r)

	opts := []mcpserver.StreamableHTTPOption{mcpserver.WithEndpointPath("/mcp")}
	if s.cfg.DisableStreaming {
		opts = append(opts, mcpserver.WithDisableStreaming(true))
	}
	r.Handle("/mcp", mcpserver.NewStreamableHTTPServer(s.mcpServer, opts...))

	r.Get("/events", NewEventsHandler(s.sc.Status(), s.sc.Logger(), s.cfg.AllowedOrigins).ServeHTTP)

	return r
}

// Start listens on addr and serves until Shutdown.
func (s *HTTPServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener until Shutdown.
func (s *HTTPServer) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return s.sc.Context() },
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	slog.Info("starting HTTP server", "addr", ln.Addr().String())
	return srv.Serve(ln)
}

// Shutdown gracefully shuts down the server. Readiness turns false first so
// probes stop routing traffic here.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// httpMetrics records every request by its route pattern, which keeps the
// path label bounded.
func httpMetrics(m *instrumentation.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := instrumentation.LabelOther
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					path = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.RecordHTTPRequest(r.Context(), r.Method, path, status, time.Since(start))
		})
	}
}
