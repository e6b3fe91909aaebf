package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/inboxcopilot/internal/instrumentation"
	"github.com/teemow/inboxcopilot/internal/logging"
)

// invokePath is appended to the configured base URL.
const invokePath = "/agent/invoke"

// maxResponseBytes bounds how much of an agent response is read.
const maxResponseBytes = 8 << 20

// ClientConfig configures the HTTP agent client.
type ClientConfig struct {
	// BaseURL is the agent service root, e.g. "https://agents.example.com/api".
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// HTTPClient is the transport wrapped by the oauth2 client (default: http.DefaultClient).
	HTTPClient *http.Client

	// Metrics records invocation counts and latencies (optional).
	Metrics *instrumentation.Metrics

	// Logger (default: slog.Default()).
	Logger *slog.Logger
}

// Client invokes agents over HTTP.
type Client struct {
	endpoint string
	http     *http.Client
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
}

type invokeRequest struct {
	Message   string `json:"message"`
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id"`
}

// NewClient creates an agent client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("agent base URL cannot be empty")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("agent API key cannot be empty")
	}

	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "agent")
	logger.Debug("agent client configured",
		"endpoint", strings.TrimRight(cfg.BaseURL, "/")+invokePath,
		"api_key", logging.SanitizeToken(cfg.APIKey))

	return &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + invokePath,
		http:     oauth2.NewClient(ctx, ts),
		metrics:  cfg.Metrics,
		logger:   logger,
	}, nil
}

// Invoke sends message to agentID within sessionID and decodes the envelope.
//
// A non-2xx answer that is not itself an envelope is reported as a failed
// envelope carrying the HTTP status and body, not as an error. Errors are
// reserved for transport failures.
func (c *Client) Invoke(ctx context.Context, message, agentID, sessionID string) (*Result, error) {
	ctx, span := instrumentation.StartAgentSpan(ctx, agentID, sessionID)
	defer span.End()

	start := time.Now()
	c.metrics.AgentInvocationStarted(ctx, agentID)
	defer c.metrics.AgentInvocationFinished(ctx, agentID)

	result, err := c.do(ctx, message, agentID, sessionID)
	duration := time.Since(start)

	logger := c.logger.With(logging.Agent(agentID), logging.Session(sessionID), slog.Duration(logging.KeyDuration, duration))
	switch {
	case err != nil:
		instrumentation.SetSpanError(span, err)
		c.metrics.RecordAgentInvocation(ctx, agentID, sessionID, instrumentation.ResultError, duration)
		logger.Warn("agent invocation failed", logging.Err(err))
		return nil, err
	case !result.Success:
		c.metrics.RecordAgentInvocation(ctx, agentID, sessionID, instrumentation.ResultFailure, duration)
		logger.Info("agent reported failure", logging.Text(logging.KeyError, result.Error))
	default:
		instrumentation.SetSpanSuccess(span)
		c.metrics.RecordAgentInvocation(ctx, agentID, sessionID, instrumentation.ResultSuccess, duration)
		logger.Debug("agent invocation completed", logging.Text("message", result.Message()))
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, message, agentID, sessionID string) (*Result, error) {
	body, err := json.Marshal(invokeRequest{Message: message, AgentID: agentID, SessionID: sessionID})
	if err != nil {
		return nil, &InvokeError{Op: "encode", AgentID: agentID, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &InvokeError{Op: "request", AgentID: agentID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &InvokeError{Op: "request", AgentID: agentID, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &InvokeError{Op: "read", AgentID: agentID, Err: err}
	}

	return decodeEnvelope(resp.StatusCode, resp.Status, data, agentID)
}

func decodeEnvelope(statusCode int, status string, data []byte, agentID string) (*Result, error) {
	var result Result
	decodeErr := json.Unmarshal(data, &result)

	if statusCode < 200 || statusCode > 299 {
		if decodeErr == nil && (result.Error != "" || result.Response != nil) {
			result.Success = false
			if result.Error == "" {
				result.Error = status
			}
			return &result, nil
		}
		return &Result{
			Success:     false,
			Error:       status,
			RawResponse: string(data),
		}, nil
	}

	if decodeErr != nil {
		return nil, &InvokeError{Op: "decode", AgentID: agentID, Err: decodeErr}
	}
	return &result, nil
}
