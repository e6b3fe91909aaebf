package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/inboxcopilot/internal/instrumentation"
	"github.com/teemow/inboxcopilot/internal/logging"
)

// maxResponseBytes bounds how much of a scheduler response is read.
const maxResponseBytes = 1 << 20

// ClientConfig configures the HTTP scheduler client.
type ClientConfig struct {
	// BaseURL is the scheduler service root; schedules live under /schedules.
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// HTTPClient is the transport wrapped by the oauth2 client (default: http.DefaultClient).
	HTTPClient *http.Client

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// Client talks to the scheduler service over HTTP.
type Client struct {
	base    string
	http    *http.Client
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

var _ Service = (*Client)(nil)

// envelope is the scheduler's response shape. Every field is optional.
type envelope struct {
	Success    *bool          `json:"success"`
	Schedule   *Schedule      `json:"schedule"`
	Executions []ExecutionLog `json:"executions"`
	Error      string         `json:"error"`
	Message    string         `json:"message"`
}

// NewClient creates a scheduler client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("scheduler base URL cannot be empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid scheduler base URL: %w", err)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("scheduler API key cannot be empty")
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

	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/") + "/schedules/",
		http:    oauth2.NewClient(ctx, ts),
		metrics: cfg.Metrics,
		logger:  logger.With("component", "scheduler"),
	}, nil
}

// GetSchedule fetches one schedule.
func (c *Client) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	env, err := c.call(ctx, instrumentation.OperationGet, http.MethodGet, id, "", nil)
	if err != nil {
		return nil, err
	}
	if env.Schedule == nil {
		return nil, &APIError{Op: instrumentation.OperationGet, Message: "response carried no schedule"}
	}
	return env.Schedule, nil
}

// GetScheduleLogs fetches the most recent executions, newest first.
func (c *Client) GetScheduleLogs(ctx context.Context, id string, limit int) ([]ExecutionLog, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	env, err := c.call(ctx, instrumentation.OperationLogs, http.MethodGet, id, "/logs", q)
	if err != nil {
		return nil, err
	}
	if env.Executions == nil {
		return []ExecutionLog{}, nil
	}
	return env.Executions, nil
}

// PauseSchedule deactivates a schedule.
func (c *Client) PauseSchedule(ctx context.Context, id string) error {
	_, err := c.call(ctx, instrumentation.OperationPause, http.MethodPost, id, "/pause", nil)
	return err
}

// ResumeSchedule reactivates a schedule.
func (c *Client) ResumeSchedule(ctx context.Context, id string) error {
	_, err := c.call(ctx, instrumentation.OperationResume, http.MethodPost, id, "/resume", nil)
	return err
}

// TriggerScheduleNow runs a schedule immediately.
func (c *Client) TriggerScheduleNow(ctx context.Context, id string) error {
	_, err := c.call(ctx, instrumentation.OperationTrigger, http.MethodPost, id, "/trigger", nil)
	return err
}

func (c *Client) call(ctx context.Context, op, method, id, suffix string, query url.Values) (*envelope, error) {
	ctx, span := instrumentation.StartSchedulerSpan(ctx, op, id)
	defer span.End()

	start := time.Now()
	env, err := c.do(ctx, op, method, id, suffix, query)
	duration := time.Since(start)

	logger := c.logger.With(logging.Operation(op), slog.String("schedule", id), slog.Duration(logging.KeyDuration, duration))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		c.metrics.RecordSchedulerOperation(ctx, op, instrumentation.StatusError, duration)
		logger.Warn("scheduler call failed", logging.Err(err))
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	c.metrics.RecordSchedulerOperation(ctx, op, instrumentation.StatusSuccess, duration)
	logger.Debug("scheduler call completed")
	return env, nil
}

func (c *Client) do(ctx context.Context, op, method, id, suffix string, query url.Values) (*envelope, error) {
	u := c.base + url.PathEscape(id) + suffix
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("scheduler %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scheduler %s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("scheduler %s: read response: %w", op, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(data, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if decodeErr == nil && firstNonEmpty(env.Error, env.Message) != "" {
			msg = firstNonEmpty(env.Error, env.Message)
		}
		if msg == "" {
			msg = resp.Status
		}
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return &env, nil
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("scheduler %s: decode response: %w", op, decodeErr)
	}
	if env.Success != nil && !*env.Success {
		msg := firstNonEmpty(env.Error, env.Message)
		if msg == "" {
			msg = "request failed"
		}
		return nil, &APIError{Op: op, Message: msg}
	}
	return &env, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
