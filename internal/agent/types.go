package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Result is the envelope returned by the conversational agent service.
//
// Response.Result is kept raw: the service sometimes sends a JSON-encoded
// string and sometimes a structured value, and Parse decides which.
type Result struct {
	Success     bool      `json:"success"`
	Response    *Response `json:"response,omitempty"`
	Error       string    `json:"error,omitempty"`
	RawResponse string    `json:"raw_response,omitempty"`
}

// Response is the nested part of a Result.
type Response struct {
	Result  json.RawMessage `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Message returns response.message, or "" when there is none.
func (r *Result) Message() string {
	if r == nil || r.Response == nil {
		return ""
	}
	return r.Response.Message
}

// ErrorText returns the service error string, falling back to def.
func (r *Result) ErrorText(def string) string {
	if r != nil && r.Error != "" {
		return r.Error
	}
	return def
}

// Serialize returns the JSON text of the whole envelope for authorization
// URL scanning. HTML characters are not escaped so query strings stay intact.
func (r *Result) Serialize() string {
	if r == nil {
		return ""
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		// Only reachable with an invalid raw result; scan what we have.
		return r.Error + " " + r.RawResponse
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

// Invoker sends one instruction to a remote agent.
type Invoker interface {
	Invoke(ctx context.Context, message, agentID, sessionID string) (*Result, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, message, agentID, sessionID string) (*Result, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, message, agentID, sessionID string) (*Result, error) {
	return f(ctx, message, agentID, sessionID)
}

// ErrAuthorizationRequired is matched by every AuthorizationRequiredError.
var ErrAuthorizationRequired = errors.New("mail account authorization required")

// AuthorizationRequiredError is returned by flows that found an authorization
// URL in the agent response instead of a usable result.
type AuthorizationRequiredError struct {
	// URL is the page the user has to visit.
	URL string
}

// Error implements the error interface
func (e *AuthorizationRequiredError) Error() string {
	return fmt.Sprintf("%s: visit %s", ErrAuthorizationRequired.Error(), e.URL)
}

// Unwrap implements the errors.Unwrap interface
func (e *AuthorizationRequiredError) Unwrap() error {
	return ErrAuthorizationRequired
}

// ErrNoResult is matched by errors reporting an envelope without usable data.
var ErrNoResult = errors.New("agent returned no usable result")

// Failure returns an error wrapping ErrNoResult with the text shown to the user.
func Failure(text string) error {
	return fmt.Errorf("%w: %s", ErrNoResult, text)
}

// InvokeError represents a transport-level failure talking to an agent.
type InvokeError struct {
	// Op is the operation that failed (e.g., "encode", "request", "decode")
	Op string

	// AgentID is the agent the call was addressed to
	AgentID string

	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *InvokeError) Error() string {
	if e.AgentID != "" {
		return fmt.Sprintf("agent %s (agent: %s): %v", e.Op, e.AgentID, e.Err)
	}
	return fmt.Sprintf("agent %s: %v", e.Op, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *InvokeError) Unwrap() error {
	return e.Err
}
