package common

import (
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxcopilot/internal/agent"
	"github.com/teemow/inboxcopilot/internal/status"
)

// AuthorizationRequired is the tool answer for a flow that stopped at a
// Gmail authorization page.
type AuthorizationRequired struct {
	Status  string `json:"status"`
	AuthURL string `json:"auth_url"`
	Message string `json:"message"`
}

// ErrorResult turns err into a tool answer. An authorization prompt is a
// regular result carrying the URL the user has to open; anything else is a
// tool error prefixed with action.
func ErrorResult(action string, err error) *mcp.CallToolResult {
	var authErr *agent.AuthorizationRequiredError
	if errors.As(err, &authErr) {
		result, jsonErr := JSONResult(AuthorizationRequired{
			Status:  "authorization_required",
			AuthURL: authErr.URL,
			Message: "Gmail authorization is required. Open the URL, grant access, then retry.",
		})
		if jsonErr == nil {
			return result
		}
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", action, err))
}

// NoticeResult answers with notice, as a tool error when it reports a
// failure.
func NoticeResult(n status.Notice) (*mcp.CallToolResult, error) {
	if n.Kind == status.KindError {
		return mcp.NewToolResultError(n.Text), nil
	}
	return JSONResult(n)
}
