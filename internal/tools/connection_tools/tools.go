package connection_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxcopilot/internal/connection"
	"github.com/teemow/inboxcopilot/internal/server"
	"github.com/teemow/inboxcopilot/internal/status"
	"github.com/teemow/inboxcopilot/internal/tools/common"
)

// RegisterConnectionTools registers the Gmail connection and status tools
// with the MCP server
func RegisterConnectionTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	connectTool := mcp.NewTool("gmail_connect",
		mcp.WithDescription("Verify the Gmail connection of the copilot agent. Returns an authorization URL when Gmail access has to be granted first."),
	)
	s.AddTool(connectTool, common.InstrumentedToolHandler("gmail_connect", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleConnect(ctx, request, sc)
	}))

	connectionStatusTool := mcp.NewTool("gmail_connection_status",
		mcp.WithDescription("Get the last known Gmail connection state without contacting the agent"),
	)
	s.AddTool(connectionStatusTool, common.InstrumentedToolHandler("gmail_connection_status", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return common.JSONResult(sc.Connection().Snapshot())
	}))

	statusTool := mcp.NewTool("status_get",
		mcp.WithDescription("Get the current status notice, the agent working right now and the Gmail connection state"),
	)
	s.AddTool(statusTool, common.InstrumentedToolHandler("status_get", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return common.JSONResult(statusView{
			Snapshot:   sc.Status().Snapshot(),
			Connection: sc.Connection().State(),
		})
	}))

	return nil
}

// statusView is the answer of status_get.
type statusView struct {
	status.Snapshot
	Connection connection.State `json:"gmail"`
}

func handleConnect(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	outcome, err := sc.Connection().Connect(ctx)
	if err != nil {
		return common.ErrorResult("Failed to verify the Gmail connection", err), nil
	}
	return common.JSONResult(outcome)
}
