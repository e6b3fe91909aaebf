package copilot_tools

import (
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxcopilot/internal/server"
)

// RegisterCopilotTools registers the inbox and draft tools with the MCP server
func RegisterCopilotTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := registerInboxTools(s, sc); err != nil {
		return fmt.Errorf("failed to register inbox tools: %w", err)
	}

	if err := registerDraftTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register draft tools: %w", err)
	}

	return nil
}
