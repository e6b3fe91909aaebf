package copilot_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxcopilot/internal/copilot"
	"github.com/teemow/inboxcopilot/internal/server"
	"github.com/teemow/inboxcopilot/internal/tools/common"
)

func registerInboxTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	fetchTool := mcp.NewTool("inbox_fetch",
		mcp.WithDescription("Fetch recent emails from the Gmail inbox through the copilot agent, or search it"),
		mcp.WithString("query",
			mcp.Description("Optional search query (e.g. 'from:alice invoice'). Without it the most recent emails are fetched."),
		),
	)
	s.AddTool(fetchTool, common.InstrumentedToolHandler("inbox_fetch", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleFetchInbox(ctx, request, sc)
	}))

	selectTool := mcp.NewTool("inbox_select_email",
		mcp.WithDescription("Select an email and load its full thread. The copilot panel is closed until copilot_open is called."),
		mcp.WithString(common.ArgThreadID,
			mcp.Required(),
			mcp.Description("Thread ID of the email, as returned by inbox_fetch"),
		),
		mcp.WithString("subject",
			mcp.Description("Subject, required when the thread was not part of the last inbox_fetch"),
		),
		mcp.WithString("sender",
			mcp.Description("Sender address, used when the thread was not part of the last inbox_fetch"),
		),
	)
	s.AddTool(selectTool, common.InstrumentedToolHandler("inbox_select_email", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleSelectEmail(ctx, request, sc)
	}))

	return nil
}

func handleFetchInbox(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	query := common.StringArg(request.GetArguments(), "query")

	view, err := sc.Copilot().FetchInbox(ctx, query)
	if err != nil {
		return common.ErrorResult("Failed to fetch inbox", err), nil
	}
	return common.JSONResult(view)
}

func handleSelectEmail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	email, err := resolveEmail(args, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := sc.Copilot().SelectEmail(ctx, email); err != nil {
		return common.ErrorResult("Failed to load thread", err), nil
	}
	return common.JSONResult(sc.Copilot().State())
}

// resolveEmail finds the thread among the fetched inbox, falling back to the
// subject and sender passed as arguments.
func resolveEmail(args map[string]any, sc *server.ServerContext) (copilot.Email, error) {
	threadID, err := common.RequiredString(args, common.ArgThreadID)
	if err != nil {
		return copilot.Email{}, err
	}

	if email, ok := sc.Copilot().FindEmail(threadID); ok {
		return email, nil
	}
	if state := sc.Copilot().State(); state.Email != nil && state.Email.ThreadID == threadID {
		return *state.Email, nil
	}

	subject := common.StringArg(args, "subject")
	if subject == "" {
		return copilot.Email{}, fmt.Errorf("thread %s is not in the fetched inbox; run inbox_fetch or pass subject", threadID)
	}
	return copilot.Email{
		ID:       threadID,
		ThreadID: threadID,
		Subject:  subject,
		Sender:   common.StringArg(args, "sender"),
	}, nil
}
