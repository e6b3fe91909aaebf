package copilot_tools

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxcopilot/internal/copilot"
	"github.com/teemow/inboxcopilot/internal/server"
	"github.com/teemow/inboxcopilot/internal/tools/common"
)

func registerDraftTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	openTool := mcp.NewTool("copilot_open",
		mcp.WithDescription("Open the copilot on an email with an empty conversation and generate a first reply draft"),
		mcp.WithString(common.ArgThreadID,
			mcp.Required(),
			mcp.Description("Thread ID of the email to reply to"),
		),
		mcp.WithString("subject",
			mcp.Description("Subject, required when the thread was not part of the last inbox_fetch"),
		),
		mcp.WithString("sender",
			mcp.Description("Sender address, used when the thread was not part of the last inbox_fetch"),
		),
	)
	s.AddTool(openTool, common.InstrumentedToolHandler("copilot_open", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleOpen(ctx, request, sc)
	}))

	generateTool := mcp.NewTool("copilot_generate_draft",
		mcp.WithDescription("Generate a new reply draft for the selected email in a fresh agent session"),
	)
	s.AddTool(generateTool, common.InstrumentedToolHandler("copilot_generate_draft", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGenerateDraft(ctx, request, sc)
	}))

	chatTool := mcp.NewTool("copilot_chat",
		mcp.WithDescription("Ask the copilot to refine the current draft (e.g. 'make it shorter', 'decline politely')"),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The refinement request"),
		),
	)
	s.AddTool(chatTool, common.InstrumentedToolHandler("copilot_chat", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleChat(ctx, request, sc)
	}))

	editTool := mcp.NewTool("copilot_edit_draft",
		mcp.WithDescription("Replace the draft body by hand. The edited text is what gets copied or sent until the edit is cancelled."),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("The full edited reply body"),
		),
	)
	s.AddTool(editTool, common.InstrumentedToolHandler("copilot_edit_draft", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleEditDraft(ctx, request, sc)
	}))

	cancelTool := mcp.NewTool("copilot_cancel_edit",
		mcp.WithDescription("Discard a manual edit and return to the copilot's draft"),
	)
	s.AddTool(cancelTool, common.InstrumentedToolHandler("copilot_cancel_edit", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sc.Copilot().CancelEdit()
		return common.JSONResult(sc.Copilot().State())
	}))

	copyTool := mcp.NewTool("copilot_copy_draft",
		mcp.WithDescription("Copy the current reply body (the manual edit, if any) to the local clipboard"),
	)
	s.AddTool(copyTool, common.InstrumentedToolHandler("copilot_copy_draft", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleCopyDraft(ctx, request, sc)
	}))

	stateTool := mcp.NewTool("copilot_state",
		mcp.WithDescription("Get the copilot state: selected email, draft, conversation and edit buffer"),
	)
	s.AddTool(stateTool, common.InstrumentedToolHandler("copilot_state", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return common.JSONResult(sc.Copilot().State())
	}))

	if !readOnly {
		sendTool := mcp.NewTool("copilot_send_reply",
			mcp.WithDescription("Send the current reply to the selected thread through the copilot agent"),
		)
		s.AddTool(sendTool, common.InstrumentedToolHandler("copilot_send_reply", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSendReply(ctx, request, sc)
		}))
	}

	return nil
}

// draftResult is the answer of the drafting tools.
type draftResult struct {
	Draft    *copilot.Draft       `json:"draft"`
	Reply    string               `json:"reply,omitempty"`
	Messages []copilot.ChatMessage `json:"transcript"`
}

func handleOpen(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	email, err := resolveEmail(request.GetArguments(), sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	draft, err := sc.Copilot().Open(ctx, email)
	if err != nil {
		return common.ErrorResult("Failed to generate draft", err), nil
	}
	return common.JSONResult(draftResult{Draft: draft, Messages: sc.Copilot().Transcript()})
}

func handleGenerateDraft(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	draft, err := sc.Copilot().GenerateDraft(ctx)
	if errors.Is(err, copilot.ErrNoEmailSelected) {
		return mcp.NewToolResultError("No email selected. Use inbox_select_email or copilot_open first."), nil
	}
	if err != nil {
		return common.ErrorResult("Failed to generate draft", err), nil
	}
	return common.JSONResult(draftResult{Draft: draft, Messages: sc.Copilot().Transcript()})
}

func handleChat(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	message, err := common.RequiredString(request.GetArguments(), "message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	reply, err := sc.Copilot().Chat(ctx, message)
	if errors.Is(err, copilot.ErrBusy) {
		return mcp.NewToolResultError("The copilot is still working on the previous request. Try again shortly."), nil
	}
	if err != nil {
		return common.ErrorResult("Failed to refine draft", err), nil
	}
	return common.JSONResult(draftResult{
		Draft:    sc.Copilot().Draft(),
		Reply:    reply.Content,
		Messages: sc.Copilot().Transcript(),
	})
}

func handleEditDraft(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	body, ok := common.RawString(request.GetArguments(), "body")
	if !ok {
		return mcp.NewToolResultError("body is required"), nil
	}

	if err := sc.Copilot().UpdateEdit(body); err != nil {
		return mcp.NewToolResultError("No draft to edit. Generate one with copilot_open first."), nil
	}
	return common.JSONResult(sc.Copilot().State())
}

func handleCopyDraft(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if !sc.Copilot().Copy() {
		return mcp.NewToolResultError("Failed to copy the draft to the clipboard"), nil
	}
	return common.JSONResult(map[string]bool{"copied": true})
}

func handleSendReply(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	notice, err := sc.Copilot().SendReply(ctx)
	switch {
	case errors.Is(err, copilot.ErrNoEmailSelected):
		return mcp.NewToolResultError("No email selected. Use copilot_open first."), nil
	case errors.Is(err, copilot.ErrNoDraft):
		return mcp.NewToolResultError("There is no draft to send."), nil
	case err != nil:
		return common.ErrorResult("Failed to send reply", err), nil
	}
	return common.NoticeResult(notice)
}
