package followup_tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxcopilot/internal/followup"
	"github.com/teemow/inboxcopilot/internal/server"
	"github.com/teemow/inboxcopilot/internal/tools/batch"
	"github.com/teemow/inboxcopilot/internal/tools/common"
)

// categoryDescription lists the accepted category filters.
var categoryDescription = fmt.Sprintf("Category filter: %s, %s, %s, %s or %s (default)",
	followup.CategoryUnanswered, followup.CategoryCommitments, followup.CategoryQuestions,
	followup.CategoryFlagged, followup.CategoryAll)

// RegisterFollowUpTools registers all follow-up tools with the MCP server
func RegisterFollowUpTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	scanTool := mcp.NewTool("followup_scan",
		mcp.WithDescription("Scan the inbox for emails that need follow-up: unanswered threads, pending commitments, open questions and flagged items"),
		mcp.WithNumber("thresholdDays",
			mcp.Description("Age in days after which an unanswered email counts (default: from settings)"),
		),
		mcp.WithBoolean("commitmentDetection",
			mcp.Description("Look for commitments you made (default: from settings)"),
		),
		mcp.WithBoolean("questionDetection",
			mcp.Description("Look for questions left open (default: from settings)"),
		),
	)
	s.AddTool(scanTool, common.InstrumentedToolHandler("followup_scan", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleScan(ctx, request, sc)
	}))

	listTool := mcp.NewTool("followup_list",
		mcp.WithDescription("List the follow-up items of the last scan, optionally filtered by category. The filter is remembered."),
		mcp.WithString("category",
			mcp.Description(categoryDescription),
		),
	)
	s.AddTool(listTool, common.InstrumentedToolHandler("followup_list", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleList(ctx, request, sc)
	}))

	reminderTool := mcp.NewTool("followup_set_reminder",
		mcp.WithDescription("Set or clear a reminder date for a follow-up thread"),
		mcp.WithString(common.ArgThreadID,
			mcp.Required(),
			mcp.Description("Thread ID of the follow-up item"),
		),
		mcp.WithString("date",
			mcp.Description("Reminder date as YYYY-MM-DD. Empty clears the reminder."),
		),
	)
	s.AddTool(reminderTool, common.InstrumentedToolHandler("followup_set_reminder", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleSetReminder(ctx, request, sc)
	}))

	refineTool := mcp.NewTool("followup_refine",
		mcp.WithDescription("Open the copilot on a follow-up item with its suggested draft, in a fresh conversation, so it can be refined with copilot_chat"),
		mcp.WithString(common.ArgThreadID,
			mcp.Required(),
			mcp.Description("Thread ID of the follow-up item"),
		),
	)
	s.AddTool(refineTool, common.InstrumentedToolHandler("followup_refine", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleRefine(ctx, request, sc)
	}))

	if !readOnly {
		sendTool := mcp.NewTool("followup_send",
			mcp.WithDescription("Send the suggested follow-up draft for a thread"),
			mcp.WithString(common.ArgThreadID,
				mcp.Required(),
				mcp.Description("Thread ID of the follow-up item"),
			),
		)
		s.AddTool(sendTool, common.InstrumentedToolHandler("followup_send", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSend(ctx, request, sc)
		}))

		sendBatchTool := mcp.NewTool("followup_send_batch",
			mcp.WithDescription("Send the suggested follow-up drafts for several threads, one after another"),
			mcp.WithString(common.ArgThreadIDs,
				mcp.Required(),
				mcp.Description("Thread ID (string) or array of thread IDs"),
			),
		)
		s.AddTool(sendBatchTool, common.InstrumentedToolHandler("followup_send_batch", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSendBatch(ctx, request, sc)
		}))
	}

	return nil
}

func handleScan(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	opts := sc.ScanOptions()
	opts.ThresholdDays = common.IntArg(args, "thresholdDays", opts.ThresholdDays)
	if opts.ThresholdDays < 1 {
		return mcp.NewToolResultError("thresholdDays must be at least 1"), nil
	}
	opts.CommitmentDetection = common.BoolArg(args, "commitmentDetection", opts.CommitmentDetection)
	opts.QuestionDetection = common.BoolArg(args, "questionDetection", opts.QuestionDetection)

	res, err := sc.FollowUp().Scan(ctx, opts)
	if err != nil {
		return common.ErrorResult("Failed to scan for follow-ups", err), nil
	}
	return common.JSONResult(res)
}

func handleList(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ctrl := sc.FollowUp()
	if category, ok := request.GetArguments()["category"].(string); ok {
		if !validCategory(category) {
			return mcp.NewToolResultError(fmt.Sprintf("unknown category %q. %s", category, categoryDescription)), nil
		}
		ctrl.SetFilter(category)
	}
	if ctrl.Result() == nil {
		return mcp.NewToolResultError("No scan result yet. Run followup_scan first."), nil
	}
	return common.JSONResult(ctrl.Snapshot())
}

func validCategory(category string) bool {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "", followup.CategoryAll, followup.CategoryUnanswered, followup.CategoryCommitments,
		followup.CategoryQuestions, followup.CategoryFlagged:
		return true
	}
	return false
}

func handleSetReminder(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	threadID, err := common.RequiredString(args, common.ArgThreadID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	item, err := sc.FollowUp().SetReminder(threadID, common.StringArg(args, "date"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return common.JSONResult(item)
}

func handleRefine(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	threadID, err := common.RequiredString(request.GetArguments(), common.ArgThreadID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	state, err := sc.Refine(threadID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return common.JSONResult(state)
}

func handleSend(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	threadID, err := common.RequiredString(request.GetArguments(), common.ArgThreadID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	notice, err := sc.FollowUp().SendThread(ctx, threadID)
	switch {
	case errors.Is(err, followup.ErrUnknownThread), errors.Is(err, followup.ErrNoDraftContent):
		return mcp.NewToolResultError(err.Error()), nil
	case err != nil:
		return common.ErrorResult("Failed to send follow-up", err), nil
	}
	return common.NoticeResult(notice)
}

func handleSendBatch(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	threadIDs, err := batch.ParseStringOrArray(request.GetArguments()[common.ArgThreadIDs], common.ArgThreadIDs)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results := sc.FollowUp().SendMany(ctx, threadIDs)
	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}
