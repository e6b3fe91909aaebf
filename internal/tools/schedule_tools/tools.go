package schedule_tools

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxcopilot/internal/scheduler"
	"github.com/teemow/inboxcopilot/internal/server"
	"github.com/teemow/inboxcopilot/internal/tools/common"
)

// RegisterScheduleTools registers the schedule tools with the MCP server
func RegisterScheduleTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	getTool := mcp.NewTool("schedule_get",
		mcp.WithDescription("Get the follow-up scan schedule, a readable description of when it runs and its most recent executions"),
	)
	s.AddTool(getTool, common.InstrumentedToolHandler("schedule_get", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGet(ctx, request, sc)
	}))

	if readOnly {
		return nil
	}

	toggleTool := mcp.NewTool("schedule_toggle",
		mcp.WithDescription("Pause the follow-up scan schedule when it is active, or resume it when it is paused"),
	)
	s.AddTool(toggleTool, common.InstrumentedToolHandler("schedule_toggle", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleToggle(ctx, request, sc)
	}))

	triggerTool := mcp.NewTool("schedule_trigger_now",
		mcp.WithDescription("Run the follow-up scan schedule immediately"),
	)
	s.AddTool(triggerTool, common.InstrumentedToolHandler("schedule_trigger_now", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleTriggerNow(ctx, request, sc)
	}))

	return nil
}

func handleGet(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	view, err := sc.Schedule().Load(ctx)
	if err != nil && view.Schedule == nil {
		return common.ErrorResult("Failed to load schedule", err), nil
	}
	return common.JSONResult(view)
}

func handleToggle(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	panel := sc.Schedule()
	if panel.View().Schedule == nil {
		if _, err := panel.Load(ctx); err != nil && panel.View().Schedule == nil {
			return common.ErrorResult("Failed to load schedule", err), nil
		}
	}

	view, err := panel.Toggle(ctx)
	if errors.Is(err, scheduler.ErrNoSchedule) {
		return mcp.NewToolResultError("Schedule is not available"), nil
	}
	if err != nil {
		return common.ErrorResult("Failed to toggle schedule", err), nil
	}
	return common.JSONResult(view)
}

func handleTriggerNow(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	notice, _ := sc.Schedule().TriggerNow(ctx)
	return common.NoticeResult(notice)
}
