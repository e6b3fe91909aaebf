package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxcopilot/internal/scheduler"
	"github.com/teemow/inboxcopilot/internal/server"
	"github.com/teemow/inboxcopilot/internal/status"
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect and control the recurring follow-up scan",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the schedule and its recent executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScheduleContext(cmd, runScheduleStatus)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "toggle",
		Short: "Pause an active schedule or resume a paused one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScheduleContext(cmd, runScheduleToggle)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "trigger",
		Short: "Run the follow-up scan now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScheduleContext(cmd, runScheduleTrigger)
		},
	})

	return cmd
}

func withScheduleContext(cmd *cobra.Command, run func(context.Context, *server.ServerContext, io.Writer) error) error {
	sc, err := newCLIContext(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = sc.Shutdown() }()
	return run(cmd.Context(), sc, cmd.OutOrStdout())
}

func runScheduleStatus(ctx context.Context, sc *server.ServerContext, out io.Writer) error {
	view, err := sc.Schedule().Load(ctx)
	if view.Schedule == nil {
		if err == nil {
			err = scheduler.ErrNoSchedule
		}
		return err
	}
	printSchedule(out, view)
	return err
}

func runScheduleToggle(ctx context.Context, sc *server.ServerContext, out io.Writer) error {
	panel := sc.Schedule()
	if _, err := panel.Load(ctx); err != nil && panel.View().Schedule == nil {
		return err
	}
	view, err := panel.Toggle(ctx)
	if err != nil {
		return err
	}
	printSchedule(out, view)
	return nil
}

func runScheduleTrigger(ctx context.Context, sc *server.ServerContext, out io.Writer) error {
	n, err := sc.Schedule().TriggerNow(ctx)
	if n.Kind == status.KindError {
		return fmt.Errorf("%s: %w", n.Text, err)
	}
	fmt.Fprintln(out, n.Text)
	return nil
}

func printSchedule(out io.Writer, view scheduler.View) {
	s := view.Schedule
	state := "paused"
	if s.IsActive {
		state = "active"
	}
	fmt.Fprintf(out, "Schedule %s: %s\n", s.ID, state)
	fmt.Fprintf(out, "  Runs:     %s\n", view.Description)
	if s.NextRunTime != "" && s.IsActive {
		fmt.Fprintf(out, "  Next run: %s\n", s.NextRunTime)
	}
	if s.LastRunAt != "" {
		fmt.Fprintf(out, "  Last run: %s\n", s.LastRunAt)
	}
	if len(view.Logs) == 0 {
		return
	}
	fmt.Fprintln(out, "  Recent executions:")
	for _, l := range view.Logs {
		result := "ok"
		if !l.Success {
			result = "failed"
			if l.Error != "" {
				result += ": " + l.Error
			}
		}
		fmt.Fprintf(out, "    %s  %s\n", l.ExecutedAt, result)
	}
}
