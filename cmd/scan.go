package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxcopilot/internal/agent"
	"github.com/teemow/inboxcopilot/internal/followup"
	"github.com/teemow/inboxcopilot/internal/server"
)

func newScanCmd() *cobra.Command {
	var (
		days     int
		category string
		send     bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the inbox for emails that need follow-up",
		Long: `Ask the follow-up agent for threads that need attention: unanswered emails
older than the threshold, pending commitments, open questions and flagged
items. With --send, every item that comes with a suggested draft is sent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := newCLIContext(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = sc.Shutdown() }()

			opts := sc.ScanOptions()
			if cmd.Flags().Changed("days") {
				opts.ThresholdDays = days
			}
			return runScan(cmd.Context(), sc, opts, category, send, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&days, "days", followup.DefaultThresholdDays, "Days after which an unanswered email counts (default: from settings)")
	cmd.Flags().StringVar(&category, "category", followup.CategoryAll, "Only show one category: unanswered, commitments, questions, flagged or all")
	cmd.Flags().BoolVar(&send, "send", false, "Send the suggested follow-up for every listed item that has one")
	return cmd
}

func runScan(ctx context.Context, sc *server.ServerContext, opts followup.Options, category string, send bool, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctrl := sc.FollowUp()

	res, err := ctrl.Scan(ctx, opts)
	var authErr *agent.AuthorizationRequiredError
	if errors.As(err, &authErr) {
		fmt.Fprintf(out, "Gmail authorization is required. Open this URL, grant access, then run the scan again:\n  %s\n", authErr.URL)
		return nil
	}
	if err != nil {
		return err
	}

	ctrl.SetFilter(category)
	items := ctrl.Visible()

	fmt.Fprintf(out, "%d items need follow-up (unanswered %d, commitments %d, questions %d, flagged %d)\n",
		res.TotalCount, res.Categories.Unanswered, res.Categories.Commitments,
		res.Categories.Questions, res.Categories.Flagged)
	if res.Message != "" {
		fmt.Fprintln(out, res.Message)
	}
	if len(items) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "THREAD\tCATEGORY\tWAITING\tFROM\tSUBJECT\tREMINDER")
	for _, it := range items {
		reminder := "-"
		if it.HasReminder {
			reminder = it.ReminderDate
		}
		fmt.Fprintf(tw, "%s\t%s\t%dd\t%s\t%s\t%s\n",
			it.ThreadID, it.CategoryLabel(), it.DaysWaiting, it.Sender, it.Subject, reminder)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !send {
		return nil
	}

	var ids []string
	for _, it := range items {
		if strings.TrimSpace(it.DraftContent) != "" {
			ids = append(ids, it.ThreadID)
		}
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "\nNo item has a suggested draft; nothing sent.")
		return nil
	}

	fmt.Fprintln(out)
	failed := 0
	for _, r := range ctrl.SendMany(ctx, ids) {
		if r.Error != "" {
			failed++
			fmt.Fprintf(out, "  %s: failed: %s\n", r.ID, r.Error)
			continue
		}
		fmt.Fprintf(out, "  %s: %s\n", r.ID, r.Result)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d follow-ups failed", failed, len(ids))
	}
	return nil
}
