package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxcopilot/internal/connection"
	"github.com/teemow/inboxcopilot/internal/server"
)

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Verify the Gmail connection of the copilot agent",
		Long: `Ask the copilot agent to fetch the most recent email. When Gmail access has
not been granted yet, the authorization URL is printed; open it, grant
access and run connect again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := newCLIContext(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = sc.Shutdown() }()

			return runConnect(cmd.Context(), sc, cmd.OutOrStdout())
		},
	}
}

func runConnect(ctx context.Context, sc *server.ServerContext, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	outcome, err := sc.Connection().Connect(ctx)
	if err != nil {
		return fmt.Errorf("connection check failed: %w", err)
	}

	switch {
	case outcome.AuthURL != "":
		fmt.Fprintf(out, "Gmail authorization is required. Open this URL and grant access:\n  %s\n", outcome.AuthURL)
	case outcome.State == connection.StateConnected:
		fmt.Fprintln(out, "Gmail is connected.")
		if outcome.Message != "" {
			fmt.Fprintln(out, outcome.Message)
		}
	case outcome.State == connection.StateError:
		return fmt.Errorf("gmail connection failed: %s", outcome.Error)
	default:
		fmt.Fprintf(out, "Gmail is not connected yet: %s\n", outcome.Error)
	}
	return nil
}
