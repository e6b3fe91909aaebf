package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxcopilot/internal/agent"
	"github.com/teemow/inboxcopilot/internal/copilot"
	"github.com/teemow/inboxcopilot/internal/server"
	"github.com/teemow/inboxcopilot/internal/status"
)

// Commands understood by the interactive draft session.
const (
	draftCmdSend  = "/send"
	draftCmdCopy  = "/copy"
	draftCmdRegen = "/regen"
	draftCmdShow  = "/show"
	draftCmdQuit  = "/quit"
)

// draftOptions configures an interactive draft session.
type draftOptions struct {
	threadID  string
	query     string
	allowSend bool
}

func newDraftCmd() *cobra.Command {
	var opts draftOptions

	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Draft a reply and refine it interactively",
		Long: `Fetch the inbox, pick an email (the first one, or --thread) and let the
copilot draft a reply. Every line typed on stdin is sent to the copilot as a
refinement request. Commands:

  /show    print the current draft
  /regen   draft again from scratch
  /copy    copy the draft to the clipboard
  /send    send the reply (requires --yolo)
  /quit    leave without sending`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := newCLIContext(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = sc.Shutdown() }()

			return runDraft(cmd.Context(), sc, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.threadID, "thread", "", "Thread ID to reply to (default: the most recent email)")
	cmd.Flags().StringVar(&opts.query, "query", "", "Search the inbox instead of listing recent emails")
	cmd.Flags().BoolVar(&opts.allowSend, "yolo", false, "Allow /send")
	return cmd
}

func runDraft(ctx context.Context, sc *server.ServerContext, opts draftOptions, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cp := sc.Copilot()

	view, err := cp.FetchInbox(ctx, opts.query)
	var authErr *agent.AuthorizationRequiredError
	if errors.As(err, &authErr) {
		fmt.Fprintf(out, "Gmail authorization is required. Open this URL, grant access, then try again:\n  %s\n", authErr.URL)
		return nil
	}
	if err != nil {
		return err
	}

	email, err := pickEmail(view.Emails, opts.threadID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Replying to %q from %s\n", email.Subject, email.Sender)

	if err := cp.SelectEmail(ctx, email); err != nil {
		return err
	}
	draft, err := cp.Open(ctx, email)
	if err != nil {
		return err
	}
	printDraft(out, draft)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case draftCmdQuit:
			return nil
		case draftCmdShow:
			printDraft(out, cp.Draft())
		case draftCmdCopy:
			if cp.Copy() {
				fmt.Fprintln(out, "Copied to clipboard.")
			} else {
				fmt.Fprintln(out, "Could not copy to the clipboard.")
			}
		case draftCmdRegen:
			d, err := cp.GenerateDraft(ctx)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			printDraft(out, d)
		case draftCmdSend:
			if !opts.allowSend {
				fmt.Fprintln(out, "Sending is disabled; run with --yolo to allow /send.")
				continue
			}
			n, err := cp.SendReply(ctx)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintln(out, n.Text)
			if n.Kind != status.KindError {
				return nil
			}
		default:
			reply, err := cp.Chat(ctx, line)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintln(out, reply.Content)
			if reply.Draft != nil {
				printDraft(out, reply.Draft)
			}
		}
	}
}

func pickEmail(emails []copilot.Email, threadID string) (copilot.Email, error) {
	if len(emails) == 0 {
		return copilot.Email{}, fmt.Errorf("no emails found")
	}
	if threadID == "" {
		return emails[0], nil
	}
	for _, e := range emails {
		if e.ThreadID == threadID || e.ID == threadID {
			return e, nil
		}
	}
	return copilot.Email{}, fmt.Errorf("thread %s not found among %d fetched emails", threadID, len(emails))
}

func printDraft(out io.Writer, d *copilot.Draft) {
	if d == nil {
		fmt.Fprintln(out, "(no draft)")
		return
	}
	fmt.Fprintf(out, "\nSubject: %s\n\n%s\n\n", d.Subject, d.Body)
	for _, a := range d.SuggestedActions {
		fmt.Fprintf(out, "  suggestion: %s\n", a)
	}
}
