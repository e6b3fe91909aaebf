package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the inboxcopilot application
var rootCmd = &cobra.Command{
	Use:   "inboxcopilot",
	Short: "Email copilot: reply drafts, follow-up tracking and scheduled scans",
	Long: `inboxcopilot drives two remote agents on top of your Gmail inbox: a copilot
that drafts and refines replies, and a follow-up agent that finds threads
waiting for an answer. A scheduler runs the follow-up scan on a recurring
basis.

It can run as:
  - One-shot CLI commands (scan, connect, draft, schedule)
  - An MCP (Model Context Protocol) server for AI assistants`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// Persistent flags shared by all commands.
var (
	debugMode    bool
	envFile      string
	settingsPath string
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxcopilot version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file (optional)")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Path to the YAML settings file (default: $INBOXCOPILOT_SETTINGS)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newDraftCmd())
	rootCmd.AddCommand(newScheduleCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
