// Package cmd implements the command-line interface for inboxcopilot.
//
// This package provides the following commands:
//   - serve: Start the MCP server (stdio or streamable HTTP)
//   - scan: Scan the inbox for emails that need follow-up
//   - connect: Verify the Gmail connection of the copilot agent
//   - draft: Draft a reply and refine it interactively
//   - schedule status|toggle|trigger: Control the recurring follow-up scan
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
package cmd
