package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxcopilot/internal/server"
)

// toolCategory groups tools by name prefix. Categories are rendered in the
// order a user meets them: read the inbox, draft a reply, chase follow-ups,
// then the connection and schedule plumbing.
type toolCategory struct {
	title    string
	summary  string
	prefixes []string
}

var toolCategories = []toolCategory{
	{"Inbox", "Fetch the inbox and load a thread into the copilot.", []string{"inbox"}},
	{"Copilot", "Draft, refine and send a reply to the selected email.", []string{"copilot"}},
	{"Follow-Ups", "Scan for threads that need a nudge and send suggested follow-ups.", []string{"followup"}},
	{"Connection", "Gmail connection checks and the live status notice.", []string{"gmail", "status"}},
	{"Schedule", "The recurring follow-up scan run by the scheduler service.", []string{"schedule"}},
}

// toolDoc is the documented view of one registered tool.
type toolDoc struct {
	name        string
	description string
	write       bool
	args        []argDoc
}

type argDoc struct {
	name        string
	kind        string
	required    bool
	description string
}

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Print the MCP tool reference as markdown",
		Long: `Registers every MCP tool, write tools included, and prints a markdown
reference grouped by category. The reference is built from the live tool
definitions, so it always matches what "serve" exposes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			docs, err := collectToolDocs()
			if err != nil {
				return err
			}
			if outputFile == "" {
				return renderToolDocs(cmd.OutOrStdout(), docs)
			}

			var sb strings.Builder
			if err := renderToolDocs(&sb, docs); err != nil {
				return err
			}
			if err := os.WriteFile(outputFile, []byte(sb.String()), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outputFile, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Tool reference written to %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

// collectToolDocs registers the tools twice against one placeholder context,
// read-only and full, and marks the tools only the full set has as write
// tools.
func collectToolDocs() ([]toolDoc, error) {
	sc, err := server.NewServerContext(context.Background(), server.Options{Config: placeholderConfig()})
	if err != nil {
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		_ = sc.Shutdown()
	}()

	readOnly := mcpserver.NewMCPServer("inboxcopilot", version, mcpserver.WithToolCapabilities(true))
	if err := registerAllTools(readOnly, sc, true); err != nil {
		return nil, err
	}
	full := mcpserver.NewMCPServer("inboxcopilot", version, mcpserver.WithToolCapabilities(true))
	if err := registerAllTools(full, sc, false); err != nil {
		return nil, err
	}

	safe := readOnly.ListTools()
	docs := make([]toolDoc, 0, len(full.ListTools()))
	for name, st := range full.ListTools() {
		_, isSafe := safe[name]
		docs = append(docs, newToolDoc(st.Tool, !isSafe))
	}
	slices.SortFunc(docs, func(a, b toolDoc) int { return strings.Compare(a.name, b.name) })
	return docs, nil
}

func newToolDoc(tool mcp.Tool, write bool) toolDoc {
	doc := toolDoc{name: tool.Name, description: tool.Description, write: write}
	for name, raw := range tool.InputSchema.Properties {
		prop, _ := raw.(map[string]any)
		arg := argDoc{
			name:     name,
			kind:     "any",
			required: slices.Contains(tool.InputSchema.Required, name),
		}
		if t, ok := prop["type"].(string); ok {
			arg.kind = t
		}
		if d, ok := prop["description"].(string); ok {
			arg.description = d
		}
		doc.args = append(doc.args, arg)
	}
	// Required arguments first, then by name.
	slices.SortFunc(doc.args, func(a, b argDoc) int {
		if a.required != b.required {
			if a.required {
				return -1
			}
			return 1
		}
		return strings.Compare(a.name, b.name)
	})
	return doc
}

// categoryOf returns the index into toolCategories for a tool name, or -1.
func categoryOf(name string) int {
	prefix, _, _ := strings.Cut(name, "_")
	for i, c := range toolCategories {
		if slices.Contains(c.prefixes, prefix) {
			return i
		}
	}
	return -1
}

func renderToolDocs(w io.Writer, docs []toolDoc) error {
	grouped := make([][]toolDoc, len(toolCategories))
	var uncategorized []toolDoc
	for _, d := range docs {
		if i := categoryOf(d.name); i >= 0 {
			grouped[i] = append(grouped[i], d)
		} else {
			uncategorized = append(uncategorized, d)
		}
	}

	var sb strings.Builder
	sb.WriteString("# inboxcopilot MCP tools\n\n")
	sb.WriteString("Generated by `inboxcopilot generate-docs`. Tools marked **write** are only\n")
	sb.WriteString("registered when the server runs with `--yolo`.\n\n")

	sb.WriteString("| Category | Tools |\n|---|---|\n")
	for i, c := range toolCategories {
		if len(grouped[i]) == 0 {
			continue
		}
		names := make([]string, 0, len(grouped[i]))
		for _, d := range grouped[i] {
			names = append(names, "`"+d.name+"`")
		}
		fmt.Fprintf(&sb, "| [%s](#%s) | %s |\n", c.title, anchor(c.title), strings.Join(names, ", "))
	}
	sb.WriteString("\n")

	for i, c := range toolCategories {
		if len(grouped[i]) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", c.title, c.summary)
		for _, d := range grouped[i] {
			writeToolDoc(&sb, d)
		}
	}
	if len(uncategorized) > 0 {
		sb.WriteString("## Uncategorized\n\n")
		for _, d := range uncategorized {
			writeToolDoc(&sb, d)
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeToolDoc(sb *strings.Builder, d toolDoc) {
	fmt.Fprintf(sb, "### `%s`", d.name)
	if d.write {
		sb.WriteString(" (**write**)")
	}
	sb.WriteString("\n\n")
	if d.description != "" {
		sb.WriteString(d.description + "\n\n")
	}
	if len(d.args) == 0 {
		sb.WriteString("No arguments.\n\n")
		return
	}
	sb.WriteString("| Argument | Type | Required | Description |\n|---|---|---|---|\n")
	for _, a := range d.args {
		req := "no"
		if a.required {
			req = "yes"
		}
		fmt.Fprintf(sb, "| `%s` | %s | %s | %s |\n", a.name, a.kind, req, strings.ReplaceAll(a.description, "|", `\|`))
	}
	sb.WriteString("\n")
}

func anchor(title string) string {
	return strings.ToLower(strings.ReplaceAll(title, " ", "-"))
}
