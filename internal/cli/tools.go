package cli

import (
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/deskai-dev/deskai/go/internal/engine/shell"
	"github.com/deskai-dev/deskai/go/internal/engine/tools"
)

// NewToolsCmd creates the tools command
func NewToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog",
		Long:  `Print the tools the engine offers to the model, with their parameters.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(toolTable())
		},
	}
}

func toolTable() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft, WidthMax: 56},
		{Number: 3, Align: text.AlignLeft, WidthMax: 40},
	})
	tw.AppendHeader(table.Row{"Tool", "Description", "Parameters"})

	for _, def := range tools.Catalog() {
		tw.AppendRow(table.Row{def.Name, def.Description, parameterSummary(def.Parameters)})
	}
	return tw.Render() + "\n"
}

// parameterSummary flattens a tool's JSON schema into "name*" (required)
// and "name" entries.
func parameterSummary(schema map[string]interface{}) string {
	props, _ := schema["properties"].(map[string]interface{})
	required := map[string]bool{}
	if names, ok := schema["required"].([]string); ok {
		for _, name := range names {
			required[name] = true
		}
	}

	entries := make([]string, 0, len(props))
	for name := range props {
		if required[name] {
			entries = append(entries, name+"*")
		} else {
			entries = append(entries, name)
		}
	}
	sort.Strings(entries)
	return strings.Join(entries, ", ")
}

func sessionTable(sessions []shell.SessionInfo) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 48},
		{Number: 3, WidthMax: 32},
	})
	tw.AppendHeader(table.Row{"Session", "Command", "Cwd", "Elevated", "Age"})

	now := time.Now()
	for _, s := range sessions {
		tw.AppendRow(table.Row{
			s.ID,
			s.Command,
			s.Cwd,
			s.Elevated,
			now.Sub(s.StartedAt).Round(time.Second).String(),
		})
	}
	return tw.Render() + "\n"
}
