package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"n8n-mcp/backend/internal/mcp"
)

var toolsOutputFormat string

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := mcp.NewRegistry()
			if err != nil {
				return err
			}
			catalog := registry.Catalog()

			switch toolsOutputFormat {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(catalog)
			case "table":
				t := table.NewWriter()
				t.SetOutputMirror(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"#", "Tool", "Description"})
				for i, d := range catalog {
					t.AppendRow(table.Row{i + 1, d.Name, firstSentence(d.Description)})
				}
				t.Render()
				return nil
			default:
				return fmt.Errorf("unsupported output format %q (use table or json)", toolsOutputFormat)
			}
		},
	}
	cmd.Flags().StringVarP(&toolsOutputFormat, "output", "o", "table", "Output format: table or json")
	return cmd
}

func firstSentence(s string) string {
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i+1]
	}
	return s
}
