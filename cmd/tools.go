// File: cmd/tools.go
package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/cherry/internal/mcp"
	"github.com/xkilldash9x/cherry/internal/observability"
	"github.com/xkilldash9x/cherry/internal/service"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools exposed by the configured MCP servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if !cfg.MCP.Enabled {
				fmt.Fprintln(cmd.OutOrStdout(), "MCP is disabled (mcp.enabled=false).")
				return nil
			}

			manager := service.InitializeToolManager(ctx, cfg.MCP, observability.GetLogger())
			defer manager.Close()
			return printTools(cmd.OutOrStdout(), manager.Tools())
		},
	}
}

// printTools writes one line per tool, aligned in two columns.
func printTools(out io.Writer, tools []mcp.ToolSummary) error {
	if len(tools) == 0 {
		_, err := fmt.Fprintln(out, "No MCP tools available.")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tDESCRIPTION")
	for _, t := range tools {
		fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Description)
	}
	return w.Flush()
}
