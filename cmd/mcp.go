package cmd

import (
	"github.com/spf13/cobra"

	"github.com/opsdesk/opsdesk/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for AI assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client query opsdesk natively for issues and triage
reports. Configure it with:

  {
    "mcpServers": {
      "opsdesk": { "command": "opsdesk", "args": ["mcp"] }
    }
  }

Available tools: opsdesk_list_issues, opsdesk_get_issue,
opsdesk_create_issue, opsdesk_update_issue, opsdesk_triage_report,
opsdesk_repair_duplicates, opsdesk_backfill_ids`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		srv := mcp.NewServer(s, currentActor())
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
