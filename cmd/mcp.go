package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/igwatch/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client query fleet publication health directly.
Configure it with:

  {
    "mcpServers": {
      "igwatch": { "command": "igwatch", "args": ["mcp"] }
    }
  }

Available tools: igw_fleet_status, igw_project_status, igw_version_gaps`,
	RunE: func(cmd *cobra.Command, args []string) error {
		agg := buildAggregator()
		srv := mcp.NewServer(&fleetRunner{agg: agg}, buildVersion)
		return srv.ServeStdio(orBackground(cmd.Context()))
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
