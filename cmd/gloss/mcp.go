package main

import (
	"github.com/spf13/cobra"

	glossmcp "github.com/hyperengineering/gloss/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdio, exposing the
annotation tools to coding and reading agents.

Example configuration:

  {
    "mcpServers": {
      "gloss": {
        "command": "gloss",
        "args": ["mcp"],
        "env": {
          "GLOSS_DB_PATH": "/path/to/gloss.db",
          "GLOSS_CLOUD_URL": "https://project.example.co/rest/v1",
          "GLOSS_CLOUD_API_KEY": "...",
          "GLOSS_ACCOUNT_ID": "..."
        }
      }
    }
  }

Logs go to stderr, or to GLOSS_DEBUG_LOG when set.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	// The client lives as long as the server.
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	return glossmcp.NewServer(a.client).Run()
}
