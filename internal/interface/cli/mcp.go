package cli

import (
	"fmt"

	"github.com/neilberkman/groupsum/cmd/groupsum/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Start MCP server over stdio",
	Long: `Start an MCP (Model Context Protocol) server that exposes the recorded
groups, messages and summaries to an assistant.

Configure in the client's config file:
  {
    "mcpServers": {
      "groupsum": {
        "command": "groupsum",
        "args": ["serve-mcp"]
      }
    }
  }
`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	if err := mcp.StartServer(cfg.DB.Path, versionInfo); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
