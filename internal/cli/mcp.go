package cli

import (
	"github.com/spf13/cobra"

	"github.com/cadre-oss/hearth/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve memory as MCP tools over stdin/stdout",
	Long: `Run a Model Context Protocol server on stdio exposing the companion's
memory: remember_fact, list_facts, search_facts, recall_episodes and
recent_episodes. Logs go to stderr and the configured log file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _, logger, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer logger.Close()
		defer engine.Close()

		return mcp.NewServer(engine, Version, logger).
			WithIO(cmd.InOrStdin(), cmd.OutOrStdout()).
			Run(cmd.Context())
	},
}
