package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/decomp/internal/cli"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts decomp as an MCP Server so agents can solve, validate and inspect problem
files as tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.MCPOptions{}
		opts.ConfigPath, _ = cmd.Flags().GetString("config")
		opts.Transport, _ = cmd.Flags().GetString("transport")
		opts.Port, _ = cmd.Flags().GetInt("port")
		opts.LogLevel, _ = cmd.Flags().GetString("log-level")
		cmd.SilenceUsage = true
		return cli.ServeMCP(opts)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringP("transport", "t", "stdio", "Transport: stdio or sse")
	mcpCmd.Flags().IntP("port", "p", 8080, "Port for the SSE transport")
	mcpCmd.Flags().String("log-level", "", "Log level: debug, info, warn or error")
}
