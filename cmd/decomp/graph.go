package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/decomp/internal/cli"
)

var graphCmd = &cobra.Command{
	Use:   "graph [problem.yaml]",
	Short: "Print the decomposition tree as a Mermaid diagram",
	Long: `Builds the problem's tree and outputs a Mermaid diagram (graph TD). With --ranks
the nodes are coloured by the rank they would run on in distributed mode.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "problem.yaml"
		if len(args) > 0 {
			path = args[0]
		}
		configPath, _ := cmd.Flags().GetString("config")
		ranks, _ := cmd.Flags().GetInt("ranks")
		cmd.SilenceUsage = true
		return cli.Graph(cmd.OutOrStdout(), path, configPath, ranks)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Int("ranks", 1, "World size used to colour nodes by rank")
}
