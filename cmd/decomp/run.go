package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/decomp/internal/cli"
)

var runCmd = &cobra.Command{
	Use:   "run [problem.yaml]",
	Short: "Solve a problem",
	Long: `Loads a problem file and solves it. Parameters come from the defaults, then the
--config file, then DECOMP_* variables, then --set overrides.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		opts := cli.RunOptions{Stdout: cmd.OutOrStdout()}
		opts.ProblemPath, _ = flags.GetString("problem")
		if len(args) > 0 {
			opts.ProblemPath = args[0]
		}
		opts.ConfigPath, _ = cmd.Flags().GetString("config")
		opts.Mode, _ = flags.GetString("mode")
		opts.Ranks, _ = flags.GetInt("ranks")
		opts.RedisAddr, _ = flags.GetString("redis")
		opts.RedisPassword, _ = flags.GetString("redis-password")
		opts.RedisDB, _ = flags.GetInt("redis-db")
		opts.Rank, _ = flags.GetInt("rank")
		opts.Size, _ = flags.GetInt("size")
		opts.RunID, _ = flags.GetString("run-id")
		opts.OutputDir, _ = flags.GetString("out")
		opts.MetricsAddr, _ = flags.GetString("metrics-addr")
		opts.LogLevel, _ = flags.GetString("log-level")
		opts.Watch, _ = flags.GetBool("watch")
		opts.Overrides, _ = flags.GetStringToString("set")

		cmd.SilenceUsage = true
		return cli.Execute(opts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("problem", "p", "problem.yaml", "Problem file (YAML)")
	runCmd.Flags().StringP("mode", "m", "tree", "Orchestration mode: tree, hub or distributed")
	runCmd.Flags().Int("ranks", 1, "Ranks to run in this process (distributed mode)")
	runCmd.Flags().String("redis", "", "Redis address; ranks exchange messages through it")
	runCmd.Flags().String("redis-password", "", "Redis password")
	runCmd.Flags().Int("redis-db", 0, "Redis database")
	runCmd.Flags().Int("rank", -1, "Run only this rank of a multi-process world (requires --redis)")
	runCmd.Flags().Int("size", 0, "World size when --rank is set")
	runCmd.Flags().String("run-id", "", "Run identifier shared by all ranks (default: random)")
	runCmd.Flags().StringP("out", "o", "", "Output directory for iteration tables and dumps")
	runCmd.Flags().String("metrics-addr", "", "Serve /metrics and /status on this address")
	runCmd.Flags().BoolP("watch", "w", false, "Solve again whenever the problem or config file changes")
	runCmd.Flags().String("log-level", "", "Log level: debug, info, warn or error")
	runCmd.Flags().StringToString("set", nil, "Parameter overrides, e.g. --set proximal.enabled=true")
}
