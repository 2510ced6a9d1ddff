package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "decomp",
	Short: "decomp solves decomposable linear programs with cutting planes",
	Long: `decomp runs Benders and Lagrangian decomposition over a tree of masters and
subproblems, in one process or spread over ranks.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is fine; variables may come from the environment.
		_ = godotenv.Load()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Parameter file (YAML)")
}
