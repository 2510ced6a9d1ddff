package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/decomp/internal/cli"
	"github.com/aretw0/decomp/pkg/problem"
)

var validateCmd = &cobra.Command{
	Use:   "validate [problem.yaml]",
	Short: "Check a problem file for consistency",
	Long:  `Decodes the problem, reports every validation failure and builds its tree without solving.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "problem.yaml"
		if len(args) > 0 {
			path = args[0]
		}
		configPath, _ := cmd.Flags().GetString("config")
		cmd.SilenceUsage = true

		err := cli.Validate(cmd.OutOrStdout(), path, configPath)
		if errs := problem.ValidationErrors(err); len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "  - %v\n", e)
			}
			return fmt.Errorf("validation failed with %d errors", len(errs))
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
