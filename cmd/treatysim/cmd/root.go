package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "treatysim",
	Short: "A reinsurance treaty market simulator with risk-constrained agents",
	Long: `Treatysim models a reinsurance treaty market as a repeated multi-agent
bidding game and trains agent pricing policies under an explicit CVaR
tail-risk constraint.

It provides tools for:
  - Training bidding agents with constrained multi-agent PPO
  - Stress-testing frozen policies under shifted treaty distributions
  - Exporting round-level data and policy traces for downstream
    benchmarking, dashboard and governance tooling
  - Querying exported journals`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
