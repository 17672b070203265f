package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/treatylens/treatysim/config"
	"github.com/treatylens/treatysim/stress"
	"github.com/treatylens/treatysim/trainer"
)

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Stress-test a trained checkpoint under shock scenarios",
	Long: `Replay frozen agent policies from a checkpoint under the stress
scenarios in the config file and report robustness metrics versus the
unstressed baseline.

Example:
  treatysim stress --config basic.yaml --checkpoint agents.json --seed 7`,
	RunE: runStress,
}

var (
	stressConfigPath     string
	stressCheckpointPath string
	stressSeed           int64
)

func init() {
	rootCmd.AddCommand(stressCmd)

	stressCmd.Flags().StringVarP(&stressConfigPath, "config", "f", "", "path to config file (required)")
	stressCmd.Flags().StringVarP(&stressCheckpointPath, "checkpoint", "c", "", "path to trained agent checkpoint (required)")
	stressCmd.Flags().Int64Var(&stressSeed, "seed", 1, "evaluation seed (independent of training seed)")
	stressCmd.MarkFlagRequired("config")
	stressCmd.MarkFlagRequired("checkpoint")
}

func runStress(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(stressConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Stress) == 0 {
		return fmt.Errorf("config %s defines no stress scenarios", stressConfigPath)
	}

	cp, err := trainer.LoadCheckpoint(stressCheckpointPath)
	if err != nil {
		return err
	}
	agents := cp.Agents()
	fmt.Printf("Loaded %d agents from run %s (generation %d)\n\n", len(agents), cp.RunID, cp.Generation)

	for _, sc := range cfg.Stress {
		report, err := stress.Run(agents, stress.FromConfig(sc), cfg, stressSeed)
		if err != nil {
			return err
		}

		fmt.Printf("Scenario %q (%d episodes, seed %d)\n", report.Scenario, report.Episodes, report.Seed)
		fmt.Printf("  Market bind rate: %.1f%% -> %.1f%%\n",
			report.BaselineBindRate*100, report.StressBindRate*100)
		for _, a := range report.Agents {
			fmt.Printf("  %-14s reward %8.3f -> %8.3f  breach %5.1f%% -> %5.1f%% (%+.1f%%)  win %5.1f%% -> %5.1f%%\n",
				a.AgentID,
				a.BaselineMeanReward, a.StressMeanReward,
				a.BaselineBreachRate*100, a.StressBreachRate*100, a.BreachRateDelta*100,
				a.BaselineWinRate*100, a.StressWinRate*100)
		}
		fmt.Println()
	}
	return nil
}
