package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/treatylens/treatysim/agent"
	"github.com/treatylens/treatysim/config"
	"github.com/treatylens/treatysim/journal"
	"github.com/treatylens/treatysim/trainer"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Train bidding agents from a config file",
	Long: `Run the constrained multi-agent training loop using settings from a
configuration file, journaling every settled round and policy trace.

Example:
  treatysim run --config examples/configs/basic.yaml --checkpoint agents.json`,
	RunE: runRun,
}

var (
	runConfigPath     string
	runCheckpointPath string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.Flags().StringVarP(&runCheckpointPath, "checkpoint", "c", "", "write trained agent states to this file")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer j.Close()

	agents := make([]*agent.Agent, 0, cfg.Run.NumAgents)
	for _, ac := range cfg.AgentConfigs() {
		agents = append(agents, agent.New(ac, cfg.Risk))
	}

	tr, err := trainer.New(cfg, agents, j)
	if err != nil {
		return err
	}

	fmt.Printf("Training run %s\n", tr.RunID())
	fmt.Printf("  Agents: %d, episodes/generation: %d, max generations: %d\n",
		cfg.Run.NumAgents, cfg.Run.EpisodesPerGeneration, cfg.Run.MaxGenerations)
	fmt.Printf("  Risk budget: %.3f at %.0f%% confidence\n",
		cfg.Risk.Budget, cfg.Risk.CVaRConfidence*100)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := tr.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Finished after %d generations (%s)\n", report.Generations, report.Reason)
	fmt.Printf("  Overall acceptance rate: %.1f%%\n", report.AcceptRate*100)
	fmt.Printf("  Market fairness: %.3f, efficiency: %.2f\n",
		report.Summary.Fairness, report.Summary.Efficiency)
	for _, a := range report.Summary.Agents {
		status := ""
		if a.Withdrawn {
			status = " (withdrawn)"
		}
		if a.OverBudget {
			status += " OVER BUDGET"
		}
		fmt.Printf("  %-14s profit %8.2f  cvar %6.3f  activity %5.1f%%%s\n",
			a.AgentID, a.Profit, a.CVaR, a.ActivityRate*100, status)
	}
	fmt.Println("  Pareto frontier:")
	for _, p := range report.Frontier {
		fmt.Printf("    %-14s gen %3d  profit %8.2f  shortfall %6.3f\n",
			p.AgentID, p.Generation, p.Profit, p.Shortfall)
	}

	if runCheckpointPath != "" {
		if err := trainer.SaveCheckpoint(runCheckpointPath, tr); err != nil {
			return err
		}
		fmt.Printf("Checkpoint written to %s\n", runCheckpointPath)
	}
	return nil
}

func openJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "csv":
		return journal.NewCSV(jc.RoundsFile, jc.TracesFile)
	case "sqlite":
		return journal.NewSQLite(jc.DBPath)
	default:
		return journal.Discard{}, nil
	}
}
