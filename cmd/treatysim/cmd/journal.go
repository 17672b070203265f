package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/treatylens/treatysim/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query an exported SQLite journal",
	Long: `Inspect rounds and policy traces exported by a training or stress run.

Examples:
  treatysim journal --db market.sqlite runs
  treatysim journal --db market.sqlite summary 01J8...
  treatysim journal --db market.sqlite traces 01J8... --agent reinsurer-2`,
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List run IDs in the journal",
	RunE:  runJournalRuns,
}

var journalSummaryCmd = &cobra.Command{
	Use:   "summary RUN_ID",
	Short: "Summarize one run's rounds",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalSummary,
}

var journalTracesCmd = &cobra.Command{
	Use:   "traces RUN_ID",
	Short: "Print one run's policy trace",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTraces,
}

var (
	journalDBPath string
	journalAgent  string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRunsCmd)
	journalCmd.AddCommand(journalSummaryCmd)
	journalCmd.AddCommand(journalTracesCmd)

	journalCmd.PersistentFlags().StringVar(&journalDBPath, "db", "./market.sqlite", "path to SQLite journal DB")
	journalTracesCmd.Flags().StringVar(&journalAgent, "agent", "", "filter to one agent ID")
}

func openDB() (*journal.SQLite, error) {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", journalDBPath, err)
	}
	return j, nil
}

func runJournalRuns(cmd *cobra.Command, args []string) error {
	j, err := openDB()
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("journal holds no runs")
		return nil
	}
	for _, id := range runs {
		fmt.Println(id)
	}
	return nil
}

func runJournalSummary(cmd *cobra.Command, args []string) error {
	j, err := openDB()
	if err != nil {
		return err
	}
	defer j.Close()

	s, err := j.SummarizeRun(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Run %s\n", s.RunID)
	fmt.Printf("  Rounds:        %d\n", s.Rounds)
	fmt.Printf("  Accepted:      %d (%.1f%%)\n", s.Accepted, float64(s.Accepted)/float64(s.Rounds)*100)
	fmt.Printf("  Mean premium:  %.4f\n", s.MeanPremium)
	fmt.Printf("  Mean CVaR 95:  %.4f\n", s.MeanCVaR)
	return nil
}

func runJournalTraces(cmd *cobra.Command, args []string) error {
	j, err := openDB()
	if err != nil {
		return err
	}
	defer j.Close()

	traces, err := j.ListTraces(args[0], journalAgent)
	if err != nil {
		return err
	}
	for _, t := range traces {
		alert := ""
		if t.Alert {
			alert = "  ALERT"
		}
		fmt.Printf("round %4d  %-14s premium %8.3f  quota %.3f  cvar %6.3f  lambda %6.3f%s\n",
			t.Round, t.AgentID, t.Premium, t.QuotaShare, t.CVaR, t.Lambda, alert)
	}
	return nil
}
