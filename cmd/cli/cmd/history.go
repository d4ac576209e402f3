package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/spgemm-symbolic/internal/report"
	"github.com/spgemm-symbolic/internal/repository"
)

var (
	historyStrategy string
	historyStatus   string
	historyLimit    int
	statsSince      time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		runs, err := svc.History(cmd.Context(), repository.RunFilter{
			Strategy: historyStrategy,
			Status:   repository.RunStatus(historyStatus),
			Limit:    historyLimit,
		})
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tCREATED\tSTRATEGY\tROWS\tNNZ\tTIME\tSTATUS")
		for _, r := range runs {
			status := string(r.Status)
			if r.ErrorCode != "" {
				status += " (" + r.ErrorCode + ")"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%v\t%s\n", r.RunID,
				r.CreatedAt.Format(time.DateTime), r.Strategy, r.Rows, r.Nnz, r.Duration, status)
		}
		return w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recorded runs per strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		var since time.Time
		if statsSince > 0 {
			since = time.Now().Add(-statsSince)
		}
		stats, err := svc.StrategyStats(cmd.Context(), since)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STRATEGY\tRUNS\tFAILED\tAVG MS\tMAX NNZ\tSPINS")
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\t%.3f\t%d\t%d\n",
				s.Strategy, s.Runs, s.Failures, s.AvgMillis, s.MaxNnz, s.TotalSpins)
		}
		return w.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show <report-file>",
	Short: "Print a run report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := report.Read(args[0])
		if err != nil {
			return err
		}
		printReport(cmd.OutOrStdout(), r)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd, statsCmd, showCmd)

	historyCmd.Flags().StringVarP(&historyStrategy, "strategy", "s", "", "Only runs of this strategy")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Only runs with this status: succeeded or failed")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum runs to list")
	statsCmd.Flags().DurationVar(&statsSince, "since", 0, "Only runs newer than this (e.g. 24h); 0 means all")
}
