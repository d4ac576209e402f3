package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spgemm-symbolic/internal/symbolic"
)

var (
	benchStrategies string
	benchParallel   int
)

// benchCmd represents the bench command
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the same product with every strategy",
	Long: `Compute one random product once per strategy and print a comparison.
Every run writes its own report and, when a database is configured, is
recorded like a regular run.`,
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)
	addKernelFlags(benchCmd)
	benchCmd.Flags().StringVar(&benchStrategies, "strategies", "", "Comma-separated strategies (default: all)")
	benchCmd.Flags().IntVar(&benchParallel, "parallel", 1, "Runs executing at the same time")
}

func parseStrategies(s string) ([]symbolic.Strategy, error) {
	if strings.TrimSpace(s) == "" {
		return symbolic.Strategies, nil
	}
	var out []symbolic.Strategy
	for _, name := range strings.Split(s, ",") {
		st, err := symbolic.ParseStrategy(name)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func runBench(cmd *cobra.Command, args []string) error {
	if err := applyKernelFlags(cmd, cfg); err != nil {
		return err
	}
	strategies, err := parseStrategies(benchStrategies)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	svc, err := openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	a, bm := svc.Operands()
	results, err := svc.Bench(ctx, a, bm, strategies, benchParallel)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STRATEGY\tNNZ\tMAX ROW\tCHUNKS\tCLAIMS\tSPINS\tTIME\tSTATUS")
	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\t%v\t%v\n", r.Input, r.Duration, r.Error)
			continue
		}
		res := r.Result.Report.Result
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%v\tok\n",
			r.Input, res.Nnz, res.MaxRowNnz, res.Plan.NumChunks,
			res.ArenaStats.Claims, res.ArenaStats.Spins, r.Result.Report.Duration)
	}
	w.Flush()
	if failed > 0 {
		return fmt.Errorf("%d of %d strategies failed", failed, len(results))
	}
	return nil
}
