package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/spgemm-symbolic/internal/report"
	"github.com/spgemm-symbolic/pkg/config"
)

var (
	strategyFlag   string
	execSpaceFlag  string
	preferenceFlag string
	concurrency    int
	vectorSize     int
	chunkRows      int
	rowsFlag       int
	innerFlag      int
	colsFlag       int
	perRowFlag     int
	seedFlag       int64
	verifyFlag     bool
	countOnly      bool
	intersection   bool
	reportDir      string
	compressFlag   string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute the structure of one random product",
	Long: `Generate random operands A and B, compute the structure of C = A*B and
write a run report.

Flags override the matching keys of the configuration file.

Strategies:
  - auto             : pick from the execution space and preference (default)
  - dense            : one word per possible set index
  - cuckoo           : open addressing, full clear after each row
  - tracked          : open addressing, clears only touched slots
  - tracked-avalanche: tracked with an avalanche hash
  - chained          : bucketed lists, lanes may share a row
  - two-level        : small private table spilling into a chained table`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addKernelFlags(runCmd)
}

// addKernelFlags registers the flags shared by run and bench.
func addKernelFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringVarP(&strategyFlag, "strategy", "s", "", "Accumulator strategy")
	f.StringVar(&execSpaceFlag, "exec-space", "", "Execution space: serial, threads or device")
	f.StringVar(&preferenceFlag, "preference", "", "Auto preference: none, speed or memory")
	f.IntVarP(&concurrency, "concurrency", "j", 0, "Total lanes (0 uses GOMAXPROCS)")
	f.IntVar(&vectorSize, "vector-size", 0, "Lanes cooperating on one row")
	f.IntVar(&chunkRows, "chunk-rows", 0, "Rows a worker takes at a time")
	f.IntVar(&rowsFlag, "rows", 0, "Rows of A")
	f.IntVar(&innerFlag, "inner", 0, "Columns of A and rows of B")
	f.IntVar(&colsFlag, "cols", 0, "Columns of B")
	f.IntVar(&perRowFlag, "per-row", 0, "Nonzeros per row of A and B")
	f.Int64Var(&seedFlag, "seed", 0, "Random seed")
	f.BoolVar(&verifyFlag, "verify", false, "Check the result against a column-by-column product")
	f.BoolVar(&countOnly, "count-only", false, "Skip materializing column indices")
	f.BoolVar(&intersection, "intersection", false, "Also estimate intersection-style row sizes")
	f.StringVarP(&reportDir, "output", "o", "", "Report directory")
	f.StringVar(&compressFlag, "compress", "", "Report compression: none, gzip or zstd")
}

// applyKernelFlags copies explicitly set flags over cfg.
func applyKernelFlags(c *cobra.Command, cfg *config.Config) error {
	f := c.Flags()
	set := func(name string, apply func()) {
		if f.Changed(name) {
			apply()
		}
	}
	set("strategy", func() { cfg.Symbolic.Strategy = strategyFlag })
	set("exec-space", func() { cfg.Symbolic.ExecSpace = execSpaceFlag })
	set("preference", func() { cfg.Symbolic.Preference = preferenceFlag })
	set("concurrency", func() { cfg.Symbolic.Concurrency = concurrency })
	set("vector-size", func() { cfg.Symbolic.VectorSize = vectorSize })
	set("chunk-rows", func() { cfg.Symbolic.ChunkRows = chunkRows })
	set("rows", func() { cfg.Matrix.Rows = rowsFlag })
	set("inner", func() { cfg.Matrix.Inner = innerFlag })
	set("cols", func() { cfg.Matrix.Cols = colsFlag })
	set("per-row", func() { cfg.Matrix.PerRow = perRowFlag })
	set("seed", func() { cfg.Matrix.Seed = seedFlag })
	set("verify", func() { cfg.Symbolic.Verify = verifyFlag })
	set("count-only", func() { cfg.Symbolic.Materialize = !countOnly })
	set("intersection", func() { cfg.Symbolic.Intersection = intersection })
	set("output", func() { cfg.Report.Dir = reportDir })
	set("compress", func() { cfg.Report.Compression = compressFlag })
	return cfg.Validate()
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := applyKernelFlags(cmd, cfg); err != nil {
		return err
	}
	ctx := cmd.Context()
	svc, err := openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	opts, err := svc.Options()
	if err != nil {
		return err
	}
	a, bm := svc.Operands()
	logger.Info("A: %dx%d (%d nonzeros), B: %dx%d (%d nonzeros)",
		a.Rows, a.Cols, a.Nnz(), bm.Rows, bm.Cols, bm.Nnz())

	out, err := svc.Run(ctx, a, bm, opts)
	if out != nil {
		printReport(cmd.OutOrStdout(), out.Report)
		if out.File != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  Report:      %s\n", out.File)
		}
		if out.ReportURL != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  Archived:    %s\n", out.ReportURL)
		}
	}
	return err
}

func printReport(w io.Writer, r *report.RunReport) {
	fmt.Fprintf(w, "=== Run %s ===\n", r.RunID)
	op := r.Operands
	fmt.Fprintf(w, "  A:           %d x %d, %d nonzeros\n", op.Rows, op.Inner, op.NnzA)
	fmt.Fprintf(w, "  B:           %d x %d, %d nonzeros in %d packed sets\n", op.Inner, op.Cols, op.NnzB, op.PackedB)
	if r.Failure != nil {
		fmt.Fprintf(w, "  Failed:      [%s] %s\n", r.Failure.Code, r.Failure.Message)
		return
	}
	res := r.Result
	if res == nil {
		return
	}
	if p := res.Plan; p != nil {
		fmt.Fprintf(w, "  Strategy:    %s on %s (%d workers x %d lanes, %d chunks of %d words)\n",
			p.Strategy, p.ExecSpace, p.Workers, p.VectorSize, p.NumChunks, p.ChunkWords)
	}
	fmt.Fprintf(w, "  Estimate:    %d sets per row at most\n", res.Estimate.Max)
	if res.Intersection != nil {
		fmt.Fprintf(w, "  Intersect:   %d sets per row at most\n", res.Intersection.Max)
	}
	fmt.Fprintf(w, "  C:           %d nonzeros, longest row %d\n", res.Nnz, res.MaxRowNnz)
	fmt.Fprintf(w, "  Arena:       %d claims, %d spins\n", res.ArenaStats.Claims, res.ArenaStats.Spins)
	if r.Verified {
		fmt.Fprintf(w, "  Verified:    yes\n")
	}
	for _, p := range res.Phases {
		fmt.Fprintf(w, "  %-12s %v\n", p.Name+":", p.Duration)
	}
	if len(r.RowSizes) > 0 {
		fmt.Fprintf(w, "  Row sizes:\n")
		for _, b := range r.RowSizes {
			fmt.Fprintf(w, "    %6d..%-6d %d\n", b.Lo, b.Hi, b.Rows)
		}
	}
}
