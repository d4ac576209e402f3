package symbolic

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/spgemm-symbolic/internal/arena"
	"github.com/spgemm-symbolic/internal/csr"
	"github.com/spgemm-symbolic/pkg/errors"
	"github.com/spgemm-symbolic/pkg/parallel"
	"github.com/spgemm-symbolic/pkg/pprof"
	"github.com/spgemm-symbolic/pkg/telemetry"
	"github.com/spgemm-symbolic/pkg/utils"
)

// Phase names recorded by Compute.
const (
	PhaseValidate    = "validate"
	PhaseEstimate    = "estimate"
	PhasePlan        = "plan"
	PhaseCount       = "count"
	PhaseScan        = "scan"
	PhaseMaterialize = "materialize"
)

// Result is the structure of C = A*B.
type Result struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
	// RowPtr has Rows+1 entries; row r of C spans [RowPtr[r], RowPtr[r+1]).
	RowPtr []int `json:"-"`
	// ColIndex is nil unless columns were materialized.
	ColIndex  []int `json:"-"`
	Nnz       int   `json:"nnz"`
	MaxRowNnz int   `json:"max_row_nnz"`

	Estimate     Estimate      `json:"estimate"`
	Intersection *Intersection `json:"intersection,omitempty"`
	Plan         *Plan         `json:"plan"`
	ArenaStats   arena.Stats   `json:"arena_stats"`
	Phases       []utils.Phase `json:"phases"`
}

// Compute runs validate, estimate, plan, count, scan and, if asked,
// materialize. Any error aborts the whole run; no partial result is
// returned.
func Compute(ctx context.Context, a *csr.Matrix, b *csr.Compressed, opts Options) (*Result, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	run := &phaseRunner{timer: opts.Timer}

	if err := run.do(ctx, PhaseValidate, func(context.Context) error {
		return csr.CheckProduct(a, b)
	}); err != nil {
		return nil, err
	}

	res := &Result{Rows: a.Rows, Cols: b.Cols}
	estimator := parallel.NewRunner(parallel.DefaultPoolConfig().WithWorkers(opts.Concurrency / opts.VectorSize))
	err = run.do(ctx, PhaseEstimate, func(ctx context.Context) error {
		if res.Estimate, err = EstimateRowSizes(ctx, a, b, estimator); err != nil {
			return err
		}
		if opts.Intersection {
			in, err := EstimateIntersection(ctx, a, b, estimator)
			if err != nil {
				return err
			}
			res.Intersection = &in
		}
		return nil
	}, attribute.Int("rows", a.Rows))
	if err != nil {
		return nil, err
	}

	var plan *Plan
	if err := run.do(ctx, PhasePlan, func(context.Context) error {
		plan, err = NewPlan(b, res.Estimate, opts)
		return err
	}, attribute.Int("estimate", res.Estimate.Max)); err != nil {
		return nil, err
	}
	res.Plan = plan

	err = run.do(ctx, PhaseCount, func(ctx context.Context) error {
		res.RowPtr, err = Count(ctx, a, b, plan)
		if err != nil {
			return err
		}
		res.MaxRowNnz, err = plan.runner.ReduceMax(ctx, a.Rows, plan.ChunkRows, func(i int) int { return res.RowPtr[i] })
		return err
	}, attribute.String("strategy", plan.Strategy.String()))
	if err != nil {
		return nil, err
	}

	if err := run.do(ctx, PhaseScan, func(ctx context.Context) error {
		res.Nnz, err = plan.runner.ExclusiveScan(ctx, res.RowPtr)
		return err
	}); err != nil {
		return nil, err
	}

	if opts.Materialize {
		if err := run.do(ctx, PhaseMaterialize, func(ctx context.Context) error {
			res.ColIndex, err = Materialize(ctx, a, b, plan, res.RowPtr)
			return err
		}, attribute.Int("nnz", res.Nnz)); err != nil {
			return nil, err
		}
	}

	res.ArenaStats = plan.pool.Stats()
	res.Phases = opts.Timer.Phases()

	log.WithFields(map[string]interface{}{
		"rows":        res.Rows,
		"nnz":         res.Nnz,
		"max_row_nnz": res.MaxRowNnz,
		"strategy":    plan.Strategy.String(),
		"claims":      res.ArenaStats.Claims,
		"spins":       res.ArenaStats.Spins,
	}).Info("symbolic product done")
	opts.Timer.LogSummary()
	return res, nil
}

// phaseRunner times and traces each phase of a run.
type phaseRunner struct {
	timer *utils.Timer
}

func (r *phaseRunner) do(ctx context.Context, name string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := telemetry.StartPhase(ctx, name, attrs...)
	pt := r.timer.Start(name)
	err := pprof.Labeled(ctx, name, fn)
	pt.Stop()
	telemetry.EndPhase(span, err)
	return err
}

// Row returns the columns of row r of C, or nil if columns were not
// materialized.
func (r *Result) Row(row int) []int {
	if r.ColIndex == nil {
		return nil
	}
	return r.ColIndex[r.RowPtr[row]:r.RowPtr[row+1]]
}

// Verify compares the result against the column-by-column product of a and
// b. Rows are compared as sets.
func (r *Result) Verify(a, b *csr.Matrix) error {
	wantPtr, wantRows := csr.ReferenceStructure(a, b)
	if len(r.RowPtr) != len(wantPtr) {
		return errors.Newf(errors.CodeVerification, "row pointer has %d entries, reference has %d", len(r.RowPtr), len(wantPtr))
	}
	if !slices.Equal(wantPtr, r.RowPtr) {
		for row := 0; row < a.Rows; row++ {
			if got, want := r.RowPtr[row+1]-r.RowPtr[row], wantPtr[row+1]-wantPtr[row]; got != want {
				return errors.Newf(errors.CodeVerification, "row %d has %d columns, reference has %d", row, got, want)
			}
		}
		return errors.New(errors.CodeVerification, "row pointers differ from reference")
	}
	if r.ColIndex == nil {
		return nil
	}
	for row, want := range wantRows {
		got := slices.Clone(r.Row(row))
		slices.Sort(got)
		if !slices.Equal(got, want) {
			return errors.Newf(errors.CodeVerification, "row %d columns %v, reference %v", row, got, want)
		}
	}
	return nil
}
