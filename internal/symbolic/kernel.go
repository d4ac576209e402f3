package symbolic

import (
	"context"

	"github.com/spgemm-symbolic/internal/accumulator"
	"github.com/spgemm-symbolic/internal/csr"
	"github.com/spgemm-symbolic/pkg/errors"
	"github.com/spgemm-symbolic/pkg/parallel"
)

// forRows distributes rows over the plan's workers in ChunkRows ranges. Each
// range runs against one table acquired for its worker. A row that fails
// leaves the table cleared before it goes back to the arena.
func (p *Plan) forRows(ctx context.Context, rows int, fn func(acc accumulator.Accumulator, row int) error) error {
	return p.runner.ForRange(ctx, rows, p.ChunkRows, func(_ context.Context, worker, lo, hi int) error {
		t, err := p.acquire(worker)
		if err != nil {
			return err
		}
		defer t.release()
		for row := lo; row < hi; row++ {
			if err := fn(t.acc, row); err != nil {
				t.acc.Clear()
				return err
			}
		}
		return nil
	})
}

// gather merges every (set, word) contribution of row into acc. With more
// than one lane, lanes stride over each referenced row of b and insert
// concurrently; gather returns after all lanes are done.
func (p *Plan) gather(acc accumulator.Accumulator, a *csr.Matrix, b *csr.Compressed, row int) error {
	cols := a.Row(row)
	if p.VectorSize <= 1 {
		for _, j := range cols {
			for i := b.Begin[j]; i < b.End[j]; i++ {
				if err := acc.InsertMergeOr(int64(b.SetIndex[i]), b.SetBits[i]); err != nil {
					return err
				}
			}
		}
		return nil
	}

	shared, ok := acc.(accumulator.Concurrent)
	if !ok {
		return errors.Newf(errors.CodeConfigurationFault, "%s tables do not take concurrent inserts", p.Strategy)
	}
	lanes := p.VectorSize
	return parallel.Lanes(lanes, func(lane int) error {
		for _, j := range cols {
			err := parallel.Strided(lane, lanes, b.Begin[j], b.End[j], func(i int) error {
				return shared.AtomicInsertMergeOr(int64(b.SetIndex[i]), b.SetBits[i])
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
