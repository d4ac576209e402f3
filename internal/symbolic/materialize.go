package symbolic

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/spgemm-symbolic/internal/accumulator"
	"github.com/spgemm-symbolic/internal/csr"
	"github.com/spgemm-symbolic/pkg/collections"
	"github.com/spgemm-symbolic/pkg/errors"
	"github.com/spgemm-symbolic/pkg/parallel"
)

// Materialize fills the column indices of every row of a*b into the range
// rowPtr reserves for it. Columns within a row come out in table order, not
// sorted. A row pointer that does not start at zero or decreases, or a row
// whose column count disagrees with rowPtr, is a DimensionMismatch.
func Materialize(ctx context.Context, a *csr.Matrix, b *csr.Compressed, p *Plan, rowPtr []int) ([]int, error) {
	if len(rowPtr) != a.Rows+1 {
		return nil, errors.Newf(errors.CodeDimensionMismatch,
			"row pointer has %d entries, want %d", len(rowPtr), a.Rows+1)
	}
	if rowPtr[0] != 0 {
		return nil, errors.Newf(errors.CodeDimensionMismatch, "row pointer starts at %d, want 0", rowPtr[0])
	}
	for r := 0; r < a.Rows; r++ {
		if rowPtr[r+1] < rowPtr[r] {
			return nil, errors.Newf(errors.CodeDimensionMismatch,
				"row pointer decreases at row %d (%d < %d)", r, rowPtr[r+1], rowPtr[r])
		}
	}
	colIndex := make([]int, rowPtr[a.Rows])
	err := p.forRows(ctx, a.Rows, func(acc accumulator.Accumulator, row int) error {
		if err := p.gather(acc, a, b, row); err != nil {
			return fmt.Errorf("failed to materialize row %d: %w", row, err)
		}
		err := p.emit(acc, row, rowPtr[row], rowPtr[row+1], colIndex)
		acc.Clear()
		return err
	})
	if err != nil {
		return nil, err
	}
	return colIndex, nil
}

type setEntry struct {
	key  int64
	word uint64
}

// emit writes the columns held by acc into out[lo:hi]. With several lanes the
// entries are split among them and each lane reserves its output range with
// an atomic add.
func (p *Plan) emit(acc accumulator.Accumulator, row, lo, hi int, out []int) error {
	if p.VectorSize <= 1 {
		pos := lo
		acc.ForEach(func(key int64, word uint64) {
			csr.ForEachColumn(int(key), word, func(col int) {
				if pos < hi {
					out[pos] = col
				}
				pos++
			})
		})
		return checkEmitted(row, pos-lo, hi-lo)
	}

	entries := make([]setEntry, 0, acc.Len())
	acc.ForEach(func(key int64, word uint64) {
		entries = append(entries, setEntry{key: key, word: word})
	})
	var next atomic.Int64
	next.Store(int64(lo))
	lanes := p.VectorSize
	err := parallel.Lanes(lanes, func(lane int) error {
		return parallel.Strided(lane, lanes, 0, len(entries), func(i int) error {
			e := entries[i]
			n := int64(collections.PopCount(e.word))
			pos := int(next.Add(n) - n)
			csr.ForEachColumn(int(e.key), e.word, func(col int) {
				if pos < hi {
					out[pos] = col
				}
				pos++
			})
			return nil
		})
	})
	if err != nil {
		return err
	}
	return checkEmitted(row, int(next.Load())-lo, hi-lo)
}

func checkEmitted(row, got, want int) error {
	if got != want {
		return errors.Newf(errors.CodeDimensionMismatch,
			"row %d holds %d columns but the row pointer reserves %d", row, got, want)
	}
	return nil
}
