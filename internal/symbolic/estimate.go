package symbolic

import (
	"context"

	"github.com/spgemm-symbolic/internal/csr"
	"github.com/spgemm-symbolic/pkg/parallel"
)

// Estimate bounds the number of distinct sets each row of C can hold.
type Estimate struct {
	PerRow []int `json:"-"`
	Max    int   `json:"max"`
}

// EstimateRowSizes sums, for every row of a, the compressed lengths of the
// rows of b it references. Overlap is ignored, so the result is an upper
// bound on the row's distinct set indices.
func EstimateRowSizes(ctx context.Context, a *csr.Matrix, b *csr.Compressed, r *parallel.Runner) (Estimate, error) {
	est := Estimate{PerRow: make([]int, a.Rows)}
	best, err := r.ReduceMax(ctx, a.Rows, estimateChunk(r, a.Rows), func(row int) int {
		n := 0
		for _, j := range a.Row(row) {
			n += b.RowLen(j)
		}
		est.PerRow[row] = n
		return n
	})
	if err != nil {
		return Estimate{}, err
	}
	est.Max = best
	return est, nil
}

// Intersection records, for every row of a, the referenced row of b with the
// fewest sets (-1 for an empty row). Max is the largest of those minima.
type Intersection struct {
	SmallestRow []int `json:"-"`
	Max         int   `json:"max"`
}

// EstimateIntersection bounds rows of an intersection-style product, where a
// row of C can hold no more than the smallest row of b it references.
func EstimateIntersection(ctx context.Context, a *csr.Matrix, b *csr.Compressed, r *parallel.Runner) (Intersection, error) {
	in := Intersection{SmallestRow: make([]int, a.Rows)}
	best, err := r.ReduceMax(ctx, a.Rows, estimateChunk(r, a.Rows), func(row int) int {
		smallest, size := -1, 0
		for _, j := range a.Row(row) {
			if n := b.RowLen(j); smallest < 0 || n < size {
				smallest, size = j, n
			}
		}
		in.SmallestRow[row] = smallest
		return size
	})
	if err != nil {
		return Intersection{}, err
	}
	in.Max = best
	return in, nil
}

func estimateChunk(r *parallel.Runner, rows int) int {
	return max(1, rows/(4*r.Workers()))
}
