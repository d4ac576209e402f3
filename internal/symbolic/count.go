package symbolic

import (
	"context"
	"fmt"

	"github.com/spgemm-symbolic/internal/accumulator"
	"github.com/spgemm-symbolic/internal/csr"
)

// Count returns a slice of a.Rows+1 entries whose first a.Rows hold the
// number of nonzero columns in each row of a*b. The last entry is left at
// zero for the prefix sum that turns counts into row pointers.
func Count(ctx context.Context, a *csr.Matrix, b *csr.Compressed, p *Plan) ([]int, error) {
	counts := make([]int, a.Rows+1)
	err := p.forRows(ctx, a.Rows, func(acc accumulator.Accumulator, row int) error {
		if err := p.gather(acc, a, b, row); err != nil {
			return fmt.Errorf("failed to count row %d: %w", row, err)
		}
		counts[row] = acc.Count()
		acc.Clear()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}
