package csr

import (
	"math/bits"
	"math/rand"

	"github.com/spgemm-symbolic/pkg/collections"
)

// ForEachColumn calls fn for every original column encoded by (set, word).
func ForEachColumn(set int, word uint64, fn func(col int)) {
	base := set * WordBits
	for word != 0 {
		k := bits.TrailingZeros64(word)
		fn(base + k)
		word &= word - 1
	}
}

// AppendColumns appends the columns encoded by (set, word) to dst.
func AppendColumns(dst []int, set int, word uint64) []int {
	ForEachColumn(set, word, func(col int) {
		dst = append(dst, col)
	})
	return dst
}

// ReferenceStructure computes the structure of a*b one column at a time. It is
// slow and meant for verification only. Rows are returned sorted.
func ReferenceStructure(a, b *Matrix) (rowPtr []int, rows [][]int) {
	rowPtr = make([]int, a.Rows+1)
	rows = make([][]int, a.Rows)
	seen := collections.NewBitset(b.Cols)
	for r := 0; r < a.Rows; r++ {
		for _, k := range a.Row(r) {
			for _, c := range b.Row(k) {
				seen.Set(c)
			}
		}
		rows[r] = seen.ToSlice()
		rowPtr[r+1] = rowPtr[r] + len(rows[r])
		seen.ClearAll()
	}
	return rowPtr, rows
}

// Random builds a rows x cols pattern with up to perRow distinct columns per
// row. Columns are clustered around a per-row centre so that several of them
// share a set word, which is the case the packed encoding is built for.
func Random(rows, cols, perRow int, seed int64) *Matrix {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]int, rows)
	if cols == 0 {
		return FromRows(cols, out)
	}
	for r := range out {
		n := rng.Intn(perRow + 1)
		centre := rng.Intn(cols)
		spread := 4*WordBits + 1
		seen := make(map[int]struct{}, n)
		for i := 0; i < n; i++ {
			c := centre + rng.Intn(spread) - spread/2
			if c < 0 || c >= cols {
				c = rng.Intn(cols)
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out[r] = append(out[r], c)
		}
	}
	return FromRows(cols, out)
}
