package csr

import (
	"sort"

	"github.com/spgemm-symbolic/pkg/errors"
)

// Compressed is the set-packed form of a CSR matrix. Row r spans
// [Begin[r], End[r]) of SetIndex/SetBits. Bit k of SetBits[i] marks original
// column SetIndex[i]*WordBits + k.
type Compressed struct {
	Rows     int
	Cols     int
	Begin    []int
	End      []int
	SetIndex []int
	SetBits  []uint64
}

// SetCount is the number of distinct set indices a row of the product can hold.
func (c *Compressed) SetCount() int {
	return c.Cols/WordBits + 1
}

// RowLen returns the number of packed sets in row r.
func (c *Compressed) RowLen(r int) int {
	return c.End[r] - c.Begin[r]
}

// Validate checks pointer arrays, set indices and that no set bit maps past
// the last column.
func (c *Compressed) Validate() error {
	if c == nil {
		return errors.New(errors.CodeInvalidInput, "compressed matrix is nil")
	}
	if len(c.Begin) != c.Rows || len(c.End) != c.Rows {
		return errors.Newf(errors.CodeDimensionMismatch,
			"begin/end have %d/%d entries, want %d", len(c.Begin), len(c.End), c.Rows)
	}
	if len(c.SetIndex) != len(c.SetBits) {
		return errors.Newf(errors.CodeDimensionMismatch,
			"setIndex has %d entries, setBits has %d", len(c.SetIndex), len(c.SetBits))
	}
	for r := 0; r < c.Rows; r++ {
		if c.Begin[r] < 0 || c.Begin[r] > c.End[r] || c.End[r] > len(c.SetIndex) {
			return errors.Newf(errors.CodeDimensionMismatch,
				"row %d spans [%d,%d) of %d sets", r, c.Begin[r], c.End[r], len(c.SetIndex))
		}
	}
	for i, s := range c.SetIndex {
		if s < 0 || s*WordBits >= c.Cols {
			return errors.Newf(errors.CodeDimensionMismatch,
				"setIndex[%d]=%d addresses no column of %d", i, s, c.Cols)
		}
		if tail := c.Cols - s*WordBits; tail < WordBits && c.SetBits[i]>>uint(tail) != 0 {
			return errors.Newf(errors.CodeDimensionMismatch,
				"setBits[%d]=%#x marks columns past %d", i, c.SetBits[i], c.Cols)
		}
	}
	return nil
}

// Compress packs the columns of m into (setIndex, setBits) pairs, merging
// columns that share a word. Sets within a row are ordered by set index.
func Compress(m *Matrix) *Compressed {
	c := &Compressed{
		Rows:  m.Rows,
		Cols:  m.Cols,
		Begin: make([]int, m.Rows),
		End:   make([]int, m.Rows),
	}
	var scratch []int
	for r := 0; r < m.Rows; r++ {
		c.Begin[r] = len(c.SetIndex)
		scratch = append(scratch[:0], m.Row(r)...)
		sort.Ints(scratch)
		for _, col := range scratch {
			set := col / WordBits
			bit := uint64(1) << uint(col%WordBits)
			n := len(c.SetIndex)
			if n > c.Begin[r] && c.SetIndex[n-1] == set {
				c.SetBits[n-1] |= bit
				continue
			}
			c.SetIndex = append(c.SetIndex, set)
			c.SetBits = append(c.SetBits, bit)
		}
		c.End[r] = len(c.SetIndex)
	}
	return c
}

// Columns expands row r back to sorted column indices.
func (c *Compressed) Columns(r int) []int {
	var out []int
	for i := c.Begin[r]; i < c.End[r]; i++ {
		out = AppendColumns(out, c.SetIndex[i], c.SetBits[i])
	}
	sort.Ints(out)
	return out
}
