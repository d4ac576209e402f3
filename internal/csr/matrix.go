// Package csr holds the compressed-sparse-row inputs of the symbolic product and
// the set-packed encoding of the right-hand operand.
package csr

import (
	"github.com/spgemm-symbolic/pkg/errors"
)

// WordBits is the number of columns packed into one set word.
const WordBits = 64

// Matrix is a pattern-only CSR matrix.
type Matrix struct {
	Rows     int
	Cols     int
	RowPtr   []int
	ColIndex []int
}

// Nnz returns the number of stored entries.
func (m *Matrix) Nnz() int {
	if len(m.RowPtr) == 0 {
		return 0
	}
	return m.RowPtr[len(m.RowPtr)-1]
}

// Row returns the column indices of row r.
func (m *Matrix) Row(r int) []int {
	return m.ColIndex[m.RowPtr[r]:m.RowPtr[r+1]]
}

// Validate checks the array shapes against Rows and Cols.
func (m *Matrix) Validate() error {
	if m == nil {
		return errors.New(errors.CodeInvalidInput, "matrix is nil")
	}
	if m.Rows < 0 || m.Cols < 0 {
		return errors.Newf(errors.CodeDimensionMismatch, "negative shape %dx%d", m.Rows, m.Cols)
	}
	if len(m.RowPtr) != m.Rows+1 {
		return errors.Newf(errors.CodeDimensionMismatch,
			"rowPtr has %d entries, want %d", len(m.RowPtr), m.Rows+1)
	}
	if m.RowPtr[0] != 0 {
		return errors.Newf(errors.CodeDimensionMismatch, "rowPtr[0] is %d, want 0", m.RowPtr[0])
	}
	for r := 0; r < m.Rows; r++ {
		if m.RowPtr[r+1] < m.RowPtr[r] {
			return errors.Newf(errors.CodeDimensionMismatch, "rowPtr decreases at row %d", r)
		}
	}
	if len(m.ColIndex) != m.RowPtr[m.Rows] {
		return errors.Newf(errors.CodeDimensionMismatch,
			"colIndex has %d entries, rowPtr implies %d", len(m.ColIndex), m.RowPtr[m.Rows])
	}
	for i, c := range m.ColIndex {
		if c < 0 || c >= m.Cols {
			return errors.Newf(errors.CodeDimensionMismatch,
				"colIndex[%d]=%d outside [0,%d)", i, c, m.Cols)
		}
	}
	return nil
}

// FromRows builds a matrix from explicit per-row column lists.
func FromRows(cols int, rows [][]int) *Matrix {
	m := &Matrix{Rows: len(rows), Cols: cols, RowPtr: make([]int, len(rows)+1)}
	for r, row := range rows {
		m.ColIndex = append(m.ColIndex, row...)
		m.RowPtr[r+1] = len(m.ColIndex)
	}
	return m
}

// Identity returns the n x n identity pattern.
func Identity(n int) *Matrix {
	rows := make([][]int, n)
	for i := range rows {
		rows[i] = []int{i}
	}
	return FromRows(n, rows)
}

// Dense returns a fully populated rows x cols pattern.
func Dense(rows, cols int) *Matrix {
	out := make([][]int, rows)
	for r := range out {
		out[r] = make([]int, cols)
		for c := range out[r] {
			out[r][c] = c
		}
	}
	return FromRows(cols, out)
}

// CheckProduct validates both operands and their inner dimension.
func CheckProduct(a *Matrix, b *Compressed) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	if a.Cols != b.Rows {
		return errors.Newf(errors.CodeDimensionMismatch,
			"A has %d columns but B has %d rows", a.Cols, b.Rows)
	}
	return nil
}
