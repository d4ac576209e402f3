package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spgemm-symbolic/internal/csr"
	"github.com/spgemm-symbolic/internal/repository"
	"github.com/spgemm-symbolic/internal/symbolic"
	"github.com/spgemm-symbolic/pkg/compression"
	"github.com/spgemm-symbolic/pkg/config"
	"github.com/spgemm-symbolic/pkg/errors"
)

func run(t *testing.T) (*csr.Matrix, *csr.Compressed, *symbolic.Result) {
	t.Helper()
	a, bm := csr.Random(40, 200, 6, 3), csr.Random(200, 500, 8, 4)
	b := csr.Compress(bm)
	opts := symbolic.DefaultOptions()
	opts.Strategy = symbolic.Chained
	opts.Concurrency = 2
	res, err := symbolic.Compute(context.Background(), a, b, opts)
	require.NoError(t, err)
	require.NoError(t, res.Verify(a, bm))
	return a, b, res
}

func TestHistogram(t *testing.T) {
	got := Histogram([]int{0, 0, 1, 3, 6, 10})
	assert.Equal(t, []Bucket{
		{Lo: 0, Hi: 0, Rows: 1},
		{Lo: 1, Hi: 1, Rows: 1},
		{Lo: 2, Hi: 3, Rows: 2},
		{Lo: 4, Hi: 7, Rows: 1},
	}, got)

	assert.Nil(t, Histogram(nil))
	assert.Nil(t, Histogram([]int{0}))
}

func TestNew_Success(t *testing.T) {
	a, b, res := run(t)
	r := New("run-1", a, b, res, nil)

	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, 40, r.Operands.Rows)
	assert.Equal(t, 200, r.Operands.Inner)
	assert.Equal(t, 500, r.Operands.Cols)
	assert.Equal(t, a.Nnz(), r.Operands.NnzA)
	assert.Equal(t, len(b.SetBits), r.Operands.PackedB)
	assert.Equal(t, b.SetCount(), r.Operands.SetCount)
	assert.GreaterOrEqual(t, r.Operands.NnzB, r.Operands.PackedB)
	assert.Nil(t, r.Failure)

	rows := 0
	for _, bk := range r.RowSizes {
		rows += bk.Rows
	}
	assert.Equal(t, 40, rows)
	assert.Positive(t, r.Duration)
}

func TestNew_Failure(t *testing.T) {
	a := csr.FromRows(3, [][]int{{0}, {2}})
	b := csr.Compress(csr.Identity(3))
	err := errors.New(errors.CodeConfigurationFault, "arena too small")

	r := New(NewRunID(), a, b, nil, err)
	require.NotNil(t, r.Failure)
	assert.Equal(t, errors.CodeConfigurationFault, r.Failure.Code)
	assert.Contains(t, r.Failure.Message, "arena too small")
	assert.Nil(t, r.RowSizes)
	assert.Len(t, r.RunID, 36)

	rec := r.Record()
	assert.Equal(t, repository.RunStatusFailed, rec.Status)
	assert.Equal(t, errors.CodeConfigurationFault, rec.ErrorCode)
	assert.Empty(t, rec.Strategy)
	assert.Nil(t, rec.Plan)
}

func TestWriteRead(t *testing.T) {
	a, b, res := run(t)

	for _, codec := range []compression.Type{compression.TypeNone, compression.TypeGzip, compression.TypeZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			r := New(NewRunID(), a, b, res, nil)
			r.Verified = true
			cfg := config.ReportConfig{
				Dir:         filepath.Join(t.TempDir(), "reports"),
				Compression: codec.String(),
				Pretty:      codec == compression.TypeNone,
			}

			wr, err := Write(r, cfg)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(cfg.Dir, r.RunID+".json"+codec.Ext()), wr.Path)
			_, err = os.Stat(wr.Path)
			require.NoError(t, err)

			got, err := Read(wr.Path)
			require.NoError(t, err)
			assert.Equal(t, r.RunID, got.RunID)
			assert.True(t, r.CreatedAt.Equal(got.CreatedAt))
			assert.Equal(t, r.Operands, got.Operands)
			assert.Equal(t, r.RowSizes, got.RowSizes)
			assert.True(t, got.Verified)
			require.NotNil(t, got.Result)
			assert.Equal(t, res.Nnz, got.Result.Nnz)
			assert.Equal(t, symbolic.Chained, got.Result.Plan.Strategy)
			assert.Equal(t, res.Plan.Policy, got.Result.Plan.Policy)
			assert.Equal(t, res.ArenaStats, got.Result.ArenaStats)
			assert.Len(t, got.Result.Phases, len(res.Phases))
		})
	}
}

func TestWrite_BadCompression(t *testing.T) {
	a, b, res := run(t)
	_, err := Write(New("x", a, b, res, nil), config.ReportConfig{Dir: t.TempDir(), Compression: "lz4"})
	assert.Equal(t, errors.CodeConfigError, errors.GetErrorCode(err))
}

func TestRecord(t *testing.T) {
	a, b, res := run(t)
	r := New("rec", a, b, res, nil)
	r.Verified = true

	rec := r.Record()
	assert.Equal(t, "rec", rec.RunID)
	assert.Equal(t, repository.RunStatusSucceeded, rec.Status)
	assert.Equal(t, "chained", rec.Strategy)
	assert.Equal(t, "threads", rec.ExecSpace)
	assert.Equal(t, int64(res.Nnz), rec.Nnz)
	assert.Equal(t, res.MaxRowNnz, rec.MaxRowNnz)
	assert.Equal(t, res.Estimate.Max, rec.Estimate)
	assert.Equal(t, res.Plan.Workers, rec.Workers)
	assert.Equal(t, res.ArenaStats.Claims, rec.Claims)
	assert.True(t, rec.Verified)
	assert.Contains(t, string(rec.Plan), `"strategy":"chained"`)
}
