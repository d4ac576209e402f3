// Package report assembles the summary of one symbolic run, writes it to
// disk and turns it into a database record.
package report

import (
	"encoding/json"
	"math/bits"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/spgemm-symbolic/internal/csr"
	"github.com/spgemm-symbolic/internal/repository"
	"github.com/spgemm-symbolic/internal/symbolic"
	"github.com/spgemm-symbolic/pkg/compression"
	"github.com/spgemm-symbolic/pkg/config"
	"github.com/spgemm-symbolic/pkg/errors"
	"github.com/spgemm-symbolic/pkg/writer"
)

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Operands describes the inputs of a run.
type Operands struct {
	Rows     int `json:"rows"`
	Inner    int `json:"inner"`
	Cols     int `json:"cols"`
	NnzA     int `json:"nnz_a"`
	NnzB     int `json:"nnz_b"`
	PackedB  int `json:"packed_b"` // nonzero (row, set) words of compressed B
	SetCount int `json:"set_count"`
}

// Bucket counts rows of C whose column count falls in [Lo, Hi].
type Bucket struct {
	Lo   int `json:"lo"`
	Hi   int `json:"hi"`
	Rows int `json:"rows"`
}

// Failure is the error a run stopped with.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunReport is the document written after each run.
type RunReport struct {
	RunID     string           `json:"run_id"`
	Version   string           `json:"version,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Duration  time.Duration    `json:"duration_ns"`
	Operands  Operands         `json:"operands"`
	Result    *symbolic.Result `json:"result,omitempty"`
	Verified  bool             `json:"verified"`
	// RowSizes is a power-of-two histogram of columns per row of C.
	RowSizes []Bucket `json:"row_sizes,omitempty"`
	Failure  *Failure `json:"failure,omitempty"`
}

// New summarizes a run. res may be nil when runErr is set.
func New(runID string, a *csr.Matrix, b *csr.Compressed, res *symbolic.Result, runErr error) *RunReport {
	r := &RunReport{
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Operands: Operands{
			Rows:     a.Rows,
			Inner:    a.Cols,
			Cols:     b.Cols,
			NnzA:     a.Nnz(),
			PackedB:  len(b.SetBits),
			SetCount: b.SetCount(),
		},
		Result: res,
	}
	for _, w := range b.SetBits {
		r.Operands.NnzB += bits.OnesCount64(w)
	}
	if res != nil {
		r.RowSizes = Histogram(res.RowPtr)
		for _, p := range res.Phases {
			r.Duration += p.Duration
		}
	}
	if runErr != nil {
		r.Failure = &Failure{Code: errors.GetErrorCode(runErr), Message: runErr.Error()}
	}
	return r
}

// Histogram buckets the row lengths of a row pointer. Bucket 0 holds empty
// rows; bucket k holds lengths in [2^(k-1), 2^k - 1].
func Histogram(rowPtr []int) []Bucket {
	if len(rowPtr) < 2 {
		return nil
	}
	var counts []int
	for r := 0; r+1 < len(rowPtr); r++ {
		k := bits.Len(uint(rowPtr[r+1] - rowPtr[r]))
		for len(counts) <= k {
			counts = append(counts, 0)
		}
		counts[k]++
	}
	out := make([]Bucket, 0, len(counts))
	for k, n := range counts {
		b := Bucket{Rows: n}
		if k > 0 {
			b.Lo = 1 << (k - 1)
			b.Hi = 1<<k - 1
		}
		out = append(out, b)
	}
	return out
}

// Write encodes the report into cfg.Dir as <run id>.json with the codec
// suffix cfg.Compression calls for.
func Write(r *RunReport, cfg config.ReportConfig) (*writer.WriteResult, error) {
	codec, err := compression.Parse(cfg.Compression)
	if err != nil {
		return nil, errors.Wrap(errors.CodeConfigError, "invalid report compression", err)
	}
	w := writer.NewJSONWriter[*RunReport]().WithCompression(codec)
	if cfg.Pretty {
		w.Indent = "  "
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, err
	}
	return w.WriteToFile(r, filepath.Join(cfg.Dir, r.RunID+w.Ext()))
}

// Read loads a report written by Write.
func Read(path string) (*RunReport, error) {
	return writer.ReadFile[*RunReport](path)
}

// Record flattens the report into a database row.
func (r *RunReport) Record() *repository.Run {
	run := &repository.Run{
		RunID:    r.RunID,
		Status:   repository.RunStatusSucceeded,
		Rows:     r.Operands.Rows,
		Inner:    r.Operands.Inner,
		Cols:     r.Operands.Cols,
		Verified: r.Verified,
		Duration: r.Duration,
	}
	if r.Failure != nil {
		run.Status = repository.RunStatusFailed
		run.ErrorCode = r.Failure.Code
		run.ErrorInfo = r.Failure.Message
	}
	res := r.Result
	if res == nil {
		return run
	}
	run.Nnz = int64(res.Nnz)
	run.MaxRowNnz = res.MaxRowNnz
	run.Estimate = res.Estimate.Max
	run.Claims = res.ArenaStats.Claims
	run.Spins = res.ArenaStats.Spins
	if p := res.Plan; p != nil {
		run.Strategy = p.Strategy.String()
		run.ExecSpace = p.ExecSpace.String()
		run.Workers = p.Workers
		run.VectorSize = p.VectorSize
		run.NumChunks = p.NumChunks
		run.ChunkWords = p.ChunkWords
		run.Plan, _ = json.Marshal(p)
	}
	return run
}
