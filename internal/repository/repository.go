// Package repository records symbolic runs in a relational database.
package repository

import (
	"context"
	"time"
)

// RunStatus is the outcome of a run.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded invocation of the symbolic product.
type Run struct {
	ID         int64
	RunID      string
	Status     RunStatus
	ErrorCode  string
	ErrorInfo  string
	Strategy   string
	ExecSpace  string
	Rows       int
	Inner      int
	Cols       int
	Nnz        int64
	MaxRowNnz  int
	Estimate   int
	Workers    int
	VectorSize int
	NumChunks  int
	ChunkWords int
	Claims     uint64
	Spins      uint64
	Verified   bool
	Duration   time.Duration
	ReportURL  string
	// Plan is the JSON encoding of the resolved plan.
	Plan      []byte
	CreatedAt time.Time
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Strategy string
	Status   RunStatus
	Limit    int
}

// RunRepository stores and retrieves runs.
type RunRepository interface {
	// SaveRun inserts run and sets its ID and CreatedAt.
	SaveRun(ctx context.Context, run *Run) error

	// GetRun looks a run up by its run id.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	// UpdateReportURL records where the run's report was archived.
	UpdateReportURL(ctx context.Context, runID, url string) error
}

// StrategyStat aggregates the runs of one strategy.
type StrategyStat struct {
	Strategy   string  `json:"strategy"`
	Runs       int64   `json:"runs"`
	Failures   int64   `json:"failures"`
	AvgMillis  float64 `json:"avg_ms"`
	MaxNnz     int64   `json:"max_nnz"`
	TotalSpins int64   `json:"total_spins"`
}

// StatsRepository answers aggregate queries over recorded runs.
type StatsRepository interface {
	// StrategyStats aggregates runs created at or after since, ordered by
	// strategy name.
	StrategyStats(ctx context.Context, since time.Time) ([]StrategyStat, error)
}
