package repository

import (
	"database/sql/driver"
	"errors"
	"time"
)

// SymbolicRun represents the symbolic_run table.
type SymbolicRun struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RunID      string    `gorm:"column:run_id;type:varchar(64);uniqueIndex"`
	Status     string    `gorm:"column:status;type:varchar(16);index"`
	ErrorCode  string    `gorm:"column:error_code;type:varchar(32)"`
	ErrorInfo  string    `gorm:"column:error_info;type:text"`
	Strategy   string    `gorm:"column:strategy;type:varchar(32);index"`
	ExecSpace  string    `gorm:"column:exec_space;type:varchar(16)"`
	Rows       int       `gorm:"column:num_rows"`
	Inner      int       `gorm:"column:inner_dim"`
	Cols       int       `gorm:"column:cols"`
	Nnz        int64     `gorm:"column:nnz"`
	MaxRowNnz  int       `gorm:"column:max_row_nnz"`
	Estimate   int       `gorm:"column:estimate"`
	Workers    int       `gorm:"column:workers"`
	VectorSize int       `gorm:"column:vector_size"`
	NumChunks  int       `gorm:"column:num_chunks"`
	ChunkWords int       `gorm:"column:chunk_words"`
	Claims     int64     `gorm:"column:claims"`
	Spins      int64     `gorm:"column:spins"`
	Verified   bool      `gorm:"column:verified"`
	DurationMs float64   `gorm:"column:duration_ms"`
	ReportURL  string    `gorm:"column:report_url;type:varchar(512)"`
	Plan       JSONField `gorm:"column:plan;type:json"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

// TableName returns the table name for SymbolicRun.
func (SymbolicRun) TableName() string {
	return "symbolic_run"
}

func newSymbolicRun(r *Run) *SymbolicRun {
	return &SymbolicRun{
		ID:         r.ID,
		RunID:      r.RunID,
		Status:     string(r.Status),
		ErrorCode:  r.ErrorCode,
		ErrorInfo:  r.ErrorInfo,
		Strategy:   r.Strategy,
		ExecSpace:  r.ExecSpace,
		Rows:       r.Rows,
		Inner:      r.Inner,
		Cols:       r.Cols,
		Nnz:        r.Nnz,
		MaxRowNnz:  r.MaxRowNnz,
		Estimate:   r.Estimate,
		Workers:    r.Workers,
		VectorSize: r.VectorSize,
		NumChunks:  r.NumChunks,
		ChunkWords: r.ChunkWords,
		Claims:     int64(r.Claims),
		Spins:      int64(r.Spins),
		Verified:   r.Verified,
		DurationMs: float64(r.Duration) / float64(time.Millisecond),
		ReportURL:  r.ReportURL,
		Plan:       JSONField(r.Plan),
		CreatedAt:  r.CreatedAt,
	}
}

// ToRun converts the row to a Run.
func (s *SymbolicRun) ToRun() *Run {
	return &Run{
		ID:         s.ID,
		RunID:      s.RunID,
		Status:     RunStatus(s.Status),
		ErrorCode:  s.ErrorCode,
		ErrorInfo:  s.ErrorInfo,
		Strategy:   s.Strategy,
		ExecSpace:  s.ExecSpace,
		Rows:       s.Rows,
		Inner:      s.Inner,
		Cols:       s.Cols,
		Nnz:        s.Nnz,
		MaxRowNnz:  s.MaxRowNnz,
		Estimate:   s.Estimate,
		Workers:    s.Workers,
		VectorSize: s.VectorSize,
		NumChunks:  s.NumChunks,
		ChunkWords: s.ChunkWords,
		Claims:     uint64(s.Claims),
		Spins:      uint64(s.Spins),
		Verified:   s.Verified,
		Duration:   time.Duration(s.DurationMs * float64(time.Millisecond)),
		ReportURL:  s.ReportURL,
		Plan:       []byte(s.Plan),
		CreatedAt:  s.CreatedAt,
	}
}

// JSONField is a JSON column held as raw bytes.
type JSONField []byte

// Value implements driver.Valuer interface.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner interface.
func (j *JSONField) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = []byte(v)
	default:
		return errors.New("unsupported type for JSONField")
	}
	return nil
}
