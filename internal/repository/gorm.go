package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/spgemm-symbolic/pkg/errors"
)

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// SaveRun inserts run.
func (r *GormRunRepository) SaveRun(ctx context.Context, run *Run) error {
	if run.RunID == "" {
		return errors.New(errors.CodeInvalidInput, "run id is required")
	}
	record := newSymbolicRun(run)
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return errors.Wrap(errors.CodeDatabaseError, "failed to save run "+run.RunID, err)
	}
	run.ID = record.ID
	run.CreatedAt = record.CreatedAt
	return nil
}

// GetRun retrieves a run by its run id.
func (r *GormRunRepository) GetRun(ctx context.Context, runID string) (*Run, error) {
	var record SymbolicRun
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&record).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf(errors.CodeNotFound, "run not found: %s", runID)
		}
		return nil, errors.Wrap(errors.CodeDatabaseError, "failed to get run", err)
	}
	return record.ToRun(), nil
}

// ListRuns returns runs matching filter, newest first.
func (r *GormRunRepository) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	q := r.db.WithContext(ctx).Model(&SymbolicRun{})
	if filter.Strategy != "" {
		q = q.Where("strategy = ?", filter.Strategy)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var records []SymbolicRun
	if err := q.Order("created_at DESC").Order("id DESC").Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.CodeDatabaseError, "failed to list runs", err)
	}

	runs := make([]*Run, len(records))
	for i := range records {
		runs[i] = records[i].ToRun()
	}
	return runs, nil
}

// UpdateReportURL sets the archived report location of a run.
func (r *GormRunRepository) UpdateReportURL(ctx context.Context, runID, url string) error {
	result := r.db.WithContext(ctx).
		Model(&SymbolicRun{}).
		Where("run_id = ?", runID).
		Update("report_url", url)
	if result.Error != nil {
		return errors.Wrap(errors.CodeDatabaseError, "failed to update report url", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.Newf(errors.CodeNotFound, "run not found: %s", runID)
	}
	return nil
}

// AutoMigrate creates or updates the tables this package uses.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&SymbolicRun{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
