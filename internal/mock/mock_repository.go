// Package mock provides testify mocks of the repository and storage
// interfaces.
package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/spgemm-symbolic/internal/repository"
)

// MockRunRepository is a mock implementation of repository.RunRepository.
type MockRunRepository struct {
	mock.Mock
}

// SaveRun mocks the SaveRun method.
func (m *MockRunRepository) SaveRun(ctx context.Context, run *repository.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

// GetRun mocks the GetRun method.
func (m *MockRunRepository) GetRun(ctx context.Context, runID string) (*repository.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Run), args.Error(1)
}

// ListRuns mocks the ListRuns method.
func (m *MockRunRepository) ListRuns(ctx context.Context, filter repository.RunFilter) ([]*repository.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.Run), args.Error(1)
}

// UpdateReportURL mocks the UpdateReportURL method.
func (m *MockRunRepository) UpdateReportURL(ctx context.Context, runID, url string) error {
	args := m.Called(ctx, runID, url)
	return args.Error(0)
}

// MockStatsRepository is a mock implementation of repository.StatsRepository.
type MockStatsRepository struct {
	mock.Mock
}

// StrategyStats mocks the StrategyStats method.
func (m *MockStatsRepository) StrategyStats(ctx context.Context, since time.Time) ([]repository.StrategyStat, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.StrategyStat), args.Error(1)
}
