package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	testifymock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spgemm-symbolic/internal/mock"
	"github.com/spgemm-symbolic/internal/repository"
	"github.com/spgemm-symbolic/internal/storage"
	"github.com/spgemm-symbolic/internal/symbolic"
	"github.com/spgemm-symbolic/pkg/config"
	"github.com/spgemm-symbolic/pkg/errors"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Matrix = config.MatrixConfig{Rows: 30, Inner: 80, Cols: 200, PerRow: 4, Seed: 7}
	cfg.Symbolic.Concurrency = 2
	cfg.Symbolic.Verify = true
	cfg.Report = config.ReportConfig{Dir: filepath.Join(dir, "reports"), Compression: "zstd"}
	cfg.Database.Enabled = true
	cfg.Database.Type = "sqlite"
	cfg.Database.Path = filepath.Join(dir, "runs.db")
	cfg.Storage.Enabled = true
	cfg.Storage.Type = string(storage.TypeLocal)
	cfg.Storage.LocalPath = filepath.Join(dir, "store")
	return cfg
}

func newService(t *testing.T, cfg *config.Config) *Service {
	svc, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Initialize(context.Background()))
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestService_New(t *testing.T) {
	_, err := New(nil, nil)
	assert.Equal(t, errors.CodeConfigError, errors.GetErrorCode(err))

	svc, err := New(config.Default(), nil)
	require.NoError(t, err)
	require.NoError(t, svc.Initialize(context.Background()))
	assert.NoError(t, svc.HealthCheck(context.Background()))
	assert.NoError(t, svc.Close())
}

func TestService_Run(t *testing.T) {
	cfg := testConfig(t)
	svc := newService(t, cfg)
	svc.SetVersion("1.2.3")
	ctx := context.Background()

	a, bm := svc.Operands()
	assert.Equal(t, 30, a.Rows)
	assert.Equal(t, 80, bm.Rows)
	opts, err := svc.Options()
	require.NoError(t, err)

	out, err := svc.Run(ctx, a, bm, opts)
	require.NoError(t, err)
	rep := out.Report
	assert.True(t, rep.Verified)
	assert.Equal(t, "1.2.3", rep.Version)
	assert.True(t, strings.HasSuffix(out.File, ".json.zst"))
	assert.FileExists(t, out.File)

	wantURL := filepath.Join(cfg.Storage.LocalPath, "runs", rep.RunID, filepath.Base(out.File))
	assert.Equal(t, wantURL, out.ReportURL)
	assert.FileExists(t, wantURL)

	run, err := svc.GetRun(ctx, rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, repository.RunStatusSucceeded, run.Status)
	assert.Equal(t, wantURL, run.ReportURL)
	assert.Equal(t, int64(rep.Result.Nnz), run.Nnz)
	assert.True(t, run.Verified)
	assert.NotEmpty(t, run.Plan)
}

func TestService_RunFailureIsRecorded(t *testing.T) {
	cfg := testConfig(t)
	cfg.Symbolic.ExecSpace = "device"
	cfg.Symbolic.Concurrency = 8
	cfg.Symbolic.VectorSize = 4
	cfg.Symbolic.DeviceMemory = 64
	svc := newService(t, cfg)
	ctx := context.Background()

	opts, err := svc.Options()
	require.NoError(t, err)
	a, bm := svc.Operands()
	out, err := svc.Run(ctx, a, bm, opts)
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationFault(err))
	require.NotNil(t, out.Report.Failure)
	assert.FileExists(t, out.File, "failed runs still get a report")

	runs, err := svc.History(ctx, repository.RunFilter{Status: repository.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "auto", runs[0].Strategy)
	assert.Equal(t, "device", runs[0].ExecSpace)
	assert.Equal(t, errors.CodeConfigurationFault, runs[0].ErrorCode)
}

func TestService_Bench(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Enabled = false
	svc := newService(t, cfg)
	ctx := context.Background()

	a, bm := svc.Operands()
	results, err := svc.Bench(ctx, a, bm, symbolic.Strategies, 1)
	require.NoError(t, err)
	require.Len(t, results, len(symbolic.Strategies))

	var nnz int
	for i, r := range results {
		require.NoError(t, r.Error, r.Input.String())
		assert.Equal(t, symbolic.Strategies[i], r.Input)
		assert.Equal(t, r.Input, r.Result.Report.Result.Plan.Strategy)
		assert.Empty(t, r.Result.ReportURL)
		if i == 0 {
			nnz = r.Result.Report.Result.Nnz
		}
		assert.Equal(t, nnz, r.Result.Report.Result.Nnz, "every strategy finds the same structure")
	}

	stats, err := svc.StrategyStats(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, stats, len(symbolic.Strategies))
}

func TestService_WithoutDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Enabled = false
	svc := newService(t, cfg)
	ctx := context.Background()

	_, err := svc.History(ctx, repository.RunFilter{})
	assert.Equal(t, errors.CodeConfigError, errors.GetErrorCode(err))
	_, err = svc.StrategyStats(ctx, time.Time{})
	assert.Error(t, err)
	_, err = svc.GetRun(ctx, "x")
	assert.Error(t, err)

	a, bm := svc.Operands()
	opts, err := svc.Options()
	require.NoError(t, err)
	out, err := svc.Run(ctx, a, bm, opts)
	require.NoError(t, err)
	assert.NotEmpty(t, out.ReportURL)
}

func TestService_InitializeBadStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Type = "s3"
	svc, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Error(t, svc.Initialize(context.Background()))
}

func TestService_BookkeepingFailures(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Enabled = false
	cfg.Storage.Enabled = false
	svc := newService(t, cfg)
	ctx := context.Background()

	runs := &mock.MockRunRepository{}
	store := &mock.MockStorage{}
	svc.UseRepositories(&repository.Repositories{Runs: runs, Stats: &mock.MockStatsRepository{}})
	svc.UseStorage(store)

	runs.On("SaveRun", testifymock.Anything, testifymock.AnythingOfType("*repository.Run")).
		Return(errors.New(errors.CodeDatabaseError, "disk full"))
	store.ExpectPutFile(nil)
	store.ExpectURL("cos://bucket/")
	runs.On("UpdateReportURL", testifymock.Anything, testifymock.Anything, testifymock.Anything).
		Return(errors.ErrNotFound)

	a, bm := svc.Operands()
	opts, err := svc.Options()
	require.NoError(t, err)
	out, err := svc.Run(ctx, a, bm, opts)
	require.NoError(t, err, "bookkeeping errors do not fail the run")

	key := storage.ReportKey(out.Report.RunID, filepath.Base(out.File))
	assert.Equal(t, "cos://bucket/"+key, out.ReportURL)
	store.AssertCalled(t, "PutFile", testifymock.Anything, key, out.File)
	runs.AssertCalled(t, "UpdateReportURL", testifymock.Anything, out.Report.RunID, out.ReportURL)
	runs.AssertExpectations(t)
}

func TestService_ArchiveFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Enabled = false
	cfg.Storage.Enabled = false
	svc := newService(t, cfg)

	store := &mock.MockStorage{}
	store.ExpectPutFile(errors.New(errors.CodeUploadError, "bucket gone"))
	svc.UseStorage(store)

	a, bm := svc.Operands()
	opts, err := svc.Options()
	require.NoError(t, err)
	out, err := svc.Run(context.Background(), a, bm, opts)
	require.NoError(t, err)
	assert.Empty(t, out.ReportURL)
	assert.FileExists(t, out.File)
	store.AssertNotCalled(t, "URL", testifymock.Anything)
}

func TestService_StatsFromRepository(t *testing.T) {
	svc, err := New(config.Default(), nil)
	require.NoError(t, err)
	stats := &mock.MockStatsRepository{}
	svc.UseRepositories(&repository.Repositories{Runs: &mock.MockRunRepository{}, Stats: stats})

	want := []repository.StrategyStat{{Strategy: "chained", Runs: 3}}
	stats.On("StrategyStats", testifymock.Anything, time.Time{}).Return(want, nil)
	got, err := svc.StrategyStats(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoError(t, svc.HealthCheck(context.Background()))
}
