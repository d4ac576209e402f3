package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spgemm-symbolic/pkg/config"
	"github.com/spgemm-symbolic/pkg/errors"
)

func TestOpen_SQLite(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "data", "runs.db"),
	}

	repos, err := Open(cfg)
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	require.NoError(t, repos.HealthCheck(ctx))
	assert.NotNil(t, repos.DB())

	require.NoError(t, repos.Runs.SaveRun(ctx, sampleRun("persisted", "chained")))
	stats, err := repos.Stats.StrategyStats(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].Runs)
}

func TestOpen_Reopen(t *testing.T) {
	cfg := &config.DatabaseConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "runs.db")}

	first, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, first.Runs.SaveRun(context.Background(), sampleRun("kept", "dense")))
	require.NoError(t, first.Close())

	second, err := Open(cfg)
	require.NoError(t, err)
	defer second.Close()
	run, err := second.Runs.GetRun(context.Background(), "kept")
	require.NoError(t, err)
	assert.Equal(t, "dense", run.Strategy)
}

func TestOpen_InMemory(t *testing.T) {
	repos, err := Open(&config.DatabaseConfig{Type: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	defer repos.Close()
	assert.Equal(t, 1, repos.DB().Stats().MaxOpenConnections)
}

func TestOpen_UnsupportedType(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Type: "oracle"})
	assert.Equal(t, errors.CodeConfigError, errors.GetErrorCode(err))
}

func TestNewRepositories(t *testing.T) {
	db := setupTestDB(t)

	for _, dbType := range []string{"postgres", "postgresql", "mysql", "sqlite"} {
		repos, err := NewRepositories(db, dbType)
		require.NoError(t, err, dbType)
		assert.NotNil(t, repos.Runs)
		assert.NotNil(t, repos.Stats)
	}

	_, err := NewRepositories(db, "unknown")
	assert.Error(t, err)
}

func TestRepositories_CloseWithoutDB(t *testing.T) {
	assert.NoError(t, (&Repositories{}).Close())
}
