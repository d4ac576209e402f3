package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/spgemm-symbolic/pkg/errors"
)

// Dialect selects placeholder syntax for hand-written queries.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectMySQL
	DialectSQLite
)

// ParseDialect maps a configured database type to its dialect.
func ParseDialect(dbType string) (Dialect, error) {
	switch strings.ToLower(dbType) {
	case "postgres", "postgresql":
		return DialectPostgres, nil
	case "mysql":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return 0, errors.Newf(errors.CodeConfigError, "unsupported database type: %s", dbType)
	}
}

// bind rewrites ? placeholders to $n for PostgreSQL.
func (d Dialect) bind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

const strategyStatsQuery = `
		SELECT strategy,
			   COUNT(*),
			   COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			   COALESCE(AVG(duration_ms), 0),
			   COALESCE(MAX(nnz), 0),
			   COALESCE(SUM(spins), 0)
		FROM symbolic_run
		WHERE created_at >= ?
		GROUP BY strategy
		ORDER BY strategy
	`

// SQLStatsRepository implements StatsRepository with plain SQL.
type SQLStatsRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStatsRepository creates a new SQLStatsRepository.
func NewSQLStatsRepository(db *sql.DB, dialect Dialect) *SQLStatsRepository {
	return &SQLStatsRepository{db: db, dialect: dialect}
}

// StrategyStats aggregates runs per strategy.
func (r *SQLStatsRepository) StrategyStats(ctx context.Context, since time.Time) ([]StrategyStat, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.bind(strategyStatsQuery), string(RunStatusFailed), since)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDatabaseError, "failed to query strategy stats", err)
	}
	defer rows.Close()

	var stats []StrategyStat
	for rows.Next() {
		var s StrategyStat
		if err := rows.Scan(&s.Strategy, &s.Runs, &s.Failures, &s.AvgMillis, &s.MaxNnz, &s.TotalSpins); err != nil {
			return nil, errors.Wrap(errors.CodeDatabaseError, "failed to scan strategy stats", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.CodeDatabaseError, "failed to iterate strategy stats", err)
	}
	return stats, nil
}
