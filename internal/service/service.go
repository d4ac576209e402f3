// Package service ties the symbolic kernels to the report writer, the run
// database and object storage.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/spgemm-symbolic/internal/csr"
	"github.com/spgemm-symbolic/internal/report"
	"github.com/spgemm-symbolic/internal/repository"
	"github.com/spgemm-symbolic/internal/storage"
	"github.com/spgemm-symbolic/internal/symbolic"
	"github.com/spgemm-symbolic/pkg/config"
	"github.com/spgemm-symbolic/pkg/errors"
	"github.com/spgemm-symbolic/pkg/parallel"
	"github.com/spgemm-symbolic/pkg/utils"
)

// Service runs symbolic products and keeps a record of each run.
type Service struct {
	config  *config.Config
	logger  utils.Logger
	version string
	db      *repository.Repositories
	storage storage.Storage
}

// New creates a new Service instance.
func New(cfg *config.Config, logger utils.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New(errors.CodeConfigError, "config is nil")
	}
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Service{config: cfg, logger: logger, version: "dev"}, nil
}

// UseRepositories makes the service record runs in repos instead of the
// configured database.
func (s *Service) UseRepositories(repos *repository.Repositories) {
	s.db = repos
}

// UseStorage makes the service archive reports in store instead of the
// configured backend.
func (s *Service) UseStorage(store storage.Storage) {
	s.storage = store
}

// SetVersion sets the version stamped on every report.
func (s *Service) SetVersion(v string) {
	s.version = v
}

// Initialize opens the database and storage backends that are enabled.
func (s *Service) Initialize(ctx context.Context) error {
	if s.config.Database.Enabled && s.db == nil {
		if err := s.initDatabase(); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
	}
	if s.config.Storage.Enabled && s.storage == nil {
		if err := s.initStorage(); err != nil {
			s.Close()
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
	}
	return nil
}

func (s *Service) initDatabase() error {
	s.logger.Debug("Connecting to database (%s)...", s.config.Database.Type)
	repos, err := repository.Open(&s.config.Database)
	if err != nil {
		return err
	}
	s.db = repos
	return nil
}

func (s *Service) initStorage() error {
	s.logger.Debug("Initializing storage (%s)...", s.config.Storage.Type)
	store, err := storage.New(&s.config.Storage)
	if err != nil {
		return err
	}
	s.storage = store
	return nil
}

// Close releases the database connection.
func (s *Service) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// HealthCheck performs a health check on the service.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database health check failed: %w", err)
		}
	}
	return nil
}

// Operands generates A (rows x inner) and B (inner x cols) from the matrix
// section of the config. B uses the next seed so the two never coincide.
func (s *Service) Operands() (*csr.Matrix, *csr.Matrix) {
	m := s.config.Matrix
	return csr.Random(m.Rows, m.Inner, m.PerRow, m.Seed), csr.Random(m.Inner, m.Cols, m.PerRow, m.Seed+1)
}

// Options returns the kernel options the config describes.
func (s *Service) Options() (symbolic.Options, error) {
	return symbolic.OptionsFromConfig(s.config.Symbolic)
}

// Outcome is what one run produced besides its error.
type Outcome struct {
	Report    *report.RunReport
	File      string
	ReportURL string
}

// Run computes the structure of a*bm, writes the report and records the run.
// The returned error is the kernel's (or verification's); bookkeeping
// failures are logged and leave the outcome partly filled.
func (s *Service) Run(ctx context.Context, a, bm *csr.Matrix, opts symbolic.Options) (*Outcome, error) {
	runID := report.NewRunID()
	log := s.logger.WithField("run_id", runID)
	b := csr.Compress(bm)
	if opts.Logger == nil {
		opts.Logger = log
	}

	res, err := symbolic.Compute(ctx, a, b, opts)
	verified := false
	if err == nil && s.config.Symbolic.Verify {
		if err = res.Verify(a, bm); err == nil {
			verified = true
		}
	}
	if err != nil {
		log.Error("symbolic product failed: %v", err)
	}

	rep := report.New(runID, a, b, res, err)
	rep.Version = s.version
	rep.Verified = verified
	out := &Outcome{Report: rep}

	written, werr := report.Write(rep, s.config.Report)
	if werr != nil {
		log.Error("Failed to write report: %v", werr)
	} else {
		out.File = written.Path
		log.WithFields(map[string]interface{}{
			"path": written.Path,
			"size": written.CompressedSize,
		}).Debug("report written")
	}

	if s.db != nil {
		rec := rep.Record()
		if rec.Strategy == "" {
			rec.Strategy = opts.Strategy.String()
			rec.ExecSpace = opts.ExecSpace.String()
		}
		if serr := s.db.Runs.SaveRun(ctx, rec); serr != nil {
			log.Error("Failed to record run: %v", serr)
		}
	}

	if s.storage != nil && out.File != "" {
		urls, aerr := storage.Archive(ctx, s.storage, runID, out.File)
		if aerr != nil {
			log.Error("Failed to archive report: %v", aerr)
		} else {
			out.ReportURL = urls[0]
			if s.db != nil {
				if uerr := s.db.Runs.UpdateReportURL(ctx, runID, out.ReportURL); uerr != nil {
					log.Error("Failed to store report url: %v", uerr)
				}
			}
		}
	}
	return out, err
}

// BenchResult is one strategy's run in a sweep.
type BenchResult = parallel.TaskResult[symbolic.Strategy, *Outcome]

// Bench runs the same product once per strategy. workers runs execute at a
// time; results come back in the order of strategies.
func (s *Service) Bench(ctx context.Context, a, bm *csr.Matrix, strategies []symbolic.Strategy, workers int) ([]BenchResult, error) {
	base, err := s.Options()
	if err != nil {
		return nil, err
	}
	pool := parallel.NewWorkerPool[symbolic.Strategy, *Outcome](
		parallel.DefaultPoolConfig().WithWorkers(max(workers, 1)).WithMetrics(),
	)
	results := pool.ExecuteFunc(ctx, strategies, func(ctx context.Context, st symbolic.Strategy) (*Outcome, error) {
		opts := base
		opts.Strategy = st
		opts.Timer = nil
		return s.Run(ctx, a, bm, opts)
	})
	m := pool.Metrics()
	s.logger.Debug("bench finished: %d runs, %d failed, %v total", m.TotalTasks, m.FailedTasks, m.TotalDuration)
	return results, nil
}

func (s *Service) requireDB() error {
	if s.db == nil {
		return errors.New(errors.CodeConfigError, "database is not enabled")
	}
	return nil
}

// History lists recorded runs, newest first.
func (s *Service) History(ctx context.Context, filter repository.RunFilter) ([]*repository.Run, error) {
	if err := s.requireDB(); err != nil {
		return nil, err
	}
	return s.db.Runs.ListRuns(ctx, filter)
}

// GetRun fetches one recorded run.
func (s *Service) GetRun(ctx context.Context, runID string) (*repository.Run, error) {
	if err := s.requireDB(); err != nil {
		return nil, err
	}
	return s.db.Runs.GetRun(ctx, runID)
}

// StrategyStats aggregates the runs recorded since the given time.
func (s *Service) StrategyStats(ctx context.Context, since time.Time) ([]repository.StrategyStat, error) {
	if err := s.requireDB(); err != nil {
		return nil, err
	}
	return s.db.Stats.StrategyStats(ctx, since)
}
