// Package parallel provides the data-parallel building blocks of the symbolic
// kernels: chunked row ranges handed to a fixed set of workers, cooperative
// lanes inside a worker, reductions and prefix sums.
package parallel

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ============================================================================
// Worker Pool Configuration
// ============================================================================

// PoolConfig configures the worker pool behavior.
type PoolConfig struct {
	// MaxWorkers is the number of concurrent workers (teams).
	// Default: runtime.NumCPU()
	MaxWorkers int

	// TaskBufferSize is the buffer size for the task channel of WorkerPool.
	// Default: MaxWorkers * 2
	TaskBufferSize int

	// Timeout is the maximum time for the entire operation.
	// Default: 0 (no timeout)
	Timeout time.Duration

	// CollectMetrics enables collection of execution metrics.
	CollectMetrics bool
}

// DefaultPoolConfig returns a default pool configuration.
func DefaultPoolConfig() PoolConfig {
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	return PoolConfig{
		MaxWorkers:     workers,
		TaskBufferSize: workers * 2,
	}
}

// WithWorkers returns a new config with the specified number of workers.
func (c PoolConfig) WithWorkers(n int) PoolConfig {
	c.MaxWorkers = n
	return c
}

// WithTimeout returns a new config with the specified timeout.
func (c PoolConfig) WithTimeout(d time.Duration) PoolConfig {
	c.Timeout = d
	return c
}

// WithMetrics returns a new config with metrics collection enabled.
func (c PoolConfig) WithMetrics() PoolConfig {
	c.CollectMetrics = true
	return c
}

func (c PoolConfig) workers() int {
	if c.MaxWorkers <= 0 {
		return DefaultPoolConfig().MaxWorkers
	}
	return c.MaxWorkers
}

// ============================================================================
// Execution Metrics
// ============================================================================

// PoolMetrics holds execution statistics.
type PoolMetrics struct {
	TotalTasks     int64
	CompletedTasks int64
	FailedTasks    int64
	TotalDuration  time.Duration
	AvgTaskTime    time.Duration
	MaxTaskTime    time.Duration
	MinTaskTime    time.Duration
}

type metricsRecorder struct {
	mu      sync.Mutex
	enabled bool
	m       PoolMetrics
}

func newMetricsRecorder(enabled bool) *metricsRecorder {
	return &metricsRecorder{enabled: enabled, m: PoolMetrics{MinTaskTime: time.Hour}}
}

func (r *metricsRecorder) task(d time.Duration, err error) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m.TotalTasks++
	if err != nil {
		r.m.FailedTasks++
	} else {
		r.m.CompletedTasks++
	}
	if d > r.m.MaxTaskTime {
		r.m.MaxTaskTime = d
	}
	if d < r.m.MinTaskTime {
		r.m.MinTaskTime = d
	}
}

func (r *metricsRecorder) finish(total time.Duration) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m.TotalDuration += total
	if r.m.CompletedTasks > 0 {
		r.m.AvgTaskTime = r.m.TotalDuration / time.Duration(r.m.CompletedTasks)
	}
}

func (r *metricsRecorder) snapshot() PoolMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.m
	if m.TotalTasks == 0 {
		m.MinTaskTime = 0
	}
	return m
}

// ============================================================================
// Runner - chunked row ranges over a fixed worker set
// ============================================================================

// Runner hands out [lo, hi) ranges of a row space to MaxWorkers goroutines.
// Each goroutine keeps its worker id for the whole call, so per-worker
// scratch such as an arena chunk can be indexed by it.
type Runner struct {
	config  PoolConfig
	metrics *metricsRecorder
}

// NewRunner creates a runner.
func NewRunner(config PoolConfig) *Runner {
	return &Runner{config: config, metrics: newMetricsRecorder(config.CollectMetrics)}
}

// Workers returns the number of goroutines a call starts at most.
func (r *Runner) Workers() int {
	return r.config.workers()
}

// Metrics returns per-chunk execution statistics.
func (r *Runner) Metrics() PoolMetrics {
	return r.metrics.snapshot()
}

// ForRange runs fn over [0, n) in ranges of chunk rows. Ranges are claimed
// dynamically. The first error stops further claims and is returned once all
// workers finish their current range.
func (r *Runner) ForRange(ctx context.Context, n, chunk int, fn func(ctx context.Context, worker, lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	if chunk <= 0 {
		chunk = 1
	}
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	numChunks := (n + chunk - 1) / chunk
	workers := min(r.config.workers(), numChunks)

	var next atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		worker := w
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				c := int(next.Add(1) - 1)
				if c >= numChunks {
					return nil
				}
				lo := c * chunk
				hi := min(lo+chunk, n)
				taskStart := time.Now()
				err := fn(gctx, worker, lo, hi)
				r.metrics.task(time.Since(taskStart), err)
				if err != nil {
					return err
				}
			}
		})
	}
	err := g.Wait()
	r.metrics.finish(time.Since(start))
	return err
}

// ReduceMax returns the maximum of fn(i) over [0, n), or 0 when n is 0.
func (r *Runner) ReduceMax(ctx context.Context, n, chunk int, fn func(i int) int) (int, error) {
	local := make([]int, r.config.workers())
	err := r.ForRange(ctx, n, chunk, func(_ context.Context, worker, lo, hi int) error {
		m := local[worker]
		for i := lo; i < hi; i++ {
			if v := fn(i); v > m {
				m = v
			}
		}
		local[worker] = m
		return nil
	})
	if err != nil {
		return 0, err
	}
	best := 0
	for _, m := range local {
		best = max(best, m)
	}
	return best, nil
}

// ExclusiveScan replaces values[i] with the sum of values[0:i] and returns the
// total. Blocks are scanned in parallel, then shifted by their block offsets.
func (r *Runner) ExclusiveScan(ctx context.Context, values []int) (int, error) {
	n := len(values)
	workers := r.config.workers()
	if n < 2*workers || workers == 1 {
		return ExclusiveScan(values), nil
	}

	block := (n + workers - 1) / workers
	sums := make([]int, (n+block-1)/block)
	err := r.ForRange(ctx, n, block, func(_ context.Context, _, lo, hi int) error {
		sums[lo/block] = ExclusiveScan(values[lo:hi])
		return nil
	})
	if err != nil {
		return 0, err
	}
	total := ExclusiveScan(sums)
	err = r.ForRange(ctx, n, block, func(_ context.Context, _, lo, hi int) error {
		off := sums[lo/block]
		for i := lo; i < hi; i++ {
			values[i] += off
		}
		return nil
	})
	return total, err
}

// ExclusiveScan is the sequential form of Runner.ExclusiveScan.
func ExclusiveScan(values []int) int {
	sum := 0
	for i, v := range values {
		values[i] = sum
		sum += v
	}
	return sum
}

// ============================================================================
// Lanes - cooperative workers inside one team
// ============================================================================

// Lanes runs fn for every lane in [0, lanes) and returns once all have
// finished. A single lane runs on the calling goroutine.
func Lanes(lanes int, fn func(lane int) error) error {
	if lanes <= 1 {
		return fn(0)
	}
	var g errgroup.Group
	for l := 0; l < lanes; l++ {
		lane := l
		g.Go(func() error {
			return fn(lane)
		})
	}
	return g.Wait()
}

// Strided calls fn(i) for the indices of [lo, hi) that belong to lane.
func Strided(lane, lanes, lo, hi int, fn func(i int) error) error {
	for i := lo + lane; i < hi; i += lanes {
		if err := fn(i); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// Generic Task Pool
// ============================================================================

// Task represents a unit of work that can be executed by the worker pool.
type Task[T any, R any] interface {
	// Execute performs the task and returns the result.
	Execute(ctx context.Context) (R, error)
	// Input returns the input data for this task.
	Input() T
}

// TaskFunc is a function type that implements Task interface.
type TaskFunc[T any, R any] struct {
	input   T
	execute func(ctx context.Context, input T) (R, error)
}

// NewTask creates a new task from a function.
func NewTask[T any, R any](input T, fn func(ctx context.Context, input T) (R, error)) *TaskFunc[T, R] {
	return &TaskFunc[T, R]{
		input:   input,
		execute: fn,
	}
}

// Execute implements Task interface.
func (t *TaskFunc[T, R]) Execute(ctx context.Context) (R, error) {
	return t.execute(ctx, t.input)
}

// Input implements Task interface.
func (t *TaskFunc[T, R]) Input() T {
	return t.input
}

// TaskResult holds the result of a task execution.
type TaskResult[T any, R any] struct {
	Input    T
	Result   R
	Error    error
	Duration time.Duration
}

// WorkerPool runs independent tasks, such as whole strategy runs, in parallel.
type WorkerPool[T any, R any] struct {
	config  PoolConfig
	metrics *metricsRecorder
}

// NewWorkerPool creates a new worker pool with the given configuration.
func NewWorkerPool[T any, R any](config PoolConfig) *WorkerPool[T, R] {
	config.MaxWorkers = config.workers()
	if config.TaskBufferSize <= 0 {
		config.TaskBufferSize = config.MaxWorkers * 2
	}
	return &WorkerPool[T, R]{
		config:  config,
		metrics: newMetricsRecorder(config.CollectMetrics),
	}
}

// Execute runs all tasks and returns results in input order.
func (p *WorkerPool[T, R]) Execute(ctx context.Context, tasks []Task[T, R]) []TaskResult[T, R] {
	if len(tasks) == 0 {
		return nil
	}

	startTime := time.Now()
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	results := make([]TaskResult[T, R], len(tasks))
	taskCh := make(chan int, p.config.TaskBufferSize)

	var wg sync.WaitGroup
	numWorkers := min(p.config.MaxWorkers, len(tasks))
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range taskCh {
				task := tasks[idx]
				if err := ctx.Err(); err != nil {
					results[idx] = TaskResult[T, R]{Input: task.Input(), Error: err}
					continue
				}
				taskStart := time.Now()
				result, err := task.Execute(ctx)
				duration := time.Since(taskStart)
				results[idx] = TaskResult[T, R]{
					Input:    task.Input(),
					Result:   result,
					Error:    err,
					Duration: duration,
				}
				p.metrics.task(duration, err)
			}
		}()
	}

	for i := range tasks {
		taskCh <- i
	}
	close(taskCh)
	wg.Wait()

	p.metrics.finish(time.Since(startTime))
	return results
}

// ExecuteFunc is a convenience method that creates tasks from a function.
func (p *WorkerPool[T, R]) ExecuteFunc(ctx context.Context, inputs []T, fn func(ctx context.Context, input T) (R, error)) []TaskResult[T, R] {
	tasks := make([]Task[T, R], len(inputs))
	for i, input := range inputs {
		tasks[i] = NewTask(input, fn)
	}
	return p.Execute(ctx, tasks)
}

// Metrics returns the current execution metrics.
func (p *WorkerPool[T, R]) Metrics() PoolMetrics {
	return p.metrics.snapshot()
}
