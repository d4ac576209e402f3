package utils

import (
	"sync"
	"time"
)

// Phase is the accumulated time spent in one named step.
type Phase struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ns"`
	Runs     int           `json:"runs"`
}

// PhaseTimer times one run of a phase. It is meant to be stopped with defer.
type PhaseTimer struct {
	timer   *Timer
	name    string
	start   time.Time
	stopped bool
}

// Stop records the run and returns its duration. Only the first call counts.
func (pt *PhaseTimer) Stop() time.Duration {
	if pt.stopped || !pt.timer.enabled {
		return 0
	}
	pt.stopped = true
	d := pt.timer.clock.Since(pt.start)
	pt.timer.record(pt.name, d)
	return d
}

// Timer accumulates wall time per phase. Phases keep first-start order and a
// phase that runs several times adds up.
type Timer struct {
	mu      sync.Mutex
	name    string
	start   time.Time
	phases  map[string]*Phase
	order   []string
	logger  Logger
	enabled bool
	clock   Clock
}

// TimerOption configures a Timer instance.
type TimerOption func(*Timer)

// WithLogger sets the logger LogSummary writes to.
func WithLogger(logger Logger) TimerOption {
	return func(t *Timer) {
		t.logger = logger
	}
}

// WithEnabled turns recording on or off.
func WithEnabled(enabled bool) TimerOption {
	return func(t *Timer) {
		t.enabled = enabled
	}
}

// WithClock sets a custom clock for testability.
func WithClock(clock Clock) TimerOption {
	return func(t *Timer) {
		t.clock = clock
	}
}

// NewTimer creates a new Timer with the given name and options.
func NewTimer(name string, opts ...TimerOption) *Timer {
	t := &Timer{
		name:    name,
		phases:  make(map[string]*Phase),
		enabled: true,
		clock:   NewRealClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.start = t.clock.Now()
	return t
}

// NullTimer returns a timer that records nothing.
func NullTimer() *Timer {
	return NewTimer("", WithEnabled(false))
}

// Name returns the timer name.
func (t *Timer) Name() string {
	return t.name
}

// Start begins a run of the named phase.
func (t *Timer) Start(name string) *PhaseTimer {
	pt := &PhaseTimer{timer: t, name: name}
	if t.enabled {
		pt.start = t.clock.Now()
	}
	return pt
}

func (t *Timer) record(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.phases[name]
	if !ok {
		p = &Phase{Name: name}
		t.phases[name] = p
		t.order = append(t.order, name)
	}
	p.Duration += d
	p.Runs++
}

// TimeFuncWithError times fn as one run of the named phase.
func (t *Timer) TimeFuncWithError(name string, fn func() error) (time.Duration, error) {
	pt := t.Start(name)
	err := fn()
	return pt.Stop(), err
}

// Duration returns the accumulated time of a phase.
func (t *Timer) Duration(name string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.phases[name]; ok {
		return p.Duration
	}
	return 0
}

// Phases returns a copy of all phases in first-start order.
func (t *Timer) Phases() []Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Phase, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, *t.phases[name])
	}
	return out
}

// Total returns the time since the timer was created.
func (t *Timer) Total() time.Duration {
	return t.clock.Since(t.start)
}

// LogSummary writes one line per phase to the configured logger.
func (t *Timer) LogSummary() {
	if !t.enabled || t.logger == nil {
		return
	}
	for i, p := range t.Phases() {
		t.logger.Info("%s phase %d - %s: %v (%d runs)", t.name, i+1, p.Name, p.Duration, p.Runs)
	}
	t.logger.Info("%s total: %v", t.name, t.Total())
}
