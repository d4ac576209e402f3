// Package symbolic computes the nonzero structure of a sparse product C = A*B:
// per-row size estimates, exact row counts of C and, optionally, the column
// indices of every row.
package symbolic

import (
	"runtime"
	"strings"

	"github.com/spgemm-symbolic/pkg/config"
	"github.com/spgemm-symbolic/pkg/errors"
	"github.com/spgemm-symbolic/pkg/utils"
)

// Strategy selects the per-row accumulator.
type Strategy int

const (
	// Auto picks a strategy from the execution space and preference.
	Auto Strategy = iota
	// Dense keeps one word per possible set index.
	Dense
	// Cuckoo is open addressing with a full-capacity clear.
	Cuckoo
	// TrackedCuckoo is open addressing that clears only touched slots.
	TrackedCuckoo
	// TrackedAvalanche is TrackedCuckoo with the avalanche scramble.
	TrackedAvalanche
	// TwoLevel fronts an arena-backed chained table with a private one.
	TwoLevel
	// Chained is a bucketed table with head-linked entry lists.
	Chained
)

var strategyNames = map[Strategy]string{
	Auto:             "auto",
	Dense:            "dense",
	Cuckoo:           "cuckoo",
	TrackedCuckoo:    "tracked",
	TrackedAvalanche: "tracked-avalanche",
	TwoLevel:         "two-level",
	Chained:          "chained",
}

// Strategies lists every concrete strategy.
var Strategies = []Strategy{Dense, Cuckoo, TrackedCuckoo, TrackedAvalanche, TwoLevel, Chained}

// String returns the strategy name.
func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the strategy by name.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a strategy name.
func (s *Strategy) UnmarshalText(text []byte) error {
	v, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Cooperative reports whether several lanes may insert into one table of
// this strategy at the same time.
func (s Strategy) Cooperative() bool {
	return s == Chained || s == TwoLevel
}

// ParseStrategy resolves a strategy name. The empty string means Auto.
func ParseStrategy(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Auto, nil
	}
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return Auto, errors.Newf(errors.CodeConfigError, "unknown strategy %q", name)
}

// ExecSpace describes the kind of parallelism the kernels run on.
type ExecSpace int

const (
	// Serial runs one worker.
	Serial ExecSpace = iota
	// Threads runs one worker per chunk on a modest number of cores.
	Threads
	// Device models massively parallel execution: many more workers than
	// arena chunks, small fast scratch per team and a memory budget.
	Device
)

// String returns the execution space name.
func (e ExecSpace) String() string {
	switch e {
	case Serial:
		return "serial"
	case Threads:
		return "threads"
	case Device:
		return "device"
	default:
		return "unknown"
	}
}

// MarshalText encodes the execution space by name.
func (e ExecSpace) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText decodes an execution space name.
func (e *ExecSpace) UnmarshalText(text []byte) error {
	v, err := ParseExecSpace(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// ParseExecSpace resolves an execution space name. The empty string means Threads.
func ParseExecSpace(name string) (ExecSpace, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "serial":
		return Serial, nil
	case "threads", "":
		return Threads, nil
	case "device":
		return Device, nil
	default:
		return Threads, errors.Newf(errors.CodeConfigError, "unknown execution space %q", name)
	}
}

// Preference biases Auto towards speed or memory.
type Preference int

const (
	NoPreference Preference = iota
	SpeedPreference
	MemoryPreference
)

// String returns the preference name.
func (p Preference) String() string {
	switch p {
	case SpeedPreference:
		return "speed"
	case MemoryPreference:
		return "memory"
	default:
		return "none"
	}
}

// MarshalText encodes the preference by name.
func (p Preference) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a preference name.
func (p *Preference) UnmarshalText(text []byte) error {
	v, err := ParsePreference(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParsePreference resolves a preference name.
func ParsePreference(name string) (Preference, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "":
		return NoPreference, nil
	case "speed":
		return SpeedPreference, nil
	case "memory":
		return MemoryPreference, nil
	default:
		return NoPreference, errors.Newf(errors.CodeConfigError, "unknown preference %q", name)
	}
}

// Options controls one Compute call.
type Options struct {
	Strategy   Strategy
	ExecSpace  ExecSpace
	Preference Preference

	// Concurrency is the total number of lanes; 0 uses GOMAXPROCS.
	Concurrency int
	// VectorSize lanes cooperate on one row. Concurrency/VectorSize rows run
	// at once.
	VectorSize int
	// TeamSize rows share one SharedMemory region.
	TeamSize int
	// ChunkRows is the number of consecutive rows a worker takes at a time.
	ChunkRows int

	// SharedMemory is the fast scratch per team in bytes; it sizes the first
	// level of TwoLevel tables.
	SharedMemory int
	// DeviceMemory bounds the arena footprint in bytes on Device.
	DeviceMemory int64
	// RetryBudget bounds arena claim sweeps; 0 spins until a chunk frees.
	RetryBudget int

	Materialize  bool
	Intersection bool

	Logger utils.Logger
	Timer  *utils.Timer
}

// DefaultOptions returns options for a threaded run that materializes columns.
func DefaultOptions() Options {
	return Options{
		Strategy:     Auto,
		ExecSpace:    Threads,
		VectorSize:   1,
		TeamSize:     1,
		ChunkRows:    64,
		SharedMemory: 16 * 1024,
		DeviceMemory: 1 << 30,
		Materialize:  true,
	}
}

// OptionsFromConfig translates the symbolic config section.
func OptionsFromConfig(cfg config.SymbolicConfig) (Options, error) {
	strategy, err := ParseStrategy(cfg.Strategy)
	if err != nil {
		return Options{}, err
	}
	space, err := ParseExecSpace(cfg.ExecSpace)
	if err != nil {
		return Options{}, err
	}
	pref, err := ParsePreference(cfg.Preference)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Strategy:     strategy,
		ExecSpace:    space,
		Preference:   pref,
		Concurrency:  cfg.Concurrency,
		VectorSize:   cfg.VectorSize,
		TeamSize:     cfg.TeamSize,
		ChunkRows:    cfg.ChunkRows,
		SharedMemory: cfg.SharedMemory,
		DeviceMemory: cfg.DeviceMemory,
		RetryBudget:  cfg.RetryBudget,
		Materialize:  cfg.Materialize,
		Intersection: cfg.Intersection,
	}, nil
}

// normalize fills unset fields and checks the rest.
func (o Options) normalize() (Options, error) {
	if o.VectorSize <= 0 {
		o.VectorSize = 1
	}
	if o.TeamSize <= 0 {
		o.TeamSize = 1
	}
	if o.ChunkRows <= 0 {
		o.ChunkRows = 64
	}
	switch {
	case o.ExecSpace == Serial:
		o.Concurrency = o.VectorSize
	case o.Concurrency <= 0:
		o.Concurrency = runtime.GOMAXPROCS(0) * o.VectorSize
	}
	if o.Concurrency < o.VectorSize {
		return o, errors.Newf(errors.CodeConfigurationFault,
			"concurrency %d is below the vector size %d", o.Concurrency, o.VectorSize)
	}
	if o.SharedMemory < 0 || o.DeviceMemory < 0 || o.RetryBudget < 0 {
		return o, errors.New(errors.CodeConfigurationFault, "memory sizes and retry budget must not be negative")
	}
	if o.Logger == nil {
		o.Logger = &utils.NullLogger{}
	}
	if o.Timer == nil {
		o.Timer = utils.NewTimer("symbolic", utils.WithLogger(o.Logger))
	}
	return o, nil
}
