package symbolic

import (
	"github.com/spgemm-symbolic/internal/accumulator"
	"github.com/spgemm-symbolic/internal/arena"
	"github.com/spgemm-symbolic/internal/csr"
	"github.com/spgemm-symbolic/pkg/errors"
	"github.com/spgemm-symbolic/pkg/parallel"
	"github.com/spgemm-symbolic/pkg/utils"
)

// denseConcurrencyLimit is the concurrency up to which MemoryPreference still
// picks dense tables off-device.
const denseConcurrencyLimit = 64

// SelectStrategy resolves Auto. Explicit strategies are returned unchanged.
//
// Off-device with one lane per row, a dense table wins under SpeedPreference,
// under MemoryPreference at modest concurrency, and whenever a hash table
// would need more than half the possible set indices. Device runs use
// TwoLevel; everything else uses Chained.
func SelectStrategy(opts Options, maxRough, setCount int) Strategy {
	if opts.Strategy != Auto {
		return opts.Strategy
	}
	if opts.ExecSpace == Device {
		return TwoLevel
	}
	if opts.VectorSize <= 1 {
		switch {
		case opts.Preference == SpeedPreference:
			return Dense
		case opts.Preference == MemoryPreference && opts.Concurrency <= denseConcurrencyLimit:
			return Dense
		case 2*accumulator.NextPow2(maxRough) > setCount:
			return Dense
		}
	}
	return Chained
}

// SharedLayout sizes the first level of a TwoLevel table from the fast
// scratch one team member gets.
type SharedLayout struct {
	ThreadMemory int `json:"thread_memory"` // bytes
	HashSize     int `json:"hash_size"`
	KeySize      int `json:"key_size"`
}

// chainedUnitWords is the per-key footprint the first level is budgeted with:
// a bucket head, a next link, a key and a value.
const chainedUnitWords = 4

// NewSharedLayout splits sharedMemory bytes among teamSize members and fits
// as many keys as the budget allows, with a power-of-two bucket count at
// most half the key count. Keys freed by the smaller bucket array are
// partly handed back to the key arrays.
func NewSharedLayout(sharedMemory, teamSize int) (SharedLayout, error) {
	if teamSize <= 0 {
		teamSize = 1
	}
	l := SharedLayout{ThreadMemory: (sharedMemory / 8 / teamSize) * 8}
	keys := (l.ThreadMemory/8 - 3) / chainedUnitWords
	if keys < 2 {
		return SharedLayout{}, errors.Newf(errors.CodeConfigurationFault,
			"%d bytes of shared memory per team of %d leave no room for a first-level table", sharedMemory, teamSize)
	}
	l.HashSize = accumulator.PrevPow2(keys / 2)
	keys += (keys - l.HashSize) / 3
	l.KeySize = keys &^ 1
	return l, nil
}

// Plan is the resolved geometry of one run: which table every row uses, how
// large it is, and the arena backing it.
type Plan struct {
	Strategy   Strategy     `json:"strategy"`
	ExecSpace  ExecSpace    `json:"exec_space"`
	Workers    int          `json:"workers"`
	VectorSize int          `json:"vector_size"`
	TeamSize   int          `json:"team_size"`
	ChunkRows  int          `json:"chunk_rows"`
	Estimate   int          `json:"estimate"`  // largest per-row estimate, at least 1
	MaxRough   int          `json:"max_rough"` // entries a table is provisioned for
	HashSize   int          `json:"hash_size"`
	SetCount   int          `json:"set_count"`
	ChunkWords int          `json:"chunk_words"`
	NumChunks  int          `json:"num_chunks"`
	Policy     arena.Policy `json:"policy"`
	Fill       int64        `json:"fill"`
	Shared     SharedLayout `json:"shared"`

	pool   *arena.Arena
	runner *parallel.Runner
	logger utils.Logger
}

// NewPlan picks the strategy, sizes tables from the row-size estimate and
// allocates the arena.
//
// Hash tables get HashSize = NextPow2(MaxRough) buckets and MaxRough
// entries; the estimate already bounds the distinct keys of every row, so
// the probe ceiling is never reached on valid input. Dense tables cover every
// set index and only track up to the estimate.
func NewPlan(b *csr.Compressed, est Estimate, opts Options) (*Plan, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	p := &Plan{
		ExecSpace:  opts.ExecSpace,
		Workers:    opts.Concurrency / opts.VectorSize,
		VectorSize: opts.VectorSize,
		TeamSize:   opts.TeamSize,
		ChunkRows:  opts.ChunkRows,
		Estimate:   max(est.Max, 1),
		SetCount:   b.SetCount(),
		Policy:     arena.OneToOne,
		Fill:       arena.Empty,
		logger:     opts.Logger,
	}
	p.MaxRough = p.Estimate
	p.Strategy = SelectStrategy(opts, p.MaxRough, p.SetCount)
	if p.VectorSize > 1 && !p.Strategy.Cooperative() {
		return nil, errors.Newf(errors.CodeConfigurationFault,
			"strategy %s cannot share a row among %d lanes", p.Strategy, p.VectorSize)
	}
	p.HashSize = accumulator.NextPow2(p.MaxRough)

	switch p.Strategy {
	case Cuckoo:
		p.ChunkWords = accumulator.CuckooWords(p.HashSize)
	case TrackedCuckoo, TrackedAvalanche:
		p.ChunkWords = accumulator.TrackedCuckooWords(p.HashSize, p.MaxRough)
	case Dense:
		p.ChunkWords = accumulator.DenseWords(p.SetCount, p.Estimate)
		p.MaxRough = p.SetCount
		p.Fill = 0
	case TwoLevel:
		p.ChunkWords = accumulator.ChainedWords(p.HashSize, p.MaxRough)
		if p.Shared, err = NewSharedLayout(opts.SharedMemory, opts.TeamSize); err != nil {
			return nil, err
		}
	default:
		p.ChunkWords = accumulator.ChainedWords(p.HashSize, p.MaxRough)
	}

	p.NumChunks = p.Workers
	if p.ExecSpace == Device {
		p.Policy = arena.ManyToOne
		p.NumChunks = fitDeviceMemory(p.NumChunks, p.ChunkWords, opts.DeviceMemory)
		if p.NumChunks == 0 {
			return nil, errors.Newf(errors.CodeConfigurationFault,
				"device memory budget of %d bytes cannot hold one %d-word chunk", opts.DeviceMemory, p.ChunkWords)
		}
	}

	p.pool, err = arena.New(arena.Config{
		NumChunks:   p.NumChunks,
		ChunkSize:   p.ChunkWords,
		Fill:        p.Fill,
		Policy:      p.Policy,
		RetryBudget: opts.RetryBudget,
	})
	if err != nil {
		return nil, err
	}
	p.runner = parallel.NewRunner(parallel.DefaultPoolConfig().WithWorkers(p.Workers))

	p.logger.WithFields(map[string]interface{}{
		"strategy":   p.Strategy.String(),
		"workers":    p.Workers,
		"lanes":      p.VectorSize,
		"hash_size":  p.HashSize,
		"max_rough":  p.MaxRough,
		"num_chunks": p.NumChunks,
		"chunk_mb":   float64(p.pool.Footprint()) / (1 << 20),
	}).Info("planned symbolic product")
	return p, nil
}

// fitDeviceMemory shrinks the chunk count until the pool fits in half of
// the budget, then rounds it down to a power of two.
func fitDeviceMemory(numChunks, chunkWords int, budget int64) int {
	required := int64(numChunks) * int64(chunkWords) * 8
	if required+int64(numChunks) > budget {
		free := budget - int64(numChunks)
		if free <= 0 {
			return 0
		}
		numChunks = int((free/2/8*8)/8) / chunkWords
	}
	return accumulator.PrevPow2(numChunks)
}

// Arena returns the pool tables are carved from.
func (p *Plan) Arena() *arena.Arena {
	return p.pool
}

// Runner returns the runner rows are distributed with.
func (p *Plan) Runner() *parallel.Runner {
	return p.runner
}

// table is an accumulator bound to one worker, plus whatever it holds from
// the arena.
type table struct {
	acc     accumulator.Accumulator
	release func()
}

// acquire builds the table worker uses for a range of rows. Single-level
// strategies hold one arena chunk until release; TwoLevel claims a chunk
// only for rows that spill.
func (p *Plan) acquire(worker int) (*table, error) {
	if p.Strategy == TwoLevel {
		t, err := accumulator.NewTwoLevel(accumulator.TwoLevelConfig{
			FirstCapacity:  p.Shared.HashSize,
			FirstEntries:   p.Shared.KeySize,
			SecondCapacity: p.HashSize,
			SecondEntries:  p.MaxRough,
			Pool:           p.pool,
			WorkerID:       worker,
		})
		if err != nil {
			return nil, err
		}
		return &table{acc: t, release: t.Close}, nil
	}

	chunk, err := p.pool.Claim(worker)
	if err != nil {
		return nil, err
	}
	acc, err := p.bind(chunk)
	if err != nil {
		p.pool.Release(chunk)
		return nil, err
	}
	return &table{acc: acc, release: func() { p.pool.Release(chunk) }}, nil
}

// bind carves the planned single-level table out of backing memory.
func (p *Plan) bind(b accumulator.Backing) (accumulator.Accumulator, error) {
	switch p.Strategy {
	case Dense:
		return accumulator.NewDense(b, p.SetCount, p.Estimate)
	case Cuckoo:
		return accumulator.NewCuckoo(b, p.HashSize, accumulator.Multiplicative)
	case TrackedCuckoo:
		return accumulator.NewTrackedCuckoo(b, p.HashSize, p.MaxRough, accumulator.Multiplicative)
	case TrackedAvalanche:
		return accumulator.NewTrackedCuckoo(b, p.HashSize, p.MaxRough, accumulator.Avalanche)
	case Chained:
		return accumulator.NewChained(b, p.HashSize, p.MaxRough)
	default:
		return nil, errors.Newf(errors.CodeConfigurationFault, "strategy %s has no single-level table", p.Strategy)
	}
}
