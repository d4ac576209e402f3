// Package arena provides a fixed pool of equal-size scratch chunks that workers
// claim for the duration of a row (or a run of rows) and hand back afterwards.
//
// # Assignment policies
//
// OneToOne gives every worker its own chunk: NumChunks must equal the worker
// count and Claim never waits. ManyToOne lets more workers than chunks share
// the pool; Claim sweeps the chunks with a compare-and-swap on the in-use flag
// and spins until one frees up.
//
// # Starvation
//
// A ManyToOne arena with too few chunks for the number of workers that hold a
// chunk at the same time spins forever. Config.RetryBudget bounds the number of
// sweeps; once exhausted, Claim fails with a configuration fault instead.
//
// Chunks are never grown. Callers size them from the row-size estimate and
// must restore every word they touch to the fill value before release.
package arena

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/spgemm-symbolic/pkg/errors"
)

// Policy decides how worker ids map to chunks.
type Policy int

const (
	// OneToOne binds worker i to chunk i.
	OneToOne Policy = iota
	// ManyToOne lets any worker take any free chunk.
	ManyToOne
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case OneToOne:
		return "one-to-one"
	case ManyToOne:
		return "many-to-one"
	default:
		return "unknown"
	}
}

// MarshalText encodes the policy by name.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a policy name.
func (p *Policy) UnmarshalText(text []byte) error {
	switch string(text) {
	case "one-to-one":
		*p = OneToOne
	case "many-to-one":
		*p = ManyToOne
	default:
		return errors.Newf(errors.CodeConfigError, "unknown arena policy %q", text)
	}
	return nil
}

// Empty is the fill value hash tables expect in an unused slot.
const Empty int64 = -1

// Config describes the pool geometry.
type Config struct {
	NumChunks   int
	ChunkSize   int   // in 64-bit words
	Fill        int64 // initial value of every word
	Policy      Policy
	RetryBudget int // ManyToOne sweeps before giving up; 0 spins forever
}

// Stats counts pool activity.
type Stats struct {
	Claims   uint64 `json:"claims"`
	Releases uint64 `json:"releases"`
	Spins    uint64 `json:"spins"`
}

// Arena is a bounded pool of chunks.
type Arena struct {
	cfg    Config
	words  []uint64
	chunks []Chunk
	inUse  []atomic.Bool

	claims   atomic.Uint64
	releases atomic.Uint64
	spins    atomic.Uint64
}

// New allocates NumChunks*ChunkSize words filled with cfg.Fill.
func New(cfg Config) (*Arena, error) {
	if cfg.NumChunks <= 0 {
		return nil, errors.Newf(errors.CodeConfigurationFault, "arena needs at least one chunk, got %d", cfg.NumChunks)
	}
	if cfg.ChunkSize <= 0 {
		return nil, errors.Newf(errors.CodeConfigurationFault, "arena chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.RetryBudget < 0 {
		return nil, errors.Newf(errors.CodeConfigurationFault, "negative retry budget %d", cfg.RetryBudget)
	}

	a := &Arena{
		cfg:    cfg,
		words:  make([]uint64, cfg.NumChunks*cfg.ChunkSize),
		chunks: make([]Chunk, cfg.NumChunks),
		inUse:  make([]atomic.Bool, cfg.NumChunks),
	}
	if cfg.Fill != 0 {
		fill := uint64(cfg.Fill)
		for i := range a.words {
			a.words[i] = fill
		}
	}
	for i := range a.chunks {
		lo := i * cfg.ChunkSize
		hi := lo + cfg.ChunkSize
		a.chunks[i] = Chunk{id: i, fill: cfg.Fill, words: a.words[lo:hi:hi]}
	}
	return a, nil
}

// Config returns the pool geometry.
func (a *Arena) Config() Config {
	return a.cfg
}

// NumChunks returns the number of chunks.
func (a *Arena) NumChunks() int {
	return a.cfg.NumChunks
}

// ChunkSize returns the chunk length in words.
func (a *Arena) ChunkSize() int {
	return a.cfg.ChunkSize
}

// Footprint returns the pool size in bytes.
func (a *Arena) Footprint() int64 {
	return int64(len(a.words)) * 8
}

// Claim hands out a chunk the caller owns until Release.
func (a *Arena) Claim(workerID int) (*Chunk, error) {
	if workerID < 0 {
		return nil, errors.Newf(errors.CodeConfigurationFault, "negative worker id %d", workerID)
	}
	n := a.cfg.NumChunks
	start := workerID % n

	if a.cfg.Policy == OneToOne {
		if !a.inUse[start].CompareAndSwap(false, true) {
			return nil, errors.Newf(errors.CodeConfigurationFault,
				"chunk %d already held: one-to-one arena has %d chunks for more workers", start, n)
		}
		a.claims.Add(1)
		return &a.chunks[start], nil
	}

	for sweep := 0; ; sweep++ {
		for i := 0; i < n; i++ {
			idx := start + i
			if idx >= n {
				idx -= n
			}
			if a.inUse[idx].CompareAndSwap(false, true) {
				a.claims.Add(1)
				return &a.chunks[idx], nil
			}
		}
		a.spins.Add(1)
		if a.cfg.RetryBudget > 0 && sweep+1 >= a.cfg.RetryBudget {
			return nil, errors.Newf(errors.CodeConfigurationFault,
				"no chunk freed after %d sweeps over %d chunks", a.cfg.RetryBudget, n)
		}
		runtime.Gosched()
	}
}

// Release returns a chunk to the pool.
func (a *Arena) Release(c *Chunk) {
	if c == nil {
		return
	}
	if a.inUse[c.id].CompareAndSwap(true, false) {
		a.releases.Add(1)
	}
}

// InUse returns how many chunks are currently claimed.
func (a *Arena) InUse() int {
	n := 0
	for i := range a.inUse {
		if a.inUse[i].Load() {
			n++
		}
	}
	return n
}

// Clean reports whether no chunk is held and every word holds the fill value.
func (a *Arena) Clean() bool {
	if a.InUse() != 0 {
		return false
	}
	for i := range a.chunks {
		if !a.chunks[i].Clean() {
			return false
		}
	}
	return true
}

// Stats returns a snapshot of the pool counters.
func (a *Arena) Stats() Stats {
	return Stats{
		Claims:   a.claims.Load(),
		Releases: a.releases.Load(),
		Spins:    a.spins.Load(),
	}
}

// Chunk is one claimed region of the arena.
type Chunk struct {
	id    int
	fill  int64
	words []uint64
}

// ID returns the chunk slot.
func (c *Chunk) ID() int {
	return c.id
}

// Len returns the chunk length in words.
func (c *Chunk) Len() int {
	return len(c.words)
}

// Fill returns the value every untouched word holds.
func (c *Chunk) Fill() int64 {
	return c.fill
}

// Uint64s returns words [offset, offset+n) as unsigned words.
func (c *Chunk) Uint64s(offset, n int) []uint64 {
	return c.words[offset : offset+n : offset+n]
}

// Int64s returns words [offset, offset+n) viewed as signed words.
func (c *Chunk) Int64s(offset, n int) []int64 {
	w := c.Uint64s(offset, n)
	if n == 0 {
		return []int64{}
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(&w[0])), n)
}

// Clean reports whether every word still holds the fill value.
func (c *Chunk) Clean() bool {
	fill := uint64(c.fill)
	for _, w := range c.words {
		if w != fill {
			return false
		}
	}
	return true
}
