package accumulator

import (
	"sync"
	"sync/atomic"

	"github.com/spgemm-symbolic/internal/arena"
	"github.com/spgemm-symbolic/pkg/collections"
	"github.com/spgemm-symbolic/pkg/errors"
)

// TwoLevelConfig sizes both levels of a TwoLevel table.
type TwoLevelConfig struct {
	// FirstCapacity and FirstEntries size the private first level.
	FirstCapacity int
	FirstEntries  int
	// SecondCapacity and SecondEntries size the arena-backed second level.
	SecondCapacity int
	SecondEntries  int
	Pool           *arena.Arena
	WorkerID       int
}

// TwoLevel puts a small private chained table in front of a full-size chained
// table that is only claimed from the arena once the first level runs out of
// entries.
//
// Under concurrent lanes a key can end up in both levels: one lane fills the
// last first-level entry while another already routed the same key to the
// second level. Count and ForEach fold such keys together.
type TwoLevel struct {
	cfg     TwoLevelConfig
	scratch *Scratch
	first   *Chained

	mu     sync.Mutex
	second atomic.Pointer[Chained]
	chunk  *arena.Chunk
	spills atomic.Int64
}

// NewTwoLevel allocates the first level and checks that the arena can hold a
// second level.
func NewTwoLevel(cfg TwoLevelConfig) (*TwoLevel, error) {
	if cfg.Pool == nil {
		return nil, errors.New(errors.CodeConfigurationFault, "two-level table needs an arena for its second level")
	}
	if err := checkCapacity(cfg.SecondCapacity, cfg.SecondEntries, "second-level"); err != nil {
		return nil, err
	}
	if need := ChainedWords(cfg.SecondCapacity, cfg.SecondEntries); cfg.Pool.ChunkSize() < need {
		return nil, errors.Newf(errors.CodeConfigurationFault,
			"second-level table needs %d words, arena chunks hold %d", need, cfg.Pool.ChunkSize())
	}
	if err := checkCapacity(cfg.FirstCapacity, cfg.FirstEntries, "first-level"); err != nil {
		return nil, err
	}

	scratch := NewScratch(ChainedWords(cfg.FirstCapacity, cfg.FirstEntries), arena.Empty)
	first, err := NewChained(scratch, cfg.FirstCapacity, cfg.FirstEntries)
	if err != nil {
		scratch.Free()
		return nil, err
	}
	return &TwoLevel{cfg: cfg, scratch: scratch, first: first}, nil
}

// Spills returns how many times a second level was claimed.
func (t *TwoLevel) Spills() int64 {
	return t.spills.Load()
}

// Spilled reports whether the current row uses the second level.
func (t *TwoLevel) Spilled() bool {
	return t.second.Load() != nil
}

func (t *TwoLevel) secondLevel() (*Chained, error) {
	if s := t.second.Load(); s != nil {
		return s, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if s := t.second.Load(); s != nil {
		return s, nil
	}
	chunk, err := t.cfg.Pool.Claim(t.cfg.WorkerID)
	if err != nil {
		return nil, err
	}
	s, err := NewChained(chunk, t.cfg.SecondCapacity, t.cfg.SecondEntries)
	if err != nil {
		t.cfg.Pool.Release(chunk)
		return nil, err
	}
	t.chunk = chunk
	t.spills.Add(1)
	t.second.Store(s)
	return s, nil
}

// InsertMergeOr inserts from a single lane.
func (t *TwoLevel) InsertMergeOr(key int64, v uint64) error {
	if t.first.tryInsert(key, v) {
		return nil
	}
	s, err := t.secondLevel()
	if err != nil {
		return err
	}
	return s.InsertMergeOr(key, v)
}

// AtomicInsertMergeOr inserts while other lanes insert into the same table.
func (t *TwoLevel) AtomicInsertMergeOr(key int64, v uint64) error {
	if t.first.tryAtomicInsert(key, v) {
		return nil
	}
	s, err := t.secondLevel()
	if err != nil {
		return err
	}
	return s.AtomicInsertMergeOr(key, v)
}

// ForEach visits every distinct key once across both levels.
func (t *TwoLevel) ForEach(fn func(key int64, bits uint64)) {
	s := t.second.Load()
	if s == nil {
		t.first.ForEach(fn)
		return
	}
	t.first.ForEach(func(k int64, v uint64) {
		if v2, ok := s.lookup(k); ok {
			v |= v2
		}
		fn(k, v)
	})
	s.ForEach(func(k int64, v uint64) {
		if _, ok := t.first.lookup(k); !ok {
			fn(k, v)
		}
	})
}

// Count returns the popcount across both levels.
func (t *TwoLevel) Count() int {
	if t.second.Load() == nil {
		return t.first.Count()
	}
	n := 0
	t.ForEach(func(_ int64, v uint64) {
		n += collections.PopCount(v)
	})
	return n
}

// Len returns the number of distinct keys across both levels.
func (t *TwoLevel) Len() int {
	if t.second.Load() == nil {
		return t.first.Len()
	}
	n := 0
	t.ForEach(func(int64, uint64) { n++ })
	return n
}

// Clear resets both levels and hands the second level's chunk back.
func (t *TwoLevel) Clear() {
	t.first.Clear()
	t.mu.Lock()
	defer t.mu.Unlock()
	if s := t.second.Load(); s != nil {
		s.Clear()
		t.cfg.Pool.Release(t.chunk)
		t.chunk = nil
		t.second.Store(nil)
	}
}

// Close clears the table and returns the first level's memory to its pool.
func (t *TwoLevel) Close() {
	t.Clear()
	t.scratch.Free()
}
