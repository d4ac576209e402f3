// Package accumulator implements the per-row set-merge tables of the symbolic
// product. A table maps a set index (column / 64) to a 64-bit column mask and
// merges repeated keys with bitwise OR. All variants are carved out of one
// Backing region, normally a chunk claimed from an arena, and must leave that
// region exactly as they found it after Clear.
package accumulator

import (
	"math/bits"
	"unsafe"

	"github.com/spgemm-symbolic/internal/arena"
	"github.com/spgemm-symbolic/pkg/collections"
	"github.com/spgemm-symbolic/pkg/errors"
)

// Accumulator merges (key, bits) pairs for one row at a time.
type Accumulator interface {
	// InsertMergeOr adds key or ORs bits into its existing value.
	InsertMergeOr(key int64, bits uint64) error
	// Count returns the total popcount over all merged values.
	Count() int
	// Len returns the number of distinct keys.
	Len() int
	// ForEach visits every key with its merged value.
	ForEach(fn func(key int64, bits uint64))
	// Clear restores the backing memory to its fill value.
	Clear()
}

// Concurrent is implemented by tables that several lanes may insert into at once.
type Concurrent interface {
	Accumulator
	AtomicInsertMergeOr(key int64, bits uint64) error
}

// Backing is the word region a table lives in.
type Backing interface {
	Len() int
	Fill() int64
	Uint64s(offset, n int) []uint64
	Int64s(offset, n int) []int64
}

var _ Backing = (*arena.Chunk)(nil)

// Scratch is private backing memory taken from a slice pool.
type Scratch struct {
	words *[]uint64
	fill  int64
}

// NewScratch returns n words set to fill.
func NewScratch(n int, fill int64) *Scratch {
	return &Scratch{words: collections.Uint64SlicePool.GetFilled(n, uint64(fill)), fill: fill}
}

// Len returns the region length in words.
func (s *Scratch) Len() int { return len(*s.words) }

// Fill returns the value untouched words hold.
func (s *Scratch) Fill() int64 { return s.fill }

// Uint64s returns words [offset, offset+n).
func (s *Scratch) Uint64s(offset, n int) []uint64 {
	return (*s.words)[offset : offset+n : offset+n]
}

// Int64s returns words [offset, offset+n) as signed words.
func (s *Scratch) Int64s(offset, n int) []int64 {
	return asInt64(s.Uint64s(offset, n))
}

// Free hands the words back to the pool.
func (s *Scratch) Free() {
	if s.words != nil {
		collections.PutUint64Slice(s.words)
		s.words = nil
	}
}

func asInt64(w []uint64) []int64 {
	if len(w) == 0 {
		return []int64{}
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(&w[0])), len(w))
}

// ============================================================================
// Hash scrambles
// ============================================================================

// HashScalar is the multiplier of the multiplicative scramble.
const HashScalar = 107

// Scramble maps a key onto a bucket of a power-of-two table.
type Scramble int

const (
	// Multiplicative hashes key*HashScalar.
	Multiplicative Scramble = iota
	// Avalanche runs a xorshift-multiply mix over the low 32 bits of the key.
	Avalanche
)

// String returns the scramble name.
func (s Scramble) String() string {
	switch s {
	case Multiplicative:
		return "multiplicative"
	case Avalanche:
		return "avalanche"
	default:
		return "unknown"
	}
}

// Hash returns the bucket of key for a table with the given mask (capacity-1).
func (s Scramble) Hash(key, mask int64) int64 {
	switch s {
	case Avalanche:
		h := uint32(key)
		h = ((h >> 16) ^ h) * 0x45d9f3b
		h = ((h >> 16) ^ h) * 0x45d9f3b
		h = (h >> 16) ^ h
		return int64(h) & mask
	default:
		return (key * HashScalar) & mask
	}
}

// ============================================================================
// Layout
// ============================================================================

// NextPow2 returns the smallest power of two >= n (1 for n <= 1).
func NextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// PrevPow2 returns the largest power of two <= n (0 for n < 1).
func PrevPow2(n int) int {
	if n < 1 {
		return 0
	}
	return 1 << (bits.Len(uint(n)) - 1)
}

// DenseWords is the backing size of a dense table over setCount slots.
func DenseWords(setCount, maxEntries int) int {
	return setCount + min(setCount, maxEntries)
}

// CuckooWords is the backing size of an untracked open-addressing table.
func CuckooWords(capacity int) int {
	return 2 * capacity
}

// TrackedCuckooWords is the backing size of a tracked open-addressing table.
func TrackedCuckooWords(capacity, maxEntries int) int {
	return 2*capacity + maxEntries
}

// ChainedWords is the backing size of a chained table.
func ChainedWords(capacity, maxEntries int) int {
	return 2*capacity + 3*maxEntries
}

func checkBacking(b Backing, need int, fill int64, kind string) error {
	if b == nil {
		return errors.Newf(errors.CodeConfigurationFault, "%s table has no backing memory", kind)
	}
	if b.Len() < need {
		return errors.Newf(errors.CodeConfigurationFault,
			"%s table needs %d words, backing has %d", kind, need, b.Len())
	}
	if b.Fill() != fill {
		return errors.Newf(errors.CodeConfigurationFault,
			"%s table expects backing filled with %d, got %d", kind, fill, b.Fill())
	}
	return nil
}

func checkCapacity(capacity, maxEntries int, kind string) error {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return errors.Newf(errors.CodeConfigurationFault,
			"%s table capacity %d is not a power of two", kind, capacity)
	}
	if maxEntries <= 0 {
		return errors.Newf(errors.CodeConfigurationFault,
			"%s table needs room for at least one entry, got %d", kind, maxEntries)
	}
	return nil
}

func capacityExceeded(kind string, key int64, limit int) error {
	return errors.Newf(errors.CodeCapacityExceeded,
		"%s table full inserting set %d: limit %d entries", kind, key, limit)
}
