package accumulator

import (
	"github.com/spgemm-symbolic/internal/arena"
	"github.com/spgemm-symbolic/pkg/collections"
)

// OpenAddress is a flat linear-probing table: keys[capacity] with -1 marking
// an empty slot and values[capacity] alongside. With tracking enabled, every
// slot that receives a key is appended to a dirty list so Clear and iteration
// only visit occupied slots; without it both scan the whole capacity.
type OpenAddress struct {
	scramble Scramble
	mask     int64
	keys     []int64
	values   []uint64
	dirty    []int64
	used     int
	fill     uint64
	kind     string
}

// NewCuckoo builds an untracked table of the given power-of-two capacity.
func NewCuckoo(b Backing, capacity int, s Scramble) (*OpenAddress, error) {
	if err := checkCapacity(capacity, capacity, "cuckoo"); err != nil {
		return nil, err
	}
	if err := checkBacking(b, CuckooWords(capacity), arena.Empty, "cuckoo"); err != nil {
		return nil, err
	}
	return &OpenAddress{
		scramble: s,
		mask:     int64(capacity - 1),
		keys:     b.Int64s(0, capacity),
		values:   b.Uint64s(capacity, capacity),
		fill:     uint64(b.Fill()),
		kind:     "cuckoo",
	}, nil
}

// NewTrackedCuckoo builds a table that records occupied slots, holding at most
// maxEntries distinct keys.
func NewTrackedCuckoo(b Backing, capacity, maxEntries int, s Scramble) (*OpenAddress, error) {
	if err := checkCapacity(capacity, maxEntries, "tracked cuckoo"); err != nil {
		return nil, err
	}
	if err := checkBacking(b, TrackedCuckooWords(capacity, maxEntries), arena.Empty, "tracked cuckoo"); err != nil {
		return nil, err
	}
	return &OpenAddress{
		scramble: s,
		mask:     int64(capacity - 1),
		keys:     b.Int64s(0, capacity),
		values:   b.Uint64s(capacity, capacity),
		dirty:    b.Int64s(2*capacity, maxEntries),
		fill:     uint64(b.Fill()),
		kind:     "tracked cuckoo",
	}, nil
}

// Capacity returns the number of slots.
func (t *OpenAddress) Capacity() int {
	return len(t.keys)
}

// Tracked reports whether the table keeps a dirty list.
func (t *OpenAddress) Tracked() bool {
	return t.dirty != nil
}

// InsertMergeOr probes from the scrambled slot until it finds key or an empty
// slot. It gives up after visiting every slot once.
func (t *OpenAddress) InsertMergeOr(key int64, v uint64) error {
	h := t.scramble.Hash(key, t.mask)
	for probe := 0; probe < len(t.keys); probe++ {
		switch t.keys[h] {
		case key:
			t.values[h] |= v
			return nil
		case arena.Empty:
			if t.dirty != nil {
				if t.used == len(t.dirty) {
					return capacityExceeded(t.kind, key, len(t.dirty))
				}
				t.dirty[t.used] = h
			}
			t.keys[h] = key
			t.values[h] = v
			t.used++
			return nil
		}
		h = (h + 1) & t.mask
	}
	return capacityExceeded(t.kind, key, len(t.keys))
}

// Count returns the popcount of all merged values.
func (t *OpenAddress) Count() int {
	n := 0
	t.ForEach(func(_ int64, v uint64) {
		n += collections.PopCount(v)
	})
	return n
}

// Len returns the number of occupied slots.
func (t *OpenAddress) Len() int {
	return t.used
}

// ForEach visits occupied slots.
func (t *OpenAddress) ForEach(fn func(key int64, bits uint64)) {
	if t.dirty != nil {
		for i := 0; i < t.used; i++ {
			h := t.dirty[i]
			fn(t.keys[h], t.values[h])
		}
		return
	}
	for h, k := range t.keys {
		if k != arena.Empty {
			fn(k, t.values[h])
		}
	}
}

// Clear empties the table. Tracked tables reset only their dirty slots.
func (t *OpenAddress) Clear() {
	if t.dirty != nil {
		for i := 0; i < t.used; i++ {
			h := t.dirty[i]
			t.keys[h] = arena.Empty
			t.values[h] = t.fill
			t.dirty[i] = arena.Empty
		}
		t.used = 0
		return
	}
	for h := range t.keys {
		if t.keys[h] != arena.Empty {
			t.keys[h] = arena.Empty
			t.values[h] = t.fill
		}
	}
	t.used = 0
}
