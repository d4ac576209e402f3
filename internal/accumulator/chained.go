package accumulator

import (
	"sync/atomic"

	"github.com/spgemm-symbolic/internal/arena"
	"github.com/spgemm-symbolic/pkg/collections"
)

// Chained is a bucketed table: begins[capacity] holds the first entry of each
// bucket, and nexts/keys/values[maxEntries] form singly linked lists with new
// keys linked at the head. Buckets that become non-empty are recorded so Clear
// only touches them.
//
// Entries are handed out in order from a shared counter, which lets several
// lanes insert at once through AtomicInsertMergeOr. A lane that loses the race
// to link a key another lane already linked leaves its reserved entry as an
// orphan with key -1 and value 0; orphans are skipped by ForEach and add
// nothing to Count.
type Chained struct {
	mask   int64
	begins []int64
	nexts  []int64
	keys   []int64
	values []uint64
	dirty  []int64
	fill   uint64

	used   atomic.Int64
	nDirty atomic.Int64
}

// NewChained carves a chained table from -1-filled backing memory.
func NewChained(b Backing, capacity, maxEntries int) (*Chained, error) {
	if err := checkCapacity(capacity, maxEntries, "chained"); err != nil {
		return nil, err
	}
	if err := checkBacking(b, ChainedWords(capacity, maxEntries), arena.Empty, "chained"); err != nil {
		return nil, err
	}
	off := 0
	take := func(n int) int {
		o := off
		off += n
		return o
	}
	t := &Chained{
		mask: int64(capacity - 1),
		fill: uint64(b.Fill()),
	}
	t.begins = b.Int64s(take(capacity), capacity)
	t.dirty = b.Int64s(take(capacity), capacity)
	t.nexts = b.Int64s(take(maxEntries), maxEntries)
	t.keys = b.Int64s(take(maxEntries), maxEntries)
	t.values = b.Uint64s(take(maxEntries), maxEntries)
	return t, nil
}

// Capacity returns the bucket count.
func (t *Chained) Capacity() int {
	return len(t.begins)
}

// MaxEntries returns how many distinct keys fit.
func (t *Chained) MaxEntries() int {
	return len(t.keys)
}

func (t *Chained) bucket(key int64) int64 {
	return key & t.mask
}

// usedEntries clamps the reservation counter, which lanes may push past the
// limit before noticing the table is full.
func (t *Chained) usedEntries() int {
	return int(min(t.used.Load(), int64(len(t.keys))))
}

// InsertMergeOr inserts from a single lane.
func (t *Chained) InsertMergeOr(key int64, v uint64) error {
	if !t.tryInsert(key, v) {
		return capacityExceeded("chained", key, len(t.keys))
	}
	return nil
}

// tryInsert reports false when key is absent and no entry is left.
func (t *Chained) tryInsert(key int64, v uint64) bool {
	h := t.bucket(key)
	for i := t.begins[h]; i != arena.Empty; i = t.nexts[i] {
		if t.keys[i] == key {
			t.values[i] |= v
			return true
		}
	}
	idx := t.used.Load()
	if idx >= int64(len(t.keys)) {
		return false
	}
	t.used.Store(idx + 1)
	t.keys[idx] = key
	t.values[idx] = v
	t.nexts[idx] = t.begins[h]
	if t.begins[h] == arena.Empty {
		d := t.nDirty.Load()
		t.dirty[d] = h
		t.nDirty.Store(d + 1)
	}
	t.begins[h] = idx
	return true
}

// AtomicInsertMergeOr inserts while other lanes insert into the same table.
func (t *Chained) AtomicInsertMergeOr(key int64, v uint64) error {
	if !t.tryAtomicInsert(key, v) {
		return capacityExceeded("chained", key, len(t.keys))
	}
	return nil
}

func (t *Chained) tryAtomicInsert(key int64, v uint64) bool {
	h := t.bucket(key)
	reserved := arena.Empty
	head := atomic.LoadInt64(&t.begins[h])
	for {
		for i := head; i != arena.Empty; i = atomic.LoadInt64(&t.nexts[i]) {
			if atomic.LoadInt64(&t.keys[i]) == key {
				collections.AtomicOr(&t.values[i], v)
				if reserved != arena.Empty {
					atomic.StoreUint64(&t.values[reserved], 0)
				}
				return true
			}
		}
		if reserved == arena.Empty {
			reserved = t.used.Add(1) - 1
			if reserved >= int64(len(t.keys)) {
				return false
			}
			atomic.StoreUint64(&t.values[reserved], v)
		}
		atomic.StoreInt64(&t.nexts[reserved], head)
		atomic.StoreInt64(&t.keys[reserved], key)
		if atomic.CompareAndSwapInt64(&t.begins[h], head, reserved) {
			if head == arena.Empty {
				t.dirty[t.nDirty.Add(1)-1] = h
			}
			return true
		}
		// Lost the race: hide the entry until it is linked, then rescan.
		atomic.StoreInt64(&t.keys[reserved], arena.Empty)
		head = atomic.LoadInt64(&t.begins[h])
	}
}

// lookup returns the merged value of key.
func (t *Chained) lookup(key int64) (uint64, bool) {
	for i := t.begins[t.bucket(key)]; i != arena.Empty; i = t.nexts[i] {
		if t.keys[i] == key {
			return t.values[i], true
		}
	}
	return 0, false
}

// Count returns the popcount over all entries.
func (t *Chained) Count() int {
	n := 0
	used := t.usedEntries()
	for i := 0; i < used; i++ {
		if t.keys[i] != arena.Empty {
			n += collections.PopCount(t.values[i])
		}
	}
	return n
}

// Len returns the number of linked keys.
func (t *Chained) Len() int {
	n := 0
	used := t.usedEntries()
	for i := 0; i < used; i++ {
		if t.keys[i] != arena.Empty {
			n++
		}
	}
	return n
}

// ForEach visits linked entries in insertion order.
func (t *Chained) ForEach(fn func(key int64, bits uint64)) {
	used := t.usedEntries()
	for i := 0; i < used; i++ {
		if k := t.keys[i]; k != arena.Empty {
			fn(k, t.values[i])
		}
	}
}

// Clear resets dirty buckets and every handed-out entry.
func (t *Chained) Clear() {
	nd := int(t.nDirty.Load())
	for i := 0; i < nd; i++ {
		t.begins[t.dirty[i]] = arena.Empty
		t.dirty[i] = arena.Empty
	}
	used := t.usedEntries()
	for i := 0; i < used; i++ {
		t.nexts[i] = arena.Empty
		t.keys[i] = arena.Empty
		t.values[i] = t.fill
	}
	t.used.Store(0)
	t.nDirty.Store(0)
}
