package accumulator

import (
	"github.com/spgemm-symbolic/pkg/collections"
	"github.com/spgemm-symbolic/pkg/errors"
)

// Dense keeps one word per possible set index. Probing is a direct index and
// only written slots are reset.
type Dense struct {
	slots *collections.WordSlots
}

// NewDense carves a dense table of setCount slots, tracking up to maxEntries
// written slots, from zero-filled backing memory.
func NewDense(b Backing, setCount, maxEntries int) (*Dense, error) {
	if setCount <= 0 || maxEntries <= 0 {
		return nil, errors.Newf(errors.CodeConfigurationFault,
			"dense table needs positive geometry, got %d slots and %d entries", setCount, maxEntries)
	}
	track := min(setCount, maxEntries)
	if err := checkBacking(b, DenseWords(setCount, maxEntries), 0, "dense"); err != nil {
		return nil, err
	}
	return &Dense{
		slots: collections.NewWordSlots(b.Uint64s(0, setCount), b.Uint64s(setCount, track)),
	}, nil
}

// InsertMergeOr ORs bits into slot key.
func (d *Dense) InsertMergeOr(key int64, bits uint64) error {
	if key < 0 || key >= int64(d.slots.Len()) {
		return errors.Newf(errors.CodeCapacityExceeded,
			"set %d outside dense range [0,%d)", key, d.slots.Len())
	}
	if !d.slots.Or(int(key), bits) {
		return capacityExceeded("dense", key, d.slots.Cap())
	}
	return nil
}

// Count returns the popcount of all written slots.
func (d *Dense) Count() int {
	return d.slots.PopCount()
}

// Len returns the number of written slots.
func (d *Dense) Len() int {
	return d.slots.Used()
}

// ForEach visits written slots in first-write order.
func (d *Dense) ForEach(fn func(key int64, bits uint64)) {
	d.slots.ForEach(func(idx int, word uint64) {
		fn(int64(idx), word)
	})
}

// Clear zeroes the written slots.
func (d *Dense) Clear() {
	d.slots.Reset()
}
