// Package collections provides word-packed sets and scratch pools used by the
// accumulators.
package collections

import (
	"math/bits"
	"sync/atomic"
)

// ============================================================================
// Bitset - Memory-efficient boolean set
// ============================================================================

// Bitset is a growable set of non-negative integers, one bit per element.
type Bitset struct {
	bits []uint64
	size int
}

// NewBitset creates a new bitset with the given size.
func NewBitset(size int) *Bitset {
	if size <= 0 {
		size = 64
	}
	numWords := (size + 63) / 64
	return &Bitset{
		bits: make([]uint64, numWords),
		size: size,
	}
}

// Set sets the bit at index i.
func (b *Bitset) Set(i int) {
	if i < 0 {
		return
	}
	wordIdx := i / 64
	if wordIdx >= len(b.bits) {
		b.grow(i + 1)
	}
	b.bits[wordIdx] |= 1 << (i % 64)
	if i >= b.size {
		b.size = i + 1
	}
}

// Clear clears the bit at index i.
func (b *Bitset) Clear(i int) {
	if i < 0 || i/64 >= len(b.bits) {
		return
	}
	b.bits[i/64] &^= 1 << (i % 64)
}

// Test returns true if the bit at index i is set.
func (b *Bitset) Test(i int) bool {
	if i < 0 || i/64 >= len(b.bits) {
		return false
	}
	return b.bits[i/64]&(1<<(i%64)) != 0
}

// ClearAll clears all bits to 0.
func (b *Bitset) ClearAll() {
	for i := range b.bits {
		b.bits[i] = 0
	}
}

// Count returns the number of set bits (population count).
func (b *Bitset) Count() int {
	count := 0
	for _, word := range b.bits {
		count += bits.OnesCount64(word)
	}
	return count
}

// Size returns the size of the bitset.
func (b *Bitset) Size() int {
	return b.size
}

func (b *Bitset) grow(newSize int) {
	numWords := (newSize + 63) / 64
	if numWords <= len(b.bits) {
		return
	}
	// Grow by at least 2x to amortize allocation cost
	newCap := len(b.bits) * 2
	if newCap < numWords {
		newCap = numWords
	}
	newBits := make([]uint64, newCap)
	copy(newBits, b.bits)
	b.bits = newBits
}

// Iterate calls fn for each set bit index in ascending order.
func (b *Bitset) Iterate(fn func(i int) bool) {
	for wordIdx, word := range b.bits {
		if word == 0 {
			continue
		}
		base := wordIdx * 64
		for word != 0 {
			tz := bits.TrailingZeros64(word)
			if !fn(base + tz) {
				return
			}
			word &= word - 1
		}
	}
}

// ToSlice returns a slice of all set bit indices.
func (b *Bitset) ToSlice() []int {
	result := make([]int, 0, b.Count())
	b.Iterate(func(i int) bool {
		result = append(result, i)
		return true
	})
	return result
}

// ============================================================================
// WordSlots - Fixed word array with touched-slot tracking
// ============================================================================

// WordSlots is a fixed array of 64-bit words over caller-provided backing
// memory. Every slot that goes from zero to non-zero is recorded once, so Reset
// only visits the slots that were written.
type WordSlots struct {
	words   []uint64
	touched []uint64
	used    int
}

// NewWordSlots wraps words (all zero) and a touched list with room for every
// slot that can become non-zero.
func NewWordSlots(words, touched []uint64) *WordSlots {
	return &WordSlots{words: words, touched: touched}
}

// Len returns the number of slots.
func (w *WordSlots) Len() int {
	return len(w.words)
}

// Used returns the number of non-zero slots.
func (w *WordSlots) Used() int {
	return w.used
}

// Cap returns how many slots can be tracked.
func (w *WordSlots) Cap() int {
	return len(w.touched)
}

// Or merges v into slot idx. It reports false when a new slot is needed but the
// touched list is full.
func (w *WordSlots) Or(idx int, v uint64) bool {
	if v == 0 {
		return true
	}
	if w.words[idx] == 0 {
		if w.used == len(w.touched) {
			return false
		}
		w.touched[w.used] = uint64(idx)
		w.used++
	}
	w.words[idx] |= v
	return true
}

// ForEach visits the non-zero slots in insertion order.
func (w *WordSlots) ForEach(fn func(idx int, word uint64)) {
	for i := 0; i < w.used; i++ {
		idx := int(w.touched[i])
		fn(idx, w.words[idx])
	}
}

// PopCount returns the total number of set bits.
func (w *WordSlots) PopCount() int {
	n := 0
	for i := 0; i < w.used; i++ {
		n += bits.OnesCount64(w.words[w.touched[i]])
	}
	return n
}

// Reset zeroes the touched slots and their bookkeeping.
func (w *WordSlots) Reset() {
	for i := 0; i < w.used; i++ {
		w.words[w.touched[i]] = 0
		w.touched[i] = 0
	}
	w.used = 0
}

// ============================================================================
// Atomic word helpers
// ============================================================================

// AtomicOr merges v into *addr and returns the previous value.
func AtomicOr(addr *uint64, v uint64) uint64 {
	return atomic.OrUint64(addr, v)
}

// PopCount returns the number of set bits in v.
func PopCount(v uint64) int {
	return bits.OnesCount64(v)
}
