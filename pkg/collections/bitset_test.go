package collections

import (
	"sync"
	"testing"
)

func TestBitset_Basic(t *testing.T) {
	b := NewBitset(100)

	b.Set(0)
	b.Set(50)
	b.Set(99)

	if !b.Test(0) || !b.Test(50) || !b.Test(99) {
		t.Error("Expected bits 0, 50 and 99 to be set")
	}
	if b.Test(1) {
		t.Error("Expected bit 1 to be clear")
	}
	if b.Count() != 3 {
		t.Errorf("Expected count 3, got %d", b.Count())
	}

	b.Clear(50)
	if b.Test(50) {
		t.Error("Expected bit 50 to be clear after Clear")
	}
	if b.Count() != 2 {
		t.Errorf("Expected count 2 after Clear, got %d", b.Count())
	}

	b.ClearAll()
	if b.Count() != 0 {
		t.Errorf("Expected empty bitset after ClearAll, got %d", b.Count())
	}
}

func TestBitset_Grow(t *testing.T) {
	b := NewBitset(64)

	b.Set(200)
	if !b.Test(200) {
		t.Error("Expected bit 200 to be set after grow")
	}
	if b.Size() < 200 {
		t.Errorf("Expected size >= 200, got %d", b.Size())
	}
}

func TestBitset_Iterate(t *testing.T) {
	b := NewBitset(300)
	want := []int{3, 64, 65, 299}
	for _, i := range want {
		b.Set(i)
	}

	got := b.ToSlice()
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %d at %d, got %d", want[i], i, got[i])
		}
	}

	seen := 0
	b.Iterate(func(int) bool {
		seen++
		return seen < 2
	})
	if seen != 2 {
		t.Errorf("Expected early stop after 2, got %d", seen)
	}
}

func TestWordSlots(t *testing.T) {
	words := make([]uint64, 8)
	touched := make([]uint64, 3)
	w := NewWordSlots(words, touched)

	if !w.Or(2, 0b01) || !w.Or(2, 0b10) || !w.Or(7, 1) {
		t.Fatal("Expected inserts to fit")
	}
	if !w.Or(4, 0) {
		t.Error("Expected zero word to be accepted without a slot")
	}
	if w.Used() != 2 {
		t.Errorf("Expected 2 used slots, got %d", w.Used())
	}
	if w.PopCount() != 3 {
		t.Errorf("Expected popcount 3, got %d", w.PopCount())
	}

	if !w.Or(0, 1) {
		t.Fatal("Expected third slot to fit")
	}
	if w.Or(1, 1) {
		t.Error("Expected fourth slot to be rejected")
	}

	var order []int
	w.ForEach(func(idx int, _ uint64) { order = append(order, idx) })
	if len(order) != 3 || order[0] != 2 || order[1] != 7 || order[2] != 0 {
		t.Errorf("Unexpected visit order %v", order)
	}
	if words[2] != 0b11 {
		t.Errorf("Expected merged word 0b11, got %b", words[2])
	}

	w.Reset()
	for i, v := range words {
		if v != 0 {
			t.Errorf("Expected word %d cleared, got %d", i, v)
		}
	}
	if w.Used() != 0 || w.Len() != 8 || w.Cap() != 3 {
		t.Error("Unexpected bookkeeping after Reset")
	}
}

func TestAtomicOr_Concurrent(t *testing.T) {
	var word uint64
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(bit int) {
			defer wg.Done()
			AtomicOr(&word, 1<<bit)
		}(i)
	}
	wg.Wait()

	if PopCount(word) != 64 {
		t.Errorf("Expected all 64 bits set, got %d", PopCount(word))
	}
}
