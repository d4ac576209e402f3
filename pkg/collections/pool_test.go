package collections

import (
	"testing"
)

func TestSlicePool(t *testing.T) {
	pool := NewSlicePool[int](256)

	s := pool.Get()
	if s == nil {
		t.Fatal("Get returned nil")
	}
	if cap(*s) < 256 {
		t.Errorf("Expected capacity >= 256, got %d", cap(*s))
	}

	*s = append(*s, 1, 2, 3)
	if len(*s) != 3 {
		t.Errorf("Expected length 3, got %d", len(*s))
	}

	pool.Put(s)

	s2 := pool.Get()
	if len(*s2) != 0 {
		t.Errorf("Expected length 0 after Put, got %d", len(*s2))
	}
}

func TestSlicePool_GetFilled(t *testing.T) {
	pool := NewSlicePool[int64](4)

	s := pool.GetFilled(10, -1)
	if len(*s) != 10 {
		t.Fatalf("Expected length 10, got %d", len(*s))
	}
	for i, v := range *s {
		if v != -1 {
			t.Errorf("Expected -1 at %d, got %d", i, v)
		}
	}
	(*s)[3] = 7
	pool.Put(s)

	s2 := pool.GetFilled(5, -1)
	for i, v := range *s2 {
		if v != -1 {
			t.Errorf("Expected refilled -1 at %d, got %d", i, v)
		}
	}
}

func TestUint64SlicePool(t *testing.T) {
	u64 := Uint64SlicePool.GetFilled(4, 9)
	(*u64)[0] = 1
	PutUint64Slice(u64)
	if len(*u64) != 0 {
		t.Errorf("Expected slice cleared by Put, got length %d", len(*u64))
	}
}
