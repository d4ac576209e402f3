package accumulator

import (
	"math/bits"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spgemm-symbolic/internal/arena"
	"github.com/spgemm-symbolic/pkg/errors"
)

func claimChunk(t *testing.T, words int, fill int64) *arena.Chunk {
	t.Helper()
	a, err := arena.New(arena.Config{NumChunks: 1, ChunkSize: words, Fill: fill})
	require.NoError(t, err)
	c, err := a.Claim(0)
	require.NoError(t, err)
	return c
}

func newPool(t *testing.T, chunks, words int) *arena.Arena {
	t.Helper()
	a, err := arena.New(arena.Config{NumChunks: chunks, ChunkSize: words, Fill: arena.Empty, Policy: arena.ManyToOne})
	require.NoError(t, err)
	return a
}

type variant struct {
	name  string
	build func(t *testing.T, capacity, maxEntries, setCount int) (Accumulator, Backing)
}

func variants() []variant {
	return []variant{
		{"dense", func(t *testing.T, _, maxEntries, setCount int) (Accumulator, Backing) {
			c := claimChunk(t, DenseWords(setCount, maxEntries), 0)
			acc, err := NewDense(c, setCount, maxEntries)
			require.NoError(t, err)
			return acc, c
		}},
		{"cuckoo", func(t *testing.T, capacity, _, _ int) (Accumulator, Backing) {
			c := claimChunk(t, CuckooWords(capacity), arena.Empty)
			acc, err := NewCuckoo(c, capacity, Multiplicative)
			require.NoError(t, err)
			return acc, c
		}},
		{"tracked", func(t *testing.T, capacity, maxEntries, _ int) (Accumulator, Backing) {
			c := claimChunk(t, TrackedCuckooWords(capacity, maxEntries), arena.Empty)
			acc, err := NewTrackedCuckoo(c, capacity, maxEntries, Multiplicative)
			require.NoError(t, err)
			return acc, c
		}},
		{"tracked avalanche", func(t *testing.T, capacity, maxEntries, _ int) (Accumulator, Backing) {
			c := claimChunk(t, TrackedCuckooWords(capacity, maxEntries), arena.Empty)
			acc, err := NewTrackedCuckoo(c, capacity, maxEntries, Avalanche)
			require.NoError(t, err)
			return acc, c
		}},
		{"chained", func(t *testing.T, capacity, maxEntries, _ int) (Accumulator, Backing) {
			c := claimChunk(t, ChainedWords(capacity, maxEntries), arena.Empty)
			acc, err := NewChained(c, capacity, maxEntries)
			require.NoError(t, err)
			return acc, c
		}},
		{"two level", func(t *testing.T, capacity, maxEntries, _ int) (Accumulator, Backing) {
			pool := newPool(t, 1, ChainedWords(capacity, maxEntries))
			acc, err := NewTwoLevel(TwoLevelConfig{
				FirstCapacity: 4, FirstEntries: 3,
				SecondCapacity: capacity, SecondEntries: maxEntries,
				Pool: pool,
			})
			require.NoError(t, err)
			t.Cleanup(acc.Close)
			return acc, acc.scratch
		}},
	}
}

func collect(acc Accumulator) map[int64]uint64 {
	out := make(map[int64]uint64)
	acc.ForEach(func(k int64, v uint64) {
		out[k] |= v
	})
	return out
}

func clean(b Backing) bool {
	fill := uint64(b.Fill())
	for _, w := range b.Uint64s(0, b.Len()) {
		if w != fill {
			return false
		}
	}
	return true
}

func TestInsertMergeOr_SharedSetIndex(t *testing.T) {
	for _, v := range variants() {
		t.Run(v.name, func(t *testing.T) {
			acc, _ := v.build(t, 8, 4, 8)

			require.NoError(t, acc.InsertMergeOr(3, 1<<0))
			require.NoError(t, acc.InsertMergeOr(3, 1<<1))

			assert.Equal(t, 1, acc.Len())
			assert.Equal(t, 2, acc.Count())
			assert.Equal(t, map[int64]uint64{3: 0b11}, collect(acc))
		})
	}
}

func TestInsertMergeOr_MatchesReference(t *testing.T) {
	const (
		setCount = 64
		inserts  = 200
	)
	for _, v := range variants() {
		t.Run(v.name, func(t *testing.T) {
			acc, backing := v.build(t, 64, setCount, setCount)
			rng := rand.New(rand.NewSource(11))

			for round := 0; round < 3; round++ {
				want := make(map[int64]uint64)
				for i := 0; i < inserts; i++ {
					key := int64(rng.Intn(setCount))
					word := uint64(1) << uint(rng.Intn(64))
					want[key] |= word
					require.NoError(t, acc.InsertMergeOr(key, word))
				}

				wantCount := 0
				for _, w := range want {
					wantCount += bits.OnesCount64(w)
				}
				assert.Equal(t, len(want), acc.Len())
				assert.Equal(t, wantCount, acc.Count())
				assert.Equal(t, want, collect(acc))

				acc.Clear()
				assert.Equal(t, 0, acc.Len())
				assert.Equal(t, 0, acc.Count())
				assert.True(t, clean(backing), "backing not restored after clear")
			}
		})
	}
}

func TestCapacityExceeded(t *testing.T) {
	t.Run("dense out of range", func(t *testing.T) {
		c := claimChunk(t, DenseWords(4, 4), 0)
		acc, err := NewDense(c, 4, 4)
		require.NoError(t, err)
		assert.True(t, errors.IsCapacityExceeded(acc.InsertMergeOr(4, 1)))
	})

	t.Run("dense tracking full", func(t *testing.T) {
		c := claimChunk(t, DenseWords(8, 2), 0)
		acc, err := NewDense(c, 8, 2)
		require.NoError(t, err)
		require.NoError(t, acc.InsertMergeOr(0, 1))
		require.NoError(t, acc.InsertMergeOr(1, 1))
		assert.True(t, errors.IsCapacityExceeded(acc.InsertMergeOr(2, 1)))
	})

	t.Run("cuckoo probe ceiling", func(t *testing.T) {
		c := claimChunk(t, CuckooWords(4), arena.Empty)
		acc, err := NewCuckoo(c, 4, Multiplicative)
		require.NoError(t, err)
		for k := int64(0); k < 4; k++ {
			require.NoError(t, acc.InsertMergeOr(k, 1))
		}
		require.NoError(t, acc.InsertMergeOr(2, 2))
		assert.True(t, errors.IsCapacityExceeded(acc.InsertMergeOr(9, 1)))
	})

	t.Run("tracked entries", func(t *testing.T) {
		c := claimChunk(t, TrackedCuckooWords(8, 2), arena.Empty)
		acc, err := NewTrackedCuckoo(c, 8, 2, Avalanche)
		require.NoError(t, err)
		require.NoError(t, acc.InsertMergeOr(1, 1))
		require.NoError(t, acc.InsertMergeOr(2, 1))
		assert.True(t, errors.IsCapacityExceeded(acc.InsertMergeOr(3, 1)))
	})

	t.Run("chained entries", func(t *testing.T) {
		c := claimChunk(t, ChainedWords(2, 2), arena.Empty)
		acc, err := NewChained(c, 2, 2)
		require.NoError(t, err)
		require.NoError(t, acc.InsertMergeOr(1, 1))
		require.NoError(t, acc.InsertMergeOr(3, 1))
		require.NoError(t, acc.InsertMergeOr(3, 4))
		assert.True(t, errors.IsCapacityExceeded(acc.InsertMergeOr(5, 1)))
		assert.True(t, errors.IsCapacityExceeded(acc.AtomicInsertMergeOr(5, 1)))
	})
}

func TestConfigurationFaults(t *testing.T) {
	tests := []struct {
		name  string
		build func() error
	}{
		{"capacity not power of two", func() error {
			_, err := NewCuckoo(claimChunk(t, 12, arena.Empty), 6, Multiplicative)
			return err
		}},
		{"backing too small", func() error {
			_, err := NewChained(claimChunk(t, 10, arena.Empty), 4, 4)
			return err
		}},
		{"hash table over zero fill", func() error {
			_, err := NewTrackedCuckoo(claimChunk(t, 20, 0), 8, 4, Multiplicative)
			return err
		}},
		{"dense over -1 fill", func() error {
			_, err := NewDense(claimChunk(t, 8, arena.Empty), 4, 4)
			return err
		}},
		{"two level without arena", func() error {
			_, err := NewTwoLevel(TwoLevelConfig{FirstCapacity: 2, FirstEntries: 2, SecondCapacity: 4, SecondEntries: 4})
			return err
		}},
		{"two level chunk too small", func() error {
			_, err := NewTwoLevel(TwoLevelConfig{
				FirstCapacity: 2, FirstEntries: 2, SecondCapacity: 8, SecondEntries: 8,
				Pool: newPool(t, 1, 8),
			})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build()
			require.Error(t, err)
			assert.True(t, errors.IsConfigurationFault(err))
		})
	}
}

func TestCuckoo_UntrackedClearScansCapacity(t *testing.T) {
	c := claimChunk(t, CuckooWords(16), arena.Empty)
	acc, err := NewCuckoo(c, 16, Multiplicative)
	require.NoError(t, err)
	assert.False(t, acc.Tracked())
	assert.Equal(t, 16, acc.Capacity())

	require.NoError(t, acc.InsertMergeOr(5, 1))
	require.NoError(t, acc.InsertMergeOr(21, 1))
	acc.Clear()
	assert.True(t, c.Clean())
}

func TestScramble_Hash(t *testing.T) {
	const mask = 1023
	assert.Equal(t, []int64{0, 107, 214, 504}, []int64{
		Multiplicative.Hash(0, mask), Multiplicative.Hash(1, mask),
		Multiplicative.Hash(2, mask), Multiplicative.Hash(1000, mask),
	})
	assert.Equal(t, []int64{0, 935, 664, 1003}, []int64{
		Avalanche.Hash(0, mask), Avalanche.Hash(1, mask),
		Avalanche.Hash(2, mask), Avalanche.Hash(1000, mask),
	})
	assert.Equal(t, "avalanche", Avalanche.String())
	assert.Equal(t, "unknown", Scramble(7).String())
}

func TestPow2(t *testing.T) {
	tests := []struct{ n, next, prev int }{
		{0, 1, 0},
		{1, 1, 1},
		{2, 2, 2},
		{3, 4, 2},
		{17, 32, 16},
		{64, 64, 64},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.next, NextPow2(tt.n), "NextPow2(%d)", tt.n)
		assert.Equal(t, tt.prev, PrevPow2(tt.n), "PrevPow2(%d)", tt.n)
	}
}

func TestTwoLevel_Spill(t *testing.T) {
	pool := newPool(t, 1, ChainedWords(16, 16))
	acc, err := NewTwoLevel(TwoLevelConfig{
		FirstCapacity: 2, FirstEntries: 2,
		SecondCapacity: 16, SecondEntries: 16,
		Pool: pool,
	})
	require.NoError(t, err)
	defer acc.Close()

	require.NoError(t, acc.InsertMergeOr(1, 1))
	require.NoError(t, acc.InsertMergeOr(2, 1))
	assert.False(t, acc.Spilled())
	assert.Equal(t, 0, pool.InUse())

	require.NoError(t, acc.InsertMergeOr(3, 1))
	require.NoError(t, acc.InsertMergeOr(3, 2))
	require.NoError(t, acc.InsertMergeOr(1, 4))
	assert.True(t, acc.Spilled())
	assert.Equal(t, 1, pool.InUse())
	assert.Equal(t, 3, acc.Len())
	assert.Equal(t, 5, acc.Count())

	acc.Clear()
	assert.Equal(t, 0, pool.InUse())
	assert.Equal(t, int64(1), acc.Spills())
	assert.Equal(t, 0, acc.Count())
}

func TestAtomicInsert_Concurrent(t *testing.T) {
	const (
		lanes    = 8
		perLane  = 400
		setCount = 96
	)
	build := map[string]func(t *testing.T) Concurrent{
		"chained": func(t *testing.T) Concurrent {
			acc, err := NewChained(claimChunk(t, ChainedWords(128, lanes*perLane), arena.Empty), 128, lanes*perLane)
			require.NoError(t, err)
			return acc
		},
		"two level": func(t *testing.T) Concurrent {
			pool := newPool(t, 1, ChainedWords(128, lanes*perLane))
			acc, err := NewTwoLevel(TwoLevelConfig{
				FirstCapacity: 8, FirstEntries: 12,
				SecondCapacity: 128, SecondEntries: lanes * perLane,
				Pool: pool,
			})
			require.NoError(t, err)
			t.Cleanup(acc.Close)
			return acc
		},
	}

	for name, mk := range build {
		t.Run(name, func(t *testing.T) {
			acc := mk(t)
			want := make(map[int64]uint64)
			inputs := make([][2]uint64, lanes*perLane)
			rng := rand.New(rand.NewSource(5))
			for i := range inputs {
				key := uint64(rng.Intn(setCount))
				word := uint64(1) << uint(rng.Intn(64))
				inputs[i] = [2]uint64{key, word}
				want[int64(key)] |= word
			}

			var wg sync.WaitGroup
			errs := make([]error, lanes)
			for lane := 0; lane < lanes; lane++ {
				wg.Add(1)
				go func(lane int) {
					defer wg.Done()
					for i := lane; i < len(inputs); i += lanes {
						if err := acc.AtomicInsertMergeOr(int64(inputs[i][0]), inputs[i][1]); err != nil {
							errs[lane] = err
							return
						}
					}
				}(lane)
			}
			wg.Wait()
			for _, err := range errs {
				require.NoError(t, err)
			}

			wantCount := 0
			for _, w := range want {
				wantCount += bits.OnesCount64(w)
			}
			assert.Equal(t, want, collect(acc))
			assert.Equal(t, wantCount, acc.Count())
			assert.Equal(t, len(want), acc.Len())
		})
	}
}
