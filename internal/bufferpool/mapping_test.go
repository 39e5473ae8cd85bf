package bufferpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappingTableInsertLookupDelete(t *testing.T) {
	mt := newMappingTable(8)
	tag := Tag{RelationID: 1, BlockNumber: 5}

	_, ok := mt.lookup(tag)
	assert.False(t, ok)

	existing, had := mt.insert(tag, 42)
	assert.False(t, had)
	assert.Zero(t, existing)

	idx, ok := mt.lookup(tag)
	require.True(t, ok)
	assert.Equal(t, int32(42), idx)

	mt.delete(tag)
	_, ok = mt.lookup(tag)
	assert.False(t, ok)
}

func TestMappingTableInsertIsIdempotentOnCollision(t *testing.T) {
	mt := newMappingTable(8)
	tag := Tag{RelationID: 2, BlockNumber: 9}

	existing, had := mt.insert(tag, 1)
	assert.False(t, had)
	assert.Zero(t, existing)

	existing, had = mt.insert(tag, 2)
	assert.True(t, had)
	assert.Equal(t, int32(1), existing)

	idx, ok := mt.lookup(tag)
	require.True(t, ok)
	assert.Equal(t, int32(1), idx, "second insert must not clobber the winner")
}

func TestMappingTableDeleteIfMatchesGuardsStaleDelete(t *testing.T) {
	mt := newMappingTable(8)
	tag := Tag{RelationID: 3, BlockNumber: 1}

	mt.insert(tag, 10)
	mt.delete(tag)
	mt.insert(tag, 20) // a fresh insert under a new frame

	mt.deleteIfMatches(tag, 10) // stale index, must be a no-op
	idx, ok := mt.lookup(tag)
	require.True(t, ok)
	assert.Equal(t, int32(20), idx)

	mt.deleteIfMatches(tag, 20)
	_, ok = mt.lookup(tag)
	assert.False(t, ok)
}

func TestMappingTableConcurrentInsertsOneWinner(t *testing.T) {
	mt := newMappingTable(16)
	tag := Tag{RelationID: 7, BlockNumber: 1}

	const n = 64
	results := make([]int32, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			existing, had := mt.insert(tag, int32(i))
			if had {
				results[i] = existing
			} else {
				results[i] = int32(i)
			}
		}()
	}
	wg.Wait()

	winner, _ := mt.lookup(tag)
	for _, r := range results {
		assert.Equal(t, winner, r, "every goroutine must agree on the same winning frame index")
	}
}
