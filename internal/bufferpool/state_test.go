package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufStateUsageAndRefCountPacking(t *testing.T) {
	var s bufState
	s = s.withUsageCount(3)
	s = s.withRefCount(12345)

	assert.Equal(t, uint8(3), s.usageCount())
	assert.Equal(t, uint32(12345), s.refCount())
	assert.False(t, s.has(bitDirty))

	s |= bitDirty
	assert.True(t, s.has(bitDirty))
	// Mutating one field must not disturb the others.
	assert.Equal(t, uint8(3), s.usageCount())
	assert.Equal(t, uint32(12345), s.refCount())
}

func TestWithUsageCountClampsToClockMax(t *testing.T) {
	var s bufState
	s = s.withUsageCount(200)
	assert.Equal(t, uint8(clockMaxUsage), s.usageCount())
}

func TestAtomicStateLockUnlockRoundTrip(t *testing.T) {
	var a atomicState
	cur := a.lock()
	assert.True(t, cur.has(bitSpinLock))
	a.unlock(cur.withRefCount(7) &^ bitSpinLock)

	got := a.load()
	require.False(t, got.has(bitSpinLock))
	assert.Equal(t, uint32(7), got.refCount())
}

func TestCasLoopAppliesFunctionAtomically(t *testing.T) {
	var a atomicState
	for i := 0; i < 100; i++ {
		a.casLoop(func(cur bufState) bufState {
			return cur.withRefCount(cur.refCount() + 1)
		})
	}
	assert.Equal(t, uint32(100), a.load().refCount())
}
