package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockSweepPicksUnpinnedFrame(t *testing.T) {
	fp := newFramePool(4, 64)
	sweep := newClockSweep(fp)

	// Pin frames 0-2, leave frame 3 free (refcount 0, usage 0).
	for i := int32(0); i < 3; i++ {
		f := fp.at(i)
		f.state.casLoop(func(cur bufState) bufState { return cur.withRefCount(1) })
	}

	victim, err := sweep.getVictim()
	require.NoError(t, err)
	assert.Equal(t, int32(3), victim.index)
	assert.True(t, victim.state.load().has(bitSpinLock), "victim must be returned with its header spinlock still held")
	victim.state.unlock(victim.state.load())
}

func TestClockSweepGivesSecondChanceBeforeEviction(t *testing.T) {
	fp := newFramePool(2, 64)
	sweep := newClockSweep(fp)

	fp.at(0).state.casLoop(func(cur bufState) bufState { return cur.withUsageCount(1) })
	// frame 1 stays at usage 0, refcount 0: the true victim.

	victim, err := sweep.getVictim()
	require.NoError(t, err)
	assert.Equal(t, int32(1), victim.index)
	victim.state.unlock(victim.state.load())

	// frame 0's usage count should have been decremented by the second
	// chance, not evicted.
	assert.Equal(t, uint8(0), fp.at(0).state.load().usageCount())
}

func TestClockSweepReturnsErrNoUnpinnedBuffersWhenAllPinned(t *testing.T) {
	fp := newFramePool(3, 64)
	sweep := newClockSweep(fp)
	for i := int32(0); i < 3; i++ {
		fp.at(i).state.casLoop(func(cur bufState) bufState { return cur.withRefCount(1) })
	}

	_, err := sweep.getVictim()
	assert.ErrorIs(t, err, ErrNoUnpinnedBuffers)
}
