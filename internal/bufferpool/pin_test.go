package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPinCacheFixedSlotRoundTrip(t *testing.T) {
	c := newLocalPinCache()
	c.insert(5)
	n, ok := c.incr(5)
	require.True(t, ok)
	assert.Equal(t, int32(2), n)

	n, ok = c.decr(5)
	require.True(t, ok)
	assert.Equal(t, int32(1), n)

	n, ok = c.decr(5)
	require.True(t, ok)
	assert.Equal(t, int32(0), n)

	_, tracked := c.find(5)
	assert.False(t, tracked, "entry must be removed once its count reaches zero")
}

func TestLocalPinCacheOverflowsPastFixedSize(t *testing.T) {
	c := newLocalPinCache()
	for i := int32(0); i < localPinCacheSize+3; i++ {
		c.insert(i)
	}
	assert.Equal(t, localPinCacheSize+3, c.totalPins())

	// The earliest-inserted entries should have rotated into overflow.
	_, overflowed := c.overflow[0]
	assert.True(t, overflowed)
}

func TestLocalPinCacheDecrUntrackedFrameReportsNotTracked(t *testing.T) {
	c := newLocalPinCache()
	_, ok := c.decr(99)
	assert.False(t, ok)
}

func TestManagerPinUnpinRoundTripUsesLocalCache(t *testing.T) {
	bm := newTestManager(t, 4)
	sess := NewSession("test")

	f := bm.frames.at(0)
	f.state.casLoop(func(cur bufState) bufState { return cur | bitTagValid | bitValid })

	valid := bm.pin(sess, f, nil)
	assert.True(t, valid)
	assert.Equal(t, uint32(1), f.state.load().refCount())

	// Repeated pin from the same session must hit the local cache and
	// not touch the shared refcount again.
	bm.pin(sess, f, nil)
	assert.Equal(t, uint32(1), f.state.load().refCount())

	require.NoError(t, bm.unpin(sess, f))
	assert.Equal(t, uint32(1), f.state.load().refCount())

	require.NoError(t, bm.unpin(sess, f))
	assert.Equal(t, uint32(0), f.state.load().refCount())

	require.NoError(t, sess.Close())
}
