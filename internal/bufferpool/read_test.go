package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerReadRecentHitsGivenFrame(t *testing.T) {
	bm := newTestManager(t, 4)
	sess := NewSession("s")
	rel := RelationKey{RelationID: 10}

	pins, err := bm.ExtendBy(sess, rel, ForkMain, 1, ExtendCreateForkIfNeeded)
	require.NoError(t, err)
	p := pins[0]
	hint := p.FrameIndex()
	require.NoError(t, bm.Release(sess, p))

	recent, ok := bm.ReadRecent(sess, p.Tag(), hint)
	require.True(t, ok, "ReadRecent must hit when the hinted frame still carries the tag")
	assert.Equal(t, p.Tag(), recent.Tag())
	require.NoError(t, bm.Release(sess, recent))
}

func TestManagerReadRecentMissesOnStaleHint(t *testing.T) {
	bm := newTestManager(t, 4)
	sess := NewSession("s")

	tag := Tag{RelationID: 11, BlockNumber: 0}
	_, ok := bm.ReadRecent(sess, tag, 0)
	assert.False(t, ok, "an empty frame cannot satisfy a recent-buffer hint")
}

func TestManagerReadRecentRejectsOutOfRangeFrame(t *testing.T) {
	bm := newTestManager(t, 4)
	sess := NewSession("s")
	tag := Tag{RelationID: 1, BlockNumber: 0}

	_, ok := bm.ReadRecent(sess, tag, -1)
	assert.False(t, ok)
	_, ok = bm.ReadRecent(sess, tag, 99)
	assert.False(t, ok)
}

func TestManagerPrefetchReportsCachedWhenResident(t *testing.T) {
	bm := newTestManager(t, 4)
	sess := NewSession("s")
	rel := RelationKey{RelationID: 12}

	pins, err := bm.ExtendBy(sess, rel, ForkMain, 1, ExtendCreateForkIfNeeded)
	require.NoError(t, err)
	p := pins[0]
	require.NoError(t, bm.Release(sess, p))

	result := bm.Prefetch(p.Tag())
	assert.Equal(t, PrefetchCached, result.Outcome)
	assert.Equal(t, p.FrameIndex(), result.RecentFrame)
}

func TestManagerPrefetchReportsNothingWhenBackendDeclines(t *testing.T) {
	bm := newTestManager(t, 4)
	tag := Tag{RelationID: 13, BlockNumber: 0}

	result := bm.Prefetch(tag)
	assert.Equal(t, PrefetchNothing, result.Outcome)
}
