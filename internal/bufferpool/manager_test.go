package bufferpool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory StorageBackend used across this package's
// tests: one byte slab per (relation, fork), grown lazily on ZeroExtend.
type fakeBackend struct {
	mu     sync.Mutex
	pages  map[RelationKey]map[ForkID][][]byte
	pageSz int
}

func newFakeBackend(pageSize int) *fakeBackend {
	return &fakeBackend{pages: make(map[RelationKey]map[ForkID][][]byte), pageSz: pageSize}
}

func (b *fakeBackend) forkSlab(rel RelationKey, fork ForkID) [][]byte {
	forks, ok := b.pages[rel]
	if !ok {
		forks = make(map[ForkID][][]byte)
		b.pages[rel] = forks
	}
	return forks[fork]
}

func (b *fakeBackend) Exists(rel RelationKey, fork ForkID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	forks, ok := b.pages[rel]
	if !ok {
		return false
	}
	_, ok = forks[fork]
	return ok
}

func (b *fakeBackend) NBlocks(rel RelationKey, fork ForkID) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint32(len(b.forkSlab(rel, fork))), nil
}

func (b *fakeBackend) NBlocksCached(rel RelationKey, fork ForkID) (uint32, bool) {
	return 0, false
}

func (b *fakeBackend) Read(rel RelationKey, fork ForkID, block uint32, out []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	slab := b.forkSlab(rel, fork)
	if int(block) >= len(slab) {
		for i := range out {
			out[i] = 0
		}
		return nil
	}
	copy(out, slab[block])
	return nil
}

func (b *fakeBackend) Write(rel RelationKey, fork ForkID, block uint32, data []byte, fsync bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	forks, ok := b.pages[rel]
	if !ok {
		forks = make(map[ForkID][][]byte)
		b.pages[rel] = forks
	}
	slab := forks[fork]
	for int(block) >= len(slab) {
		slab = append(slab, make([]byte, b.pageSz))
	}
	copy(slab[block], data)
	forks[fork] = slab
	return nil
}

func (b *fakeBackend) ZeroExtend(rel RelationKey, fork ForkID, firstBlock uint32, count int) error {
	zero := make([]byte, b.pageSz)
	for i := 0; i < count; i++ {
		if err := b.Write(rel, fork, firstBlock+uint32(i), zero, false); err != nil {
			return err
		}
	}
	return nil
}

func (b *fakeBackend) Prefetch(rel RelationKey, fork ForkID, block uint32) bool { return false }
func (b *fakeBackend) Writeback(rel RelationKey, fork ForkID, block uint32, count int) {}

// fakeWAL is a no-op WAL collaborator: durability is out of scope for
// these unit tests, which only exercise the buffer manager's own state
// machine.
type fakeWAL struct{}

func (fakeWAL) IsNeeded() bool                               { return false }
func (fakeWAL) NeedsFlush(lsn uint64) bool                    { return false }
func (fakeWAL) Flush(lsn uint64) error                        { return nil }
func (fakeWAL) SavePageForHint(pageBytes []byte) (uint64, error) { return 0, nil }

func newTestManager(t *testing.T, bufferCount int) *Manager {
	t.Helper()
	cfg := Config{PageSize: 64, BufferCount: bufferCount, PartitionCount: 4}
	return NewManager(cfg, newFakeBackend(64), fakeWAL{})
}

func TestManagerReadMissThenHit(t *testing.T) {
	bm := newTestManager(t, 4)
	sess := NewSession("s")
	rel := RelationKey{RelationID: 1}

	require.NoError(t, bm.smgr.(*fakeBackend).ZeroExtend(rel, ForkMain, 0, 1))
	tag := Tag{RelationID: 1, BlockNumber: 0}

	p1, err := bm.Read(sess, tag, ReadNormal, nil)
	require.NoError(t, err)
	assert.Equal(t, tag, p1.Tag())

	p2, err := bm.Read(sess, tag, ReadNormal, nil)
	require.NoError(t, err)
	assert.Equal(t, p1.f, p2.f, "second read of the same tag must hit the same frame")

	require.NoError(t, bm.Release(sess, p2))
	require.NoError(t, bm.Release(sess, p1))
}

func TestManagerExtendByZerosNewBlocks(t *testing.T) {
	bm := newTestManager(t, 4)
	sess := NewSession("s")
	rel := RelationKey{RelationID: 2}

	pins, err := bm.ExtendBy(sess, rel, ForkMain, 3, ExtendCreateForkIfNeeded)
	require.NoError(t, err)
	require.Len(t, pins, 3, "every newly-extended block must come back pinned via out_frames")
	for i, p := range pins {
		assert.Equal(t, uint32(i), p.Tag().BlockNumber)
		for _, b := range p.Bytes() {
			assert.Zero(t, b)
		}
		require.NoError(t, bm.Release(sess, p))
	}

	n, err := bm.smgr.NBlocks(rel, ForkMain)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), n)
}

// TestManagerExtendToReturnsPinOnTargetBlock guards against returning the
// pin on the first newly-extended block instead of the requested target
// when extend_to spans more than one new block.
func TestManagerExtendToReturnsPinOnTargetBlock(t *testing.T) {
	bm := newTestManager(t, 8)
	sess := NewSession("s")
	rel := RelationKey{RelationID: 6}

	seed, err := bm.ExtendBy(sess, rel, ForkMain, 5, ExtendCreateForkIfNeeded)
	require.NoError(t, err)
	for _, p := range seed {
		require.NoError(t, bm.Release(sess, p))
	}

	p, err := bm.ExtendTo(sess, rel, ForkMain, 7, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), p.Tag().BlockNumber, "extend_to must return a pin on target_block, not first_block")
	require.NoError(t, bm.Release(sess, p))

	n, err := bm.smgr.NBlocks(rel, ForkMain)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), n)
}

func TestManagerChecksumRoundTrip(t *testing.T) {
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	stampChecksum(data)
	assert.NoError(t, verifyChecksum(Tag{}, data))

	data[len(data)-1] ^= 0xFF
	assert.Error(t, verifyChecksum(Tag{}, data))
}

func TestManagerCleanupLockWaitsThenSucceedsOnceRefCountDrops(t *testing.T) {
	bm := newTestManager(t, 4)
	sess1 := NewSession("a")
	sess2 := NewSession("b")
	rel := RelationKey{RelationID: 3}

	require.NoError(t, bm.smgr.(*fakeBackend).ZeroExtend(rel, ForkMain, 0, 1))
	tag := Tag{RelationID: 3, BlockNumber: 0}

	p1, err := bm.Read(sess1, tag, ReadNormal, nil)
	require.NoError(t, err)
	p2, err := bm.Read(sess2, tag, ReadNormal, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		require.NoError(t, bm.LockForCleanup(p1))
		close(done)
	}()

	for !p1.f.state.load().has(bitPinCountWaiter) {
	}

	// The cleanup lock only resolves once the other pin goes away.
	select {
	case <-done:
		t.Fatal("cleanup lock resolved before the competing pin was released")
	default:
	}

	require.NoError(t, bm.Release(sess2, p2))
	<-done
	assert.Equal(t, uint32(1), p1.f.state.load().refCount())
	bm.unlockCleanup(p1)
	require.NoError(t, bm.Release(sess1, p1))
}

// TestClaimPinCountWaiterBitRejectsConcurrentClaim exercises the CAS guard
// LockForCleanup relies on in isolation: only one caller can ever hold the
// PIN_COUNT_WAITER bit on a frame at a time (§4.11's single-waiter design).
func TestClaimPinCountWaiterBitRejectsConcurrentClaim(t *testing.T) {
	fp := newFramePool(1, 64)
	f := fp.at(0)

	claimed1 := false
	f.state.casLoop(func(cur bufState) bufState {
		if cur.has(bitPinCountWaiter) {
			return cur
		}
		claimed1 = true
		return cur | bitPinCountWaiter
	})
	require.True(t, claimed1)

	claimed2 := false
	f.state.casLoop(func(cur bufState) bufState {
		if cur.has(bitPinCountWaiter) {
			return cur
		}
		claimed2 = true
		return cur | bitPinCountWaiter
	})
	assert.False(t, claimed2, "a second claim attempt must observe the bit already set")
}

func TestManagerLockUnlockRoundTripsBothModes(t *testing.T) {
	bm := newTestManager(t, 4)
	sess := NewSession("s")
	rel := RelationKey{RelationID: 5}

	pins, err := bm.ExtendBy(sess, rel, ForkMain, 1, ExtendCreateForkIfNeeded)
	require.NoError(t, err)
	p := pins[0]

	bm.Lock(p, LockModeExclusive)
	bm.Lock(p, LockModeUnlock)

	bm.Lock(p, LockModeShare)
	bm.Lock(p, LockModeUnlock)

	// A fresh exclusive lock must not block forever behind a stale hold.
	locked := make(chan struct{})
	go func() {
		bm.Lock(p, LockModeExclusive)
		close(locked)
	}()
	select {
	case <-locked:
	case <-time.After(2 * time.Second):
		t.Fatal("exclusive lock never acquired; UNLOCK failed to release a prior hold")
	}
	bm.Lock(p, LockModeUnlock)

	require.NoError(t, bm.Release(sess, p))
}

func TestManagerCheckpointFlushesDirtyFrames(t *testing.T) {
	bm := newTestManager(t, 4)
	sess := NewSession("s")
	rel := RelationKey{RelationID: 4}

	pins, err := bm.ExtendBy(sess, rel, ForkMain, 1, ExtendCreateForkIfNeeded)
	require.NoError(t, err)
	p := pins[0]
	copy(p.Bytes(), []byte("hello"))
	bm.MarkDirty(p)
	require.NoError(t, bm.Release(sess, p))

	flushed, err := bm.Checkpoint(sess, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, flushed)
	assert.False(t, bm.frames.at(p.f.index).state.load().has(bitDirty))
}
