package bufferpool

import (
	"fmt"
	"sync"
)

// ExtendFlags mirror §6's bit flags for ExtendBy/ExtendTo.
type ExtendFlags uint8

const (
	ExtendSkipExtensionLock ExtendFlags = 1 << iota
	ExtendCreateForkIfNeeded
	ExtendLockFirst
	ExtendLockTarget
	ExtendClearSizeCache
	ExtendPerformingRecovery
)

func (f ExtendFlags) has(bit ExtendFlags) bool { return f&bit != 0 }

// lockExtension implements §4.9 step 2's "relation's extension lock,
// exclusively, unless the caller opts out": one mutex per relation,
// created lazily, serializing ExtendBy's size-query-then-install
// section against any other backend extending the same relation.
func (bm *Manager) lockExtension(rel RelationKey) *sync.Mutex {
	bm.extLocksMu.Lock()
	lk, ok := bm.extLocks[rel]
	if !ok {
		lk = &sync.Mutex{}
		bm.extLocks[rel] = lk
	}
	bm.extLocksMu.Unlock()
	lk.Lock()
	return lk
}

// ExtendBy implements C8 §4.9 "extend_by(relation, fork, n, flags) ->
// first_block": allocate n new blocks at the current end of the
// relation and return a pin on every one of them (the spec's
// out_frames), zero-filled, in block order. The storage backend is
// asked to reserve the space (ZeroExtend) before any frame is
// installed, so a crash mid-extend never leaves the mapping table
// pointing at a block the file doesn't actually have. Callers must
// release every returned pin themselves; ExtendTo releases all but the
// target block on the caller's behalf.
func (bm *Manager) ExtendBy(sess *Session, rel RelationKey, fork ForkID, n int, flags ExtendFlags) ([]Pinned, error) {
	if n <= 0 {
		return nil, fmt.Errorf("bufferpool: extend_by requires n > 0, got %d", n)
	}

	if !flags.has(ExtendSkipExtensionLock) {
		extLock := bm.lockExtension(rel)
		defer extLock.Unlock()
	}

	nblocks, err := bm.currentBlockCount(rel, fork, flags)
	if err != nil {
		return nil, err
	}
	first := nblocks

	const maxBlockNumber = 0xFFFFFFFE
	if uint64(first)+uint64(n) > maxBlockNumber {
		return nil, ErrExtendBeyondLimit
	}

	if err := bm.smgr.ZeroExtend(rel, fork, first, n); err != nil {
		return nil, fmt.Errorf("bufferpool: extend_by zero-extend: %w", err)
	}

	firstTag := Tag{TablespaceID: rel.TablespaceID, DatabaseID: rel.DatabaseID, RelationID: rel.RelationID, ForkID: fork, BlockNumber: first}
	pins := make([]Pinned, 0, n)
	for i := 0; i < n; i++ {
		tag := firstTag
		tag.BlockNumber += uint32(i)
		p, err := bm.allocateGhostOrExisting(sess, tag, flags)
		if err != nil {
			for _, prev := range pins {
				bm.Release(sess, prev)
			}
			return nil, err
		}
		pins = append(pins, p)
	}

	if flags.has(ExtendLockFirst) {
		bm.Lock(pins[0], LockModeExclusive)
	}
	if flags.has(ExtendLockTarget) {
		bm.Lock(pins[len(pins)-1], LockModeExclusive)
	}
	return pins, nil
}

// ExtendTo implements §4.9 "extend_to(relation, fork, target_block,
// flags) -> pinned_frame": extend only as far as needed to make
// target_block valid (a no-op read if the relation is already that
// long), keeping a pin on target_block specifically and releasing
// every other newly-extended block, matching ExtendBufferedRelTo's
// "only the last requested block keeps its pin" behavior.
func (bm *Manager) ExtendTo(sess *Session, rel RelationKey, fork ForkID, target uint32, flags ExtendFlags) (Pinned, error) {
	nblocks, err := bm.currentBlockCount(rel, fork, flags)
	if err != nil {
		return Pinned{}, err
	}
	if target < nblocks {
		tag := Tag{TablespaceID: rel.TablespaceID, DatabaseID: rel.DatabaseID, RelationID: rel.RelationID, ForkID: fork, BlockNumber: target}
		return bm.Read(sess, tag, ReadNormal, nil)
	}

	n := int(target-nblocks) + 1
	pins, err := bm.ExtendBy(sess, rel, fork, n, flags)
	if err != nil {
		return Pinned{}, err
	}

	for _, p := range pins[:len(pins)-1] {
		bm.Release(sess, p)
	}
	return pins[len(pins)-1], nil
}

func (bm *Manager) currentBlockCount(rel RelationKey, fork ForkID, flags ExtendFlags) (uint32, error) {
	if !flags.has(ExtendClearSizeCache) {
		if n, ok := bm.smgr.NBlocksCached(rel, fork); ok {
			return n, nil
		}
	}
	if flags.has(ExtendCreateForkIfNeeded) && !bm.smgr.Exists(rel, fork) {
		return 0, nil
	}
	return bm.smgr.NBlocks(rel, fork)
}

// allocateGhostOrExisting installs tag into the mapping table as a fresh
// zero-filled frame. If a frame already carries tag — the "ghost buffer"
// case from §4.9, left behind by a previous extend that crashed or raced
// — its content is checked: an all-zero ghost is reused silently, a
// non-zero one is reported via ErrGhostBufferCorrupt (§9 open question,
// preserved as a hard error).
func (bm *Manager) allocateGhostOrExisting(sess *Session, tag Tag, flags ExtendFlags) (Pinned, error) {
	if idx, ok := bm.mapping.lookup(tag); ok {
		f := bm.frames.at(idx)
		cur := f.state.load()
		if cur.has(bitTagValid) && f.tag == tag {
			valid := bm.pin(sess, f, nil)
			if valid && !flags.has(ExtendPerformingRecovery) {
				if !isZero(f.bytes) {
					bm.unpin(sess, f)
					return Pinned{}, &ErrGhostBufferCorrupt{Tag: tag}
				}
			}
			return Pinned{f: f, tag: tag}, nil
		}
	}

	p, err := bm.Read(sess, tag, ReadZeroOnError, nil)
	if err != nil {
		return Pinned{}, err
	}
	bm.MarkDirty(p)
	return p, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
