package bufferpool

import (
	"fmt"
	"hash/crc32"
)

// Read implements C7's core path (§4.7 "Page read / allocate"): look up
// tag in the mapping table; on a hit, pin the existing frame and return.
// On a miss, acquire a victim frame (§4.8), read the page from storage
// into it (unless mode requests zeroing instead), validate its checksum,
// install the new tag in the mapping table, and pin it. strategy may be
// nil for the plain clock-sweep path.
func (bm *Manager) Read(sess *Session, tag Tag, mode ReadMode, strategy *AccessStrategy) (Pinned, error) {
	if !tag.IsValid() {
		return Pinned{}, ErrInvalidFrame
	}

	for {
		if idx, ok := bm.mapping.lookup(tag); ok {
			f := bm.frames.at(idx)
			cur := f.state.load()
			if cur.has(bitTagValid) && f.tag == tag {
				valid := bm.pin(sess, f, strategy)
				if !valid {
					// Lost a race: another pinner installed the frame but
					// hasn't finished the read yet. Wait for the in-flight
					// I/O, then re-check state.
					if err := bm.waitForValid(f, tag); err != nil {
						bm.unpin(sess, f)
						return Pinned{}, err
					}
				}
				return Pinned{f: f, tag: tag}, nil
			}
			// Stale mapping entry racing a concurrent reuse; fall through
			// to full acquisition.
		}

		f, err := bm.acquireVictim(sess, tag, strategy)
		if err != nil {
			return Pinned{}, err
		}
		if f == nil {
			// Someone else installed the tag first; retry the lookup.
			continue
		}

		if err := bm.loadOrZero(f, tag, mode); err != nil {
			return Pinned{}, err
		}
		return Pinned{f: f, tag: tag}, nil
	}
}

// waitForValid blocks on the I/O condition variable until the frame's
// VALID bit settles one way or the other, used when Read races another
// backend already mid-fetch for the same tag.
func (bm *Manager) waitForValid(f *frame, tag Tag) error {
	f.ioCond.L.Lock()
	for {
		cur := f.state.load()
		if cur.has(bitValid) || !cur.has(bitIOInProgress) {
			break
		}
		f.ioCond.Wait()
	}
	f.ioCond.L.Unlock()
	if !f.state.load().has(bitValid) {
		return &CorruptionError{Tag: tag, Detail: "concurrent read did not complete"}
	}
	return nil
}

// acquireVictim implements §4.8 "Victim frame acquisition": run the clock
// sweep (through the access strategy's ring when one is supplied) to find
// a REFCOUNT==0 frame, evict its old tag from the mapping table if any,
// then install the new tag. Returns (nil, nil) if a concurrent inserter
// won the race to install tag first, signalling the caller to retry the
// plain lookup path.
func (bm *Manager) acquireVictim(sess *Session, tag Tag, strategy *AccessStrategy) (*frame, error) {
	f, fromFree := bm.popFree()
	if !fromFree {
		var err error
		if ringIdx, ok := strategy.current(); ok {
			cand := bm.frames.at(ringIdx)
			cur := cand.state.lock()
			if cur.refCount() == 0 {
				f = cand
			} else {
				cand.state.unlock(cur)
			}
		}
		if f == nil {
			f, err = bm.sweep.getVictim()
			if err != nil {
				return nil, err
			}
		}
	}

	// f's header spinlock is held (sweep/ring path) or f is fresh from the
	// free list (no lock needed, no concurrent observer yet); either way
	// we now hold exclusive rights to retag it.
	var oldTag Tag
	var held bool
	if !fromFree {
		cur := f.state.load()
		oldTag = f.tag
		held = cur.has(bitTagValid)
		bm.pinLocked(sess, f, cur)
	} else {
		bm.pin(sess, f, strategy)
	}

	if held && oldTag.IsValid() {
		bm.evictOldTag(f, oldTag)
	}

	existing, hadExisting := bm.mapping.insert(tag, f.index)
	if hadExisting && existing != f.index {
		// Lost the race: someone else installed tag in a different frame
		// first. Undo our acquisition and let the caller retry.
		bm.unpin(sess, f)
		f.state.casLoop(func(cur bufState) bufState {
			return cur &^ (bitTagValid | bitValid)
		})
		bm.pushFree(f)
		return nil, nil
	}

	f.tag = tag
	// The read API carries no relation persistence, so every installed
	// page is marked PERMANENT and is eligible for normal checkpoints.
	f.state.casLoop(func(cur bufState) bufState {
		return (cur | bitTagValid | bitPermanent).withUsageCount(0) &^ (bitValid | bitDirty | bitCheckpointNeeded)
	})
	strategy.advance(f.index)
	return f, nil
}

// evictOldTag flushes a dirty victim before its identity is reused
// (§4.8 step 2: "if dirty, write it back first"), then removes its old
// mapping-table entry.
func (bm *Manager) evictOldTag(f *frame, oldTag Tag) {
	if f.state.load().has(bitDirty) {
		if err := bm.flushFrame(f, oldTag); err != nil {
			logf("victim flush failed, evicting anyway", "tag", oldTag, "err", err)
		}
	}
	bm.mapping.deleteIfMatches(oldTag, f.index)
}

// loadOrZero implements the remainder of §4.7: either read the page
// image from storage (the common case) or, for the ZERO_* modes, skip
// the I/O and zero the buffer instead (used by relation-extend and by
// callers recovering from a prior read error).
func (bm *Manager) loadOrZero(f *frame, tag Tag, mode ReadMode) error {
	if mode == ReadZeroAndLock || mode == ReadZeroAndCleanupLock {
		for i := range f.bytes {
			f.bytes[i] = 0
		}
		terminateIO(f, false, bitValid)
		if mode == ReadZeroAndLock {
			f.lockContentExclusive()
		} else {
			if err := bm.lockForCleanupAfterAcquire(f); err != nil {
				return err
			}
		}
		return nil
	}

	if !startIO(f, true) {
		return nil
	}

	rel := tag.Relation()
	err := bm.smgr.Read(rel, tag.ForkID, tag.BlockNumber, f.bytes)
	if err != nil {
		abortIO(f, tag)
		return fmt.Errorf("bufferpool: read %s: %w", tag, err)
	}

	if badErr := verifyChecksum(tag, f.bytes); badErr != nil && !isZero(f.bytes) {
		if mode == ReadZeroOnError || bm.cfg.ZeroDamagedPages {
			for i := range f.bytes {
				f.bytes[i] = 0
			}
			logf("zeroing damaged page", "tag", tag, "err", badErr)
		} else {
			abortIO(f, tag)
			return badErr
		}
	}

	terminateIO(f, false, bitValid)
	return nil
}

// lockForCleanupAfterAcquire is used by loadOrZero's ZERO_AND_CLEANUP_LOCK
// branch: the frame was just acquired by us alone (REFCOUNT==1, our own
// pin), so the cleanup lock is trivially available without waiting.
func (bm *Manager) lockForCleanupAfterAcquire(f *frame) error {
	f.contentLock.Lock()
	if f.state.load().refCount() != 1 {
		f.contentLock.Unlock()
		return fmt.Errorf("bufferpool: unexpected concurrent pin during zero-and-cleanup-lock acquire")
	}
	return nil
}

// checksumSize is the length of the CRC32 kept in a page's first four
// bytes, computed over the remaining bytes, matching the WAL's existing
// hash/crc32 usage for its own record checksums.
const checksumSize = 4

func pageChecksum(data []byte) uint32 {
	if len(data) <= checksumSize {
		return 0
	}
	return crc32.ChecksumIEEE(data[checksumSize:])
}

// stampChecksum writes the checksum of a freshly-written page into its
// first checksumSize bytes (§4.10's "stamp the checksum before handing the
// buffer to the storage manager").
func stampChecksum(data []byte) {
	if len(data) <= checksumSize {
		return
	}
	sum := pageChecksum(data)
	data[0] = byte(sum)
	data[1] = byte(sum >> 8)
	data[2] = byte(sum >> 16)
	data[3] = byte(sum >> 24)
}

func verifyChecksum(tag Tag, data []byte) error {
	if len(data) <= checksumSize {
		return nil
	}
	want := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
	got := pageChecksum(data)
	if want != got {
		return &CorruptionError{Tag: tag, Detail: fmt.Sprintf("checksum mismatch: stored=%08x computed=%08x", want, got)}
	}
	return nil
}

// flush implements §4.10 "flush(frame)": WAL-before-data (force the log up
// to the page's LSN), write the page out via the storage backend, then
// terminate the I/O clearing DIRTY.
func (bm *Manager) flushFrame(f *frame, tag Tag) error {
	if !startIO(f, false) {
		return nil
	}

	if bm.wal != nil && bm.wal.NeedsFlush(f.lastLSN) {
		if err := bm.wal.Flush(f.lastLSN); err != nil {
			abortIO(f, tag)
			return fmt.Errorf("bufferpool: wal flush before write of %s: %w", tag, err)
		}
	}

	stampChecksum(f.bytes)
	rel := tag.Relation()
	if err := bm.smgr.Write(rel, tag.ForkID, tag.BlockNumber, f.bytes, false); err != nil {
		abortIO(f, tag)
		return fmt.Errorf("bufferpool: write %s: %w", tag, err)
	}

	terminateIO(f, true, 0)
	return nil
}

// FlushOne exposes flushFrame for callers (checkpoint, bgwriter) that
// already hold the frame via a Pinned handle.
func (bm *Manager) FlushOne(p Pinned) error {
	return bm.flushFrame(p.f, p.tag)
}

// ReadRecent implements §6's read_recent(key, fork, block, recent_frame_hint)
// -> pinned_frame|miss: a cheap tag-compare-and-pin-if-match against a
// caller-supplied frame index (typically a Pinned.FrameIndex() stashed
// from an earlier Read/Prefetch of the same page), skipping the
// mapping-table lookup entirely when it hits. Grounded on
// ReadRecentBuffer's "compared to ReadBuffer, this avoids a buffer
// mapping lookup when it's successful" — the hint must still be
// rechecked after pinning, since it could have been reused for a
// different tag between the caller observing it and this call.
func (bm *Manager) ReadRecent(sess *Session, tag Tag, recentFrame int32) (Pinned, bool) {
	if recentFrame < 0 || int(recentFrame) >= bm.frames.size() {
		return Pinned{}, false
	}
	f := bm.frames.at(recentFrame)

	cur := f.state.load()
	if !cur.has(bitValid) || f.tag != tag {
		return Pinned{}, false
	}

	bm.pin(sess, f, nil)
	if !f.state.load().has(bitValid) || f.tag != tag {
		bm.unpin(sess, f)
		return Pinned{}, false
	}
	return Pinned{f: f, tag: tag}, true
}

// PrefetchOutcome is the tri-state result of Prefetch (§6
// "prefetch(...) -> {cached_frame|io_started|nothing}").
type PrefetchOutcome int

const (
	// PrefetchNothing means the page wasn't resident and the storage
	// backend declined (or doesn't support) an async readahead request.
	PrefetchNothing PrefetchOutcome = iota
	// PrefetchCached means the page was already resident; RecentFrame
	// names the frame it was in, unpinned, for use as a ReadRecent hint.
	PrefetchCached
	// PrefetchIOStarted means the page wasn't resident but the storage
	// backend accepted an asynchronous readahead request for it.
	PrefetchIOStarted
)

// PrefetchResult is Prefetch's return value.
type PrefetchResult struct {
	Outcome     PrefetchOutcome
	RecentFrame int32
}

// Prefetch implements §4.7's optional prefetch hint: check the mapping
// table first (cheaply, never pinning — "not pinned, so the caller must
// recheck" per PrefetchBuffer), and only if the page isn't resident ask
// the storage backend to start an async read for it.
func (bm *Manager) Prefetch(tag Tag) PrefetchResult {
	if idx, ok := bm.mapping.lookup(tag); ok {
		return PrefetchResult{Outcome: PrefetchCached, RecentFrame: idx}
	}
	if bm.smgr != nil && bm.smgr.Prefetch(tag.Relation(), tag.ForkID, tag.BlockNumber) {
		return PrefetchResult{Outcome: PrefetchIOStarted}
	}
	return PrefetchResult{Outcome: PrefetchNothing}
}
