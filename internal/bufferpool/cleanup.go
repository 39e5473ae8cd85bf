package bufferpool

import "fmt"

// LockForCleanup implements C9 §4.11: acquire the content lock
// exclusively and return holding it once REFCOUNT observed globally is
// exactly 1 (our own pin). While other pins remain, it registers as the
// frame's PIN_COUNT_WAITER, releases the content lock, sleeps until
// signalled and then retries. Only one waiter per frame is
// supported — a second concurrent caller gets ErrMultipleCleanupWaiters,
// a programmer error per the spec's single-waiter design note (§9).
func (bm *Manager) LockForCleanup(p Pinned) error {
	f := p.f

	for {
		f.contentLock.Lock()
		cur := f.state.load()
		if cur.refCount() == 1 {
			return nil
		}

		claimed := false
		f.state.casLoop(func(cur bufState) bufState {
			if cur.has(bitPinCountWaiter) {
				return cur
			}
			claimed = true
			return cur | bitPinCountWaiter
		})
		if !claimed {
			f.contentLock.Unlock()
			return ErrMultipleCleanupWaiters
		}
		f.contentLock.Unlock()

		f.cleanupCond.L.Lock()
		for {
			cur := f.state.load()
			if cur.refCount() == 1 || !cur.has(bitPinCountWaiter) {
				break
			}
			f.cleanupCond.Wait()
		}
		f.cleanupCond.L.Unlock()

		// Loop to retake the content lock and re-check REFCOUNT; if it
		// rose again after we were signalled, the waiter slot is re-claimed.
	}
}

// ConditionalLockForCleanup implements §4.11's non-blocking variant: take
// the content lock only if uncontended, and only succeed if REFCOUNT is
// already exactly 1. Never registers as a PIN_COUNT_WAITER.
func (bm *Manager) ConditionalLockForCleanup(p Pinned) bool {
	f := p.f
	if !f.contentLock.TryLock() {
		return false
	}
	if f.state.load().refCount() == 1 {
		return true
	}
	f.contentLock.Unlock()
	return false
}

// IsCleanupOk implements §4.11's read-only probe: true iff the frame
// could be cleanup-locked right now without blocking, without actually
// taking the lock. Racy by nature (§7 "advisory only").
func (bm *Manager) IsCleanupOk(p Pinned) bool {
	return p.f.state.load().refCount() == 1
}

// unlockCleanup releases a lock taken by LockForCleanup/
// ConditionalLockForCleanup. The spec treats this as ordinary
// lock(frame, UNLOCK); it is split out here because cleanup locks are
// always exclusive, so there is no mode ambiguity to track.
func (bm *Manager) unlockCleanup(p Pinned) {
	p.f.contentLock.Unlock()
}

// UnlockReleaseCleanup is the cleanup-lock counterpart of UnlockRelease.
func (bm *Manager) UnlockReleaseCleanup(sess *Session, p Pinned) error {
	bm.unlockCleanup(p)
	return bm.unpin(sess, p.f)
}

// assertPinned is a light internal sanity check used by call sites that
// require the caller to already hold a pin (I5); it does not attempt to
// distinguish "this session's pin" from "some session's pin" since the
// core does not track pin ownership at that granularity beyond the local
// cache (§1 non-goal: no transactional visibility).
func assertPinned(f *frame) error {
	if f.state.load().refCount() == 0 {
		return fmt.Errorf("bufferpool: operation requires frame %d to be pinned", f.index)
	}
	return nil
}
