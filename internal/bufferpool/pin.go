package bufferpool

// localPinCacheSize is the per-process fixed-array size from §9 "Per-process
// cache": a deliberate hot-path optimization, any constant >= 4 that fits a
// cache line is acceptable; 8 matches the spec's stated default.
const localPinCacheSize = 8

type pinCacheEntry struct {
	frame int32
	count int32
}

// localPinCache lets a single session (process/goroutine-worker) pin and
// unpin a frame repeatedly without touching shared state on every call: a
// small fixed array plus an overflow map, as required by §3 "Per-process
// pin cache" and §9. Not safe for concurrent use by more than one session
// — each Session owns exactly one.
type localPinCache struct {
	fixed    [localPinCacheSize]pinCacheEntry
	used     [localPinCacheSize]bool
	cursor   int
	overflow map[int32]int32
}

func newLocalPinCache() *localPinCache {
	return &localPinCache{overflow: make(map[int32]int32)}
}

// find returns the current local refcount for frame, and whether it is
// tracked at all.
func (c *localPinCache) find(frameIdx int32) (int32, bool) {
	for i := range c.fixed {
		if c.used[i] && c.fixed[i].frame == frameIdx {
			return c.fixed[i].count, true
		}
	}
	if n, ok := c.overflow[frameIdx]; ok {
		return n, true
	}
	return 0, false
}

// incr increments frame's local count if already tracked, returning the
// new count and true; otherwise returns (0, false) and the caller must
// insert() a fresh entry.
func (c *localPinCache) incr(frameIdx int32) (int32, bool) {
	for i := range c.fixed {
		if c.used[i] && c.fixed[i].frame == frameIdx {
			c.fixed[i].count++
			return c.fixed[i].count, true
		}
	}
	if n, ok := c.overflow[frameIdx]; ok {
		n++
		c.overflow[frameIdx] = n
		return n, true
	}
	return 0, false
}

// insert records a brand-new local pin (count=1) for frameIdx, evicting
// the clock-rotated fixed slot into the overflow table if all fixed slots
// are occupied (§3 "insertion replaces the clock-rotated slot, demoting it
// into the overflow table").
func (c *localPinCache) insert(frameIdx int32) {
	for i := range c.fixed {
		if !c.used[i] {
			c.fixed[i] = pinCacheEntry{frame: frameIdx, count: 1}
			c.used[i] = true
			return
		}
	}
	// All fixed slots full: rotate the cursor slot out to overflow.
	victim := c.fixed[c.cursor]
	c.overflow[victim.frame] = victim.count
	c.fixed[c.cursor] = pinCacheEntry{frame: frameIdx, count: 1}
	c.cursor = (c.cursor + 1) % localPinCacheSize
}

// decr decrements frame's local count, removing the entry entirely once
// it reaches zero. Returns the new count and whether the frame was
// tracked at all (false means a programmer error: unpin without a
// matching pin).
func (c *localPinCache) decr(frameIdx int32) (int32, bool) {
	for i := range c.fixed {
		if c.used[i] && c.fixed[i].frame == frameIdx {
			c.fixed[i].count--
			if c.fixed[i].count == 0 {
				c.used[i] = false
			}
			return c.fixed[i].count, true
		}
	}
	if n, ok := c.overflow[frameIdx]; ok {
		n--
		if n == 0 {
			delete(c.overflow, frameIdx)
		} else {
			c.overflow[frameIdx] = n
		}
		return n, true
	}
	return 0, false
}

// totalPins sums every tracked local pin; used by shutdown leak assertions.
func (c *localPinCache) totalPins() int {
	total := 0
	for i := range c.fixed {
		if c.used[i] {
			total += int(c.fixed[i].count)
		}
	}
	for _, n := range c.overflow {
		total += int(n)
	}
	return total
}

// pin implements §4.5 pin(frame, strategy): check the local cache first to
// avoid any shared-memory write on a repeated pin of the same frame;
// otherwise CAS-loop the shared REFCOUNT/USAGE_COUNT and register with the
// session's local cache and resource owner. Returns whether VALID was set
// at the moment of pinning.
func (bm *Manager) pin(sess *Session, f *frame, strategy *AccessStrategy) bool {
	if _, tracked := sess.cache.incr(f.index); tracked {
		return f.state.load().has(bitValid)
	}

	maxUsage := strategy.maxUsageForPin()
	next := f.state.casLoop(func(cur bufState) bufState {
		out := cur.withRefCount(cur.refCount() + 1)
		if u := cur.usageCount(); u < maxUsage {
			out = out.withUsageCount(u + 1)
		}
		return out
	})

	sess.cache.insert(f.index)
	sess.recordPin(f.index)
	return next.has(bitValid)
}

// pinLocked is the §4.5 variant used when the caller already holds the
// header spinlock (typically right after clock_sweep_get) and knows it
// does not already hold a pin on this frame. It sets REFCOUNT += 1 and
// releases the spinlock in the same atomic write-back, then mirrors the
// bookkeeping pin() would have done so a later release() through the
// normal path works.
func (bm *Manager) pinLocked(sess *Session, f *frame, cur bufState) bufState {
	next := cur.withRefCount(cur.refCount() + 1)
	f.state.unlock(next)
	sess.cache.insert(f.index)
	sess.recordPin(f.index)
	return next
}

// unpin implements §4.5 unpin(frame): decrement the local count; on
// reaching zero, CAS-loop the shared REFCOUNT down, and if it reaches
// exactly 1 afterward with PIN_COUNT_WAITER set, wake the cleanup-lock
// waiter (the only process left pinning is now the waiter's target).
func (bm *Manager) unpin(sess *Session, f *frame) error {
	newLocal, tracked := sess.cache.decr(f.index)
	if !tracked {
		return ErrBadPinCount
	}
	if newLocal > 0 {
		return nil
	}
	sess.recordUnpin(f.index)

	var shouldSignal bool
	f.state.casLoop(func(cur bufState) bufState {
		next := cur.withRefCount(cur.refCount() - 1)
		shouldSignal = next.has(bitPinCountWaiter) && next.refCount() == 1
		if shouldSignal {
			next &^= bitPinCountWaiter
		}
		return next
	})
	if shouldSignal {
		f.cleanupCond.L.Lock()
		f.cleanupCond.Broadcast()
		f.cleanupCond.L.Unlock()
	}
	return nil
}
