// Package bufferpool implements novasql's shared buffer pool manager: the
// concurrent page lookup/pin/eviction/I/O state machine mediating between
// on-disk pages and a fixed set of in-memory frames shared by every
// session. See SPEC_FULL.md for the full design this package follows.
package bufferpool

import (
	"log/slog"
	"sync"
)

var logDebugPrefix = "bufferpool: "

// ReadMode selects the behavior of Read when the requested page is not
// already resident (§6 public API).
type ReadMode int

const (
	ReadNormal ReadMode = iota
	ReadZeroOnError
	ReadZeroAndLock
	ReadZeroAndCleanupLock
)

// LockMode is the argument to Lock/ConditionalLock (§6).
type LockMode int

const (
	LockModeUnlock LockMode = iota
	LockModeShare
	LockModeExclusive
)

// Pinned is a handle to a pinned frame returned by the read/extend paths.
// It is only valid for the Session that pinned it, and must eventually be
// released via Manager.Release.
type Pinned struct {
	f   *frame
	tag Tag
}

// Tag returns the page identity behind this pin.
func (p Pinned) Tag() Tag { return p.tag }

// Bytes exposes the frame's page-sized content buffer. Callers must hold
// an appropriate content lock (via Manager.Lock) before reading or
// writing it outside of the narrow windows the core itself manages.
func (p Pinned) Bytes() []byte { return p.f.bytes }

// FrameIndex exposes the underlying frame slot, meant to be stashed by
// the caller as the "recent buffer" hint later passed to
// Manager.ReadRecent (§6 read_recent/§9 "per-process cache"-adjacent
// optimizations) — a cheap way to skip the mapping-table lookup the next
// time the same page is wanted.
func (p Pinned) FrameIndex() int32 { return p.f.index }

// Manager is the shared buffer pool: the partitioned mapping table, the
// fixed frame array, the clock sweep, and the external collaborators
// (storage manager, WAL) it calls into (§2 system overview).
type Manager struct {
	cfg Config

	frames  *framePool
	mapping *mappingTable
	sweep   *clockSweep

	smgr StorageBackend
	wal  WAL

	// freeList holds never-yet-used frame indices so a cold pool fills up
	// without running the clock sweep at all, matching the teacher's
	// "try a free slot first" shape from the original Pool/GlobalPool.
	freeMu   sync.Mutex
	freeList []int32

	// checkpointMu serializes checkpoint/bgwriter passes; concurrent
	// reads/writes proceed independently (§4.12's own per-frame locking
	// is what actually protects frame state).
	checkpointMu sync.Mutex

	// extLocks holds one mutex per relation currently being extended,
	// the §4.9 step 2 "relation's extension lock" (created lazily, never
	// removed — relation count is bounded by the catalog, not by traffic).
	extLocksMu sync.Mutex
	extLocks   map[RelationKey]*sync.Mutex
}

// NewManager builds a Manager with cfg.BufferCount frames of cfg.PageSize
// bytes each, backed by smgr and wal.
func NewManager(cfg Config, smgr StorageBackend, wal WAL) *Manager {
	cfg = cfg.withDefaults()
	fp := newFramePool(cfg.BufferCount, cfg.PageSize)

	free := make([]int32, fp.size())
	for i := range free {
		free[i] = int32(i)
	}

	bm := &Manager{
		cfg:      cfg,
		frames:   fp,
		mapping:  newMappingTable(cfg.PartitionCount),
		smgr:     smgr,
		wal:      wal,
		freeList: free,
		extLocks: make(map[RelationKey]*sync.Mutex),
	}
	bm.sweep = newClockSweep(fp)
	return bm
}

func (bm *Manager) popFree() (*frame, bool) {
	bm.freeMu.Lock()
	defer bm.freeMu.Unlock()
	n := len(bm.freeList)
	if n == 0 {
		return nil, false
	}
	idx := bm.freeList[n-1]
	bm.freeList = bm.freeList[:n-1]
	return bm.frames.at(idx), true
}

func (bm *Manager) pushFree(f *frame) {
	bm.freeMu.Lock()
	defer bm.freeMu.Unlock()
	bm.freeList = append(bm.freeList, f.index)
}

// Release is the general-purpose §6 release(frame): unpin with no forced
// dirty marking.
func (bm *Manager) Release(sess *Session, p Pinned) error {
	return bm.unpin(sess, p.f)
}

// IncrPin adds an additional pin to an already-pinned frame, the
// §6 incr_pin(frame) entry — used when a caller wants to hand out a
// second independent reference without a fresh lookup.
func (bm *Manager) IncrPin(sess *Session, p Pinned) {
	bm.pin(sess, p.f, nil)
}

// MarkDirty implements §6 mark_dirty(frame): set DIRTY (and JUST_DIRTIED
// if a flush is concurrently in progress), requiring the caller to hold
// the content lock exclusively and a pin (I5).
func (bm *Manager) MarkDirty(p Pinned) {
	p.f.state.casLoop(func(cur bufState) bufState {
		next := cur | bitDirty
		if cur.has(bitIOInProgress) {
			next |= bitJustDirtied
		}
		return next
	})
}

// MarkDirtyHint implements §6 mark_dirty_hint(frame, std): a best-effort
// dirty mark for hint-bit-only updates (e.g. visibility hints) that don't
// need WAL protection unless std (standard/full-page) write is requested,
// in which case it behaves like MarkDirty after asking the WAL for a
// save-page-for-hint LSN.
func (bm *Manager) MarkDirtyHint(p Pinned, std bool) error {
	if std && bm.wal != nil && bm.wal.IsNeeded() {
		lsn, err := bm.wal.SavePageForHint(p.f.bytes)
		if err != nil {
			return err
		}
		p.f.lastLSN = lsn
	}
	bm.MarkDirty(p)
	return nil
}

// UnlockRelease implements §6 unlock_release(frame): release the content
// lock then unpin, the common end-of-operation sequence.
func (bm *Manager) UnlockRelease(sess *Session, p Pinned) error {
	bm.Lock(p, LockModeUnlock)
	return bm.unpin(sess, p.f)
}

// Lock implements §6 lock(frame, mode).
func (bm *Manager) Lock(p Pinned, mode LockMode) {
	switch mode {
	case LockModeShare:
		p.f.lockContentShare()
	case LockModeExclusive:
		p.f.lockContentExclusive()
	case LockModeUnlock:
		p.f.unlockContent()
	}
}

// ConditionalLock implements §6 conditional_lock(frame) -> bool: a
// non-blocking attempt at an exclusive content lock.
func (bm *Manager) ConditionalLock(p Pinned) bool {
	return p.f.tryLockContentExclusive()
}

// logf is a tiny convenience used throughout this package for consistent
// structured debug logging.
func logf(msg string, args ...any) {
	slog.Debug(logDebugPrefix+msg, args...)
}
