package bufferpool

import (
	"container/heap"
	"sort"
)

// checkpointEntry is one frame marked for writeback during a checkpoint
// pass (§4.12 "mark phase").
type checkpointEntry struct {
	frame *frame
	tag   Tag
}

// tablespaceQueue is a per-tablespace bucket of pending checkpoint
// writes, sorted by (relation, fork, block) so sequential writeback
// coalescing (§4.13) sees adjacent blocks together.
type tablespaceQueue struct {
	tablespace uint32
	entries    []checkpointEntry
	next       int
}

func (q *tablespaceQueue) done() bool { return q.next >= len(q.entries) }

// balanceHeap is a min-heap of tablespace queues ordered by how many
// entries each has already flushed, implementing §4.12's "spread I/O
// evenly across tablespaces rather than draining one at a time" policy.
// container/heap is the one deliberate standard-library dependency in
// this package (see SPEC_FULL.md/DESIGN.md: no example repo ships a
// priority-queue library, and this is exactly the shape heap.Interface
// models).
type balanceHeap []*tablespaceQueue

func (h balanceHeap) Len() int { return len(h) }
func (h balanceHeap) Less(i, j int) bool {
	return h[i].next < h[j].next
}
func (h balanceHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *balanceHeap) Push(x any)   { *h = append(*h, x.(*tablespaceQueue)) }
func (h *balanceHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// CheckpointFlags is the §6 checkpoint(flags) argument: which dirty
// frames the mark phase must cover.
type CheckpointFlags uint8

const (
	// CheckpointIsShutdown marks every dirty frame, permanent or not —
	// there will be no next checkpoint to catch stragglers.
	CheckpointIsShutdown CheckpointFlags = 1 << iota
	// CheckpointEndOfRecovery is the same "write everything" requirement
	// at the end of crash recovery.
	CheckpointEndOfRecovery
	// CheckpointFlushAll is an explicit caller request to write every
	// dirty frame regardless of persistence, outside of shutdown/recovery.
	CheckpointFlushAll
)

func (f CheckpointFlags) writesNonPermanent() bool {
	return f&(CheckpointIsShutdown|CheckpointEndOfRecovery|CheckpointFlushAll) != 0
}

// Checkpoint implements C10 §4.12: scan every frame, mark the dirty ones
// CHECKPOINT_NEEDED, group them per tablespace, then flush in
// round-robin order across tablespaces (balanced I/O) until every marked
// frame has been written or found no-longer-dirty (another writer beat
// us to it). Returns the number of frames actually flushed.
//
// Unless flags indicates a shutdown checkpoint, end-of-recovery
// checkpoint, or an explicit flush-all, only PERMANENT dirty frames are
// marked — matching BufferSync's "write only permanent, dirty buffers"
// default so a checkpoint doesn't flush unlogged-relation buffers it
// doesn't need to. At shutdown/end-of-recovery every dirty frame must be
// written, since there is no later checkpoint to catch what was skipped.
func (bm *Manager) Checkpoint(sess *Session, flags CheckpointFlags) (int, error) {
	bm.checkpointMu.Lock()
	defer bm.checkpointMu.Unlock()

	byTablespace := bm.markDirtyFrames(flags)
	if len(byTablespace) == 0 {
		return 0, nil
	}

	h := make(balanceHeap, 0, len(byTablespace))
	for _, q := range byTablespace {
		sort.Slice(q.entries, func(i, j int) bool {
			a, b := q.entries[i].tag, q.entries[j].tag
			if a.RelationID != b.RelationID {
				return a.RelationID < b.RelationID
			}
			if a.ForkID != b.ForkID {
				return a.ForkID < b.ForkID
			}
			return a.BlockNumber < b.BlockNumber
		})
		h = append(h, q)
	}
	heap.Init(&h)

	flushed := 0
	var coalesceTag Tag
	coalesceCount := 0
	for h.Len() > 0 {
		q := h[0]
		if q.done() {
			heap.Pop(&h)
			continue
		}
		entry := q.entries[q.next]
		q.next++
		heap.Fix(&h, 0)

		cur := entry.frame.state.load()
		if entry.frame.tag != entry.tag || !cur.has(bitCheckpointNeeded) {
			continue
		}
		if !cur.has(bitDirty) {
			bm.clearCheckpointNeeded(entry.frame)
			continue
		}

		if err := bm.flushFrame(entry.frame, entry.tag); err != nil {
			logf("checkpoint flush failed", "tag", entry.tag, "err", err)
			continue
		}
		bm.clearCheckpointNeeded(entry.frame)
		flushed++

		coalesceTag, coalesceCount = bm.coalesceWriteback(entry.tag, coalesceTag, coalesceCount)
	}
	bm.flushPendingWriteback(coalesceTag, coalesceCount)

	return flushed, nil
}

// markDirtyFrames is §4.12's mark phase: snapshot every currently-dirty
// frame meeting flags' persistence requirement, set CHECKPOINT_NEEDED on
// it, and bucket it by tablespace for the balanced flush.
func (bm *Manager) markDirtyFrames(flags CheckpointFlags) map[uint32]*tablespaceQueue {
	requirePermanent := !flags.writesNonPermanent()

	byTablespace := make(map[uint32]*tablespaceQueue)
	for i := 0; i < bm.frames.size(); i++ {
		f := bm.frames.at(int32(i))
		cur := f.state.load()
		if !cur.has(bitTagValid) || !cur.has(bitDirty) {
			continue
		}
		if requirePermanent && !cur.has(bitPermanent) {
			continue
		}
		f.state.casLoop(func(c bufState) bufState { return c | bitCheckpointNeeded })

		tag := f.tag
		q, ok := byTablespace[tag.TablespaceID]
		if !ok {
			q = &tablespaceQueue{tablespace: tag.TablespaceID}
			byTablespace[tag.TablespaceID] = q
		}
		q.entries = append(q.entries, checkpointEntry{frame: f, tag: tag})
	}
	return byTablespace
}

func (bm *Manager) clearCheckpointNeeded(f *frame) {
	f.state.casLoop(func(cur bufState) bufState { return cur &^ bitCheckpointNeeded })
}

// coalesceWriteback tracks a run of adjacent (relation, fork, block)
// writes and flushes the accumulated Writeback hint once the run breaks,
// implementing §4.13's "coalesce adjacent writes into one writeback
// call" rule.
func (bm *Manager) coalesceWriteback(tag, pending Tag, count int) (Tag, int) {
	if count > 0 && pending.Relation() == tag.Relation() && pending.ForkID == tag.ForkID &&
		pending.BlockNumber+uint32(count) == tag.BlockNumber {
		return pending, count + 1
	}
	bm.flushPendingWriteback(pending, count)
	return tag, 1
}

func (bm *Manager) flushPendingWriteback(tag Tag, count int) {
	if count <= 0 || bm.smgr == nil {
		return
	}
	bm.smgr.Writeback(tag.Relation(), tag.ForkID, tag.BlockNumber, count)
}

// BgSync implements §4.12's lighter-weight background writer pass: flush
// up to max frames whose USAGE_COUNT has decayed to zero (the "about to
// be reused" LRU tail), without the full mark/balance machinery a full
// Checkpoint does. Returns the number of frames flushed.
func (bm *Manager) BgSync(max int) int {
	flushed := 0
	n := bm.frames.size()
	for i := 0; i < n && flushed < max; i++ {
		f := bm.frames.at(int32(i))
		cur := f.state.load()
		if !cur.has(bitTagValid) || !cur.has(bitDirty) || cur.usageCount() != 0 || cur.refCount() != 0 {
			continue
		}
		if err := bm.flushFrame(f, f.tag); err == nil {
			flushed++
		}
	}
	return flushed
}
