package bufferpool

import (
	"log/slog"
	"sync"

	"github.com/nova-storage/novasql/internal/storage"
	"github.com/nova-storage/novasql/pkg/clockx"
)

// LocalPool is the process-local buffer pool for session-private state
// (temp-table scans, sort spill files) that the shared Manager
// deliberately excludes (§1 "Non-goals": the shared pool is for
// permanent, cross-session relations only). It keeps the teacher's
// original Pool shape — single mutex, one CLOCK replacer, fixed frame
// array bound to one FileSet — rather than the shared core's
// spinlock/partitioned design, because session-private pages are by
// definition never contended across processes.
type LocalPool struct {
	sm *storage.StorageManager
	fs storage.FileSet

	mu        sync.Mutex
	frames    []*localFrame
	pageTable map[uint32]int
	repl      *clockx.Clock
}

type localFrame struct {
	pageID uint32
	page   *storage.Page
	dirty  bool
	pin    int32
}

// NewLocalPool creates a process-local pool of the given capacity bound
// to one FileSet. If capacity <= 0 a small default is used, matching the
// teacher's NewPool convention.
func NewLocalPool(sm *storage.StorageManager, fs storage.FileSet, capacity int) *LocalPool {
	if capacity <= 0 {
		capacity = 16
	}
	return &LocalPool{
		sm:        sm,
		fs:        fs,
		frames:    make([]*localFrame, capacity),
		pageTable: make(map[uint32]int),
		repl:      clockx.New(capacity),
	}
}

// GetPage pins and returns pageID, loading it from disk on a miss and
// evicting via CLOCK when the pool is full.
func (p *LocalPool) GetPage(pageID uint32) (*storage.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.pageTable[pageID]; ok {
		f := p.frames[idx]
		if f == nil {
			delete(p.pageTable, pageID)
		} else {
			wasZero := f.pin == 0
			f.pin++
			p.repl.Touch(idx)
			if wasZero {
				p.repl.SetEvictable(idx, false)
			}
			return f.page, nil
		}
	}

	if freeIdx := p.freeSlot(); freeIdx != -1 {
		page, err := p.sm.LoadPage(p.fs, pageID)
		if err != nil {
			return nil, err
		}
		p.frames[freeIdx] = &localFrame{pageID: pageID, page: page, pin: 1}
		p.pageTable[pageID] = freeIdx
		p.repl.Touch(freeIdx)
		p.repl.SetEvictable(freeIdx, false)
		return page, nil
	}

	victimIdx, ok := p.repl.Evict()
	if !ok {
		return nil, ErrNoUnpinnedBuffers
	}
	victim := p.frames[victimIdx]
	if victim.dirty {
		if err := p.sm.SavePage(p.fs, victim.pageID, *victim.page); err != nil {
			p.repl.SetEvictable(victimIdx, true)
			return nil, err
		}
		victim.dirty = false
	}
	delete(p.pageTable, victim.pageID)

	page, err := p.sm.LoadPage(p.fs, pageID)
	if err != nil {
		p.repl.SetEvictable(victimIdx, true)
		return nil, err
	}
	victim.pageID = pageID
	victim.page = page
	victim.pin = 1
	p.pageTable[pageID] = victimIdx
	p.repl.Touch(victimIdx)
	p.repl.SetEvictable(victimIdx, false)
	return page, nil
}

func (p *LocalPool) freeSlot() int {
	for i, f := range p.frames {
		if f == nil {
			return i
		}
	}
	return -1
}

// Unpin decreases the pin count of pageID, marking it dirty if requested.
func (p *LocalPool) Unpin(page *storage.Page, dirty bool) error {
	if page == nil {
		return nil
	}
	pageID := storage.GetU32(page.Buf, 2)

	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[pageID]
	if !ok {
		return nil
	}
	f := p.frames[idx]
	if f == nil {
		return nil
	}
	if dirty {
		f.dirty = true
	}
	if f.pin > 0 {
		f.pin--
		if f.pin == 0 {
			p.repl.SetEvictable(idx, true)
		}
	}
	return nil
}

// FlushAll writes back every dirty frame in the pool.
func (p *LocalPool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, f := range p.frames {
		if f == nil || !f.dirty {
			continue
		}
		if err := p.sm.SavePage(p.fs, f.pageID, *f.page); err != nil {
			return err
		}
		f.dirty = false
	}
	return nil
}

// Discard drops every frame in the pool without flushing, used when a
// temp table's backing file is about to be deleted outright.
func (p *LocalPool) Discard() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, f := range p.frames {
		if f == nil {
			continue
		}
		if f.pin != 0 {
			slog.Warn(logDebugPrefix+"discarding pinned local frame", "pageID", f.pageID, "pin", f.pin)
		}
		p.frames[i] = nil
		delete(p.pageTable, f.pageID)
		p.repl.Remove(i)
	}
}
