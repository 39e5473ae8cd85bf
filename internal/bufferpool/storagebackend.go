package bufferpool

import (
	"sync"

	"github.com/nova-storage/novasql/internal/storage"
)

// RelationResolver maps a (relation, fork) pair to the on-disk FileSet
// backing it. The buffer manager only ever deals in RelationKey/ForkID
// (§1 non-goal: no catalog knowledge), so whatever owns relation-to-file
// naming (the catalog, in the full engine) supplies this.
type RelationResolver interface {
	Resolve(rel RelationKey, fork ForkID) (storage.FileSet, error)
}

// FileSetStorageBackend adapts the teacher's storage.StorageManager (a
// pageID-at-a-time file-segment reader/writer) to the StorageBackend
// capability set the core consumes, fanning a single StorageManager out
// across every relation/fork via a RelationResolver.
type FileSetStorageBackend struct {
	sm       *storage.StorageManager
	resolver RelationResolver

	mu         sync.Mutex
	blockCache map[RelationKey]map[ForkID]uint32
}

func NewFileSetStorageBackend(sm *storage.StorageManager, resolver RelationResolver) *FileSetStorageBackend {
	return &FileSetStorageBackend{
		sm:         sm,
		resolver:   resolver,
		blockCache: make(map[RelationKey]map[ForkID]uint32),
	}
}

func (b *FileSetStorageBackend) Exists(rel RelationKey, fork ForkID) bool {
	_, err := b.resolver.Resolve(rel, fork)
	return err == nil
}

func (b *FileSetStorageBackend) NBlocks(rel RelationKey, fork ForkID) (uint32, error) {
	fs, err := b.resolver.Resolve(rel, fork)
	if err != nil {
		return 0, err
	}
	n, err := b.sm.CountPages(fs)
	if err != nil {
		return 0, err
	}
	b.setCached(rel, fork, n)
	return n, nil
}

func (b *FileSetStorageBackend) NBlocksCached(rel RelationKey, fork ForkID) (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	forks, ok := b.blockCache[rel]
	if !ok {
		return 0, false
	}
	n, ok := forks[fork]
	return n, ok
}

func (b *FileSetStorageBackend) setCached(rel RelationKey, fork ForkID, n uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	forks, ok := b.blockCache[rel]
	if !ok {
		forks = make(map[ForkID]uint32)
		b.blockCache[rel] = forks
	}
	forks[fork] = n
}

func (b *FileSetStorageBackend) Read(rel RelationKey, fork ForkID, block uint32, out []byte) error {
	fs, err := b.resolver.Resolve(rel, fork)
	if err != nil {
		return err
	}
	return b.sm.ReadPage(fs, int32(block), out)
}

func (b *FileSetStorageBackend) Write(rel RelationKey, fork ForkID, block uint32, data []byte, fsync bool) error {
	fs, err := b.resolver.Resolve(rel, fork)
	if err != nil {
		return err
	}
	if err := b.sm.WritePage(fs, int32(block), data); err != nil {
		return err
	}
	if fsync {
		if lfs, ok := fs.(storage.LocalFileSet); ok {
			if f, err := lfs.OpenSegment(0); err == nil {
				_ = f.Sync()
				_ = f.Close()
			}
		}
	}
	return nil
}

func (b *FileSetStorageBackend) ZeroExtend(rel RelationKey, fork ForkID, firstBlock uint32, count int) error {
	fs, err := b.resolver.Resolve(rel, fork)
	if err != nil {
		return err
	}
	zero := make([]byte, storage.PageSize)
	for i := 0; i < count; i++ {
		if err := b.sm.WritePage(fs, int32(firstBlock)+int32(i), zero); err != nil {
			return err
		}
	}
	b.invalidateCache(rel, fork)
	return nil
}

func (b *FileSetStorageBackend) invalidateCache(rel RelationKey, fork ForkID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if forks, ok := b.blockCache[rel]; ok {
		delete(forks, fork)
	}
}

// Prefetch always declines: storage.StorageManager does no OS-level
// readahead hinting, and adding one would mean reimplementing posix_fadvise
// by hand for no example repo's benefit (no pack dependency offers it).
func (b *FileSetStorageBackend) Prefetch(rel RelationKey, fork ForkID, block uint32) bool {
	return false
}

// Writeback is a no-op for the same reason: no pack dependency exposes
// sync_file_range-style partial writeback, so this is purely advisory
// for the checkpoint writer's coalescing pass.
func (b *FileSetStorageBackend) Writeback(rel RelationKey, fork ForkID, block uint32, count int) {
}
