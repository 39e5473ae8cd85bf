package bufferpool

// RelationKey identifies a relation within a tablespace/database, i.e. a
// Tag stripped of its fork and block number — the granularity storage
// manager operations and extension locks work at.
type RelationKey struct {
	TablespaceID uint32
	DatabaseID   uint32
	RelationID   uint32
}

// Relation returns the RelationKey a tag belongs to.
func (t Tag) Relation() RelationKey {
	return RelationKey{TablespaceID: t.TablespaceID, DatabaseID: t.DatabaseID, RelationID: t.RelationID}
}

// StorageBackend is the narrow capability set the core consumes from the
// storage manager (§6 "Storage manager (consumed)"). It is intentionally
// small: the core never parses page contents, only moves bytes and asks
// about block counts (§1 "Non-goals").
type StorageBackend interface {
	Exists(rel RelationKey, fork ForkID) bool
	NBlocks(rel RelationKey, fork ForkID) (uint32, error)
	NBlocksCached(rel RelationKey, fork ForkID) (uint32, bool)
	Read(rel RelationKey, fork ForkID, block uint32, out []byte) error
	Write(rel RelationKey, fork ForkID, block uint32, data []byte, fsync bool) error
	ZeroExtend(rel RelationKey, fork ForkID, firstBlock uint32, count int) error
	Prefetch(rel RelationKey, fork ForkID, block uint32) bool
	Writeback(rel RelationKey, fork ForkID, block uint32, count int)
}

// WAL is the narrow capability set the core consumes from the write-ahead
// log (§6 "WAL (consumed)"): force-flush up to an LSN, and emit a page
// image for a hint-bit-only update that still needs WAL-before-data
// protection. The core never decides durability policy; it only obeys it.
type WAL interface {
	IsNeeded() bool
	NeedsFlush(lsn uint64) bool
	Flush(lsn uint64) error
	SavePageForHint(pageBytes []byte) (uint64, error)
}
