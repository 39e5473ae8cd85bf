package bufferpool

import "sync"

// mappingPartition is one independently-locked shard of the buffer
// mapping table (§3 "Mapping table", §4.2).
type mappingPartition struct {
	mu    sync.RWMutex
	table map[Tag]int32
}

// mappingTable is a set of P hash-table partitions mapping Tag -> frame
// index. P must be a power of two so the low bits of the tag hash select
// a partition with a simple mask.
type mappingTable struct {
	partitions []*mappingPartition
	mask       uint64
}

func newMappingTable(partitionCount int) *mappingTable {
	if partitionCount <= 0 || partitionCount&(partitionCount-1) != 0 {
		partitionCount = 128
	}
	mt := &mappingTable{
		partitions: make([]*mappingPartition, partitionCount),
		mask:       uint64(partitionCount - 1),
	}
	for i := range mt.partitions {
		mt.partitions[i] = &mappingPartition{table: make(map[Tag]int32)}
	}
	return mt
}

func (mt *mappingTable) partitionFor(hash uint64) *mappingPartition {
	return mt.partitions[hash&mt.mask]
}

// lookup returns the frame index for tag, or (0, false) if absent. It
// takes and releases the partition's shared lock itself, so the result
// may already be stale by the time the caller acts on it (§4.2).
func (p *mappingPartition) lookup(tag Tag) (int32, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	idx, ok := p.table[tag]
	return idx, ok
}

// insert is idempotent on collision: if tag is already present it returns
// the existing index and leaves the table untouched (§4.2).
func (p *mappingPartition) insert(tag Tag, index int32) (existing int32, hadExisting bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx, ok := p.table[tag]; ok {
		return idx, true
	}
	p.table[tag] = index
	return 0, false
}

func (p *mappingPartition) delete(tag Tag) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.table, tag)
}

// deleteIfMatches removes tag only if it still maps to index, guarding
// against a stale delete racing a fresh insert of the same tag into a
// different frame.
func (p *mappingPartition) deleteIfMatches(tag Tag, index int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.table[tag]; ok && cur == index {
		delete(p.table, tag)
	}
}

func (mt *mappingTable) lookup(tag Tag) (int32, bool) {
	return mt.partitionFor(tag.hash()).lookup(tag)
}

func (mt *mappingTable) insert(tag Tag, index int32) (existing int32, hadExisting bool) {
	return mt.partitionFor(tag.hash()).insert(tag, index)
}

func (mt *mappingTable) delete(tag Tag) {
	mt.partitionFor(tag.hash()).delete(tag)
}

func (mt *mappingTable) deleteIfMatches(tag Tag, index int32) {
	mt.partitionFor(tag.hash()).deleteIfMatches(tag, index)
}
