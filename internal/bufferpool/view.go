package bufferpool

import "github.com/nova-storage/novasql/internal/storage"

// RelationView adapts the core Manager to the narrow single-relation
// GetPage/Unpin/FlushAll shape the heap and btree packages were written
// against, the same "one Pool per FileSet" grain the teacher's original
// bufferpool.Pool offered. Those packages do not use it: they still
// declare their pool as bufferpool.Manager and call GetPage/Unpin on it,
// methods the Manager struct does not have.
type RelationView struct {
	bm   *Manager
	sess *Session
	rel  RelationKey
	fork ForkID

	// pinned tracks the Pinned handle behind each page currently checked
	// out through this view, keyed by block number, so Unpin(page, ...)
	// (which only carries a *storage.Page, no Tag) can find its way back
	// to the right frame.
	pinned map[uint32]Pinned
}

// NewRelationView builds a view bound to one relation/fork, analogous to
// NewPool(sm, fs, capacity) in the teacher's original API.
func NewRelationView(bm *Manager, sess *Session, rel RelationKey, fork ForkID) *RelationView {
	return &RelationView{
		bm:     bm,
		sess:   sess,
		rel:    rel,
		fork:   fork,
		pinned: make(map[uint32]Pinned),
	}
}

// GetPage implements the old bufferpool.Manager interface: pin block
// pageID (extending the relation first if it's past the current end),
// and return a *storage.Page wrapper over the frame's bytes.
func (v *RelationView) GetPage(pageID uint32) (*storage.Page, error) {
	tag := Tag{TablespaceID: v.rel.TablespaceID, DatabaseID: v.rel.DatabaseID, RelationID: v.rel.RelationID, ForkID: v.fork, BlockNumber: pageID}

	p, err := v.bm.Read(v.sess, tag, ReadNormal, nil)
	if err != nil {
		ext, extErr := v.bm.ExtendTo(v.sess, v.rel, v.fork, pageID, ExtendCreateForkIfNeeded)
		if extErr != nil {
			return nil, err
		}
		p = ext
	}

	v.pinned[pageID] = p
	return &storage.Page{Buf: p.Bytes()}, nil
}

// Unpin implements the old interface: mark dirty if requested and
// release the pin, looked up by the page's own PageID-equivalent (the
// block number baked into the page header at offset 2, per
// storage.Page.init).
func (v *RelationView) Unpin(page *storage.Page, dirty bool) error {
	if page == nil {
		return nil
	}
	pageID := storage.GetU32(page.Buf, 2)
	p, ok := v.pinned[pageID]
	if !ok {
		return nil
	}
	delete(v.pinned, pageID)

	if dirty {
		v.bm.MarkDirty(p)
	}
	return v.bm.Release(v.sess, p)
}

// FlushAll implements the old interface: write back every dirty buffer
// belonging to this view's relation.
func (v *RelationView) FlushAll() error {
	return v.bm.FlushRelationBuffers(v.rel, &v.fork)
}
