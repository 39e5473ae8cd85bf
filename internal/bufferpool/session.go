package bufferpool

import locking "github.com/nova-storage/novasql/internal/lock"

// Session is the per-process entry point into the shared buffer manager:
// it owns the private pin cache (§3 "Per-process pin cache") and reports
// into an ambient resource owner for pin-leak detection (§1, §7). Every
// worker/connection gets its own Session; Sessions are not safe for
// concurrent use by more than one goroutine at a time, matching the
// single-backend assumption the spec's "process" language carries
// throughout.
type Session struct {
	name  string
	cache *localPinCache
	owner *locking.ResourceOwner
}

// NewSession creates a fresh per-process handle. name is used only for
// diagnostics (logging, leak reports).
func NewSession(name string) *Session {
	return &Session{
		name:  name,
		cache: newLocalPinCache(),
		owner: locking.NewResourceOwner(name),
	}
}

func (s *Session) recordPin(frameIdx int32) {
	if s.owner != nil {
		s.owner.RecordPin(int64(frameIdx))
	}
}

func (s *Session) recordUnpin(frameIdx int32) {
	if s.owner != nil {
		s.owner.RecordUnpin(int64(frameIdx))
	}
}

// Close asserts that every pin this session took has been released. It is
// meant to run at connection/session teardown (§7 "leak detection asserts
// zero pins").
func (s *Session) Close() error {
	return s.owner.AssertNoLeaks()
}
