package bufferpool

import (
	"errors"
	"fmt"
)

// Error taxonomy per spec §7: corruption, capacity, contention, programmer
// error, I/O error.
var (
	// ErrNoUnpinnedBuffers is the capacity error returned when the clock
	// sweep cannot find any replaceable frame after two full passes (§4.3,
	// §8 boundary behaviors).
	ErrNoUnpinnedBuffers = errors.New("bufferpool: no unpinned buffers available")

	// ErrExtendBeyondLimit is returned when extend_by/extend_to would push
	// a relation past the maximum representable block number.
	ErrExtendBeyondLimit = errors.New("bufferpool: cannot extend beyond max block number")

	// ErrTooManyPins is the capacity error for a single frame's REFCOUNT
	// field overflowing (18 bits).
	ErrTooManyPins = errors.New("bufferpool: too many pins on one frame")

	// ErrMultipleCleanupWaiters: the cleanup-lock protocol supports only
	// one waiter per frame (§4.11, §9 design note).
	ErrMultipleCleanupWaiters = errors.New("bufferpool: another process is already waiting for a cleanup lock on this frame")

	// ErrInvalidFrame/ErrBadPinCount are programmer errors: release of an
	// unpinned frame, or a pin-count invariant violated.
	ErrInvalidFrame  = errors.New("bufferpool: invalid frame handle")
	ErrBadPinCount   = errors.New("bufferpool: incorrect pin count on release")
	ErrForeignAccess = errors.New("bufferpool: attempted access to another session's local buffer")

	// ErrUnsupportedFileSet mirrors the teacher's sentinel, raised when a
	// relation-extend path is asked to work with a FileSet the core
	// cannot resolve to a storage handle.
	ErrUnsupportedFileSet = errors.New("bufferpool: unsupported relation handle")
)

// CorruptionError carries the identifying details the caller sees when a
// page fails its header checksum and zero-on-error is not in effect
// (§7 "User-visible behavior").
type CorruptionError struct {
	Tag    Tag
	Detail string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("bufferpool: corrupted page %s: %s", e.Tag, e.Detail)
}

// ErrGhostBufferCorrupt is raised by the relation-extend path when a ghost
// buffer left by a previous failed extend (or a misbehaving lseek) holds
// non-zero data beyond the reported end of file. The spec's open question
// (§9) about whether this should remain a hard error is left unresolved;
// semantics are preserved unchanged absent evidence to the contrary.
type ErrGhostBufferCorrupt struct {
	Tag Tag
}

func (e *ErrGhostBufferCorrupt) Error() string {
	return fmt.Sprintf("bufferpool: non-zero ghost buffer beyond end of file at %s (possible kernel lseek bug)", e.Tag)
}
