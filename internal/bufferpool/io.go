package bufferpool

import "log/slog"

// startIO implements §4.6 start_io(frame, for_input): if IO_IN_PROGRESS is
// already set, wait on the frame's condition variable and retry; once
// clear, check whether the requested work is already done (a read against
// a VALID frame, or a write against a clean one) and if so return false
// without starting anything; otherwise claim IO_IN_PROGRESS and return
// true, meaning the caller is now the sole I/O initiator (invariant I3/I6).
func startIO(f *frame, forInput bool) bool {
	for {
		cur := f.state.lock()
		if cur.has(bitIOInProgress) {
			f.state.unlock(cur)
			f.ioCond.L.Lock()
			// Re-check under the wait lock to avoid a missed wakeup: the
			// broadcaster takes f.ioMu too (see terminateIO).
			for bufState(f.state.load()).has(bitIOInProgress) {
				f.ioCond.Wait()
			}
			f.ioCond.L.Unlock()
			continue
		}

		if forInput && cur.has(bitValid) {
			f.state.unlock(cur)
			return false
		}
		if !forInput && !cur.has(bitDirty) {
			f.state.unlock(cur)
			return false
		}

		f.state.unlock(cur | bitIOInProgress)
		return true
	}
}

// terminateIO implements §4.6 terminate_io: clears IO_IN_PROGRESS and
// IO_ERROR, optionally clears DIRTY (only if JUST_DIRTIED is not set — a
// frame re-dirtied mid-flush must stay dirty so it gets rewritten later),
// ORs in setBits (typically VALID), then broadcasts the I/O condition
// variable.
func terminateIO(f *frame, clearDirty bool, setBits bufState) {
	cur := f.state.lock()
	next := cur &^ (bitIOInProgress | bitIOError)
	if clearDirty && !cur.has(bitJustDirtied) {
		next &^= bitDirty
	}
	next &^= bitJustDirtied
	next |= setBits
	f.state.unlock(next)
	f.ioErrCount = 0

	f.ioCond.L.Lock()
	f.ioCond.Broadcast()
	f.ioCond.L.Unlock()
}

// abortIO implements §4.6 abort_io: identical to terminate_io but leaves
// IO_ERROR set so the next touch of the frame retries the I/O (§7 "I/O
// errors leave the frame with IO_ERROR and IO_IN_PROGRESS cleared").
// Repeated failures are logged.
func abortIO(f *frame, tag Tag) {
	cur := f.state.lock()
	next := (cur &^ bitIOInProgress) | bitIOError
	next &^= bitJustDirtied
	f.state.unlock(next)
	f.ioErrCount++
	if f.ioErrCount > 1 {
		slog.Warn(logDebugPrefix+"repeated I/O failure on frame", "tag", tag, "frame", f.index, "failures", f.ioErrCount)
	}

	f.ioCond.L.Lock()
	f.ioCond.Broadcast()
	f.ioCond.L.Unlock()
}
