package bufferpool

import (
	"log/slog"
	"sync/atomic"
)

// clockSweep is the shared clock-hand state driving victim selection
// (§4.3). The cursor and pass counter are process-wide; the algorithm
// itself reads/writes each candidate frame's own state word directly, so
// there is no separate per-frame bookkeeping structure the way a generic
// LRU/CLOCK replacer would keep one (contrast with pkg/clockx, reused
// instead for the process-local pool — see DESIGN.md).
type clockSweep struct {
	cursor atomic.Uint64
	passes atomic.Uint64
	frames *framePool
}

func newClockSweep(frames *framePool) *clockSweep {
	return &clockSweep{frames: frames}
}

// getVictim implements §4.3's loop. On success it returns the frame with
// its header spinlock still held and REFCOUNT == 0; the caller becomes
// the pinner via pinLocked. On failure (no replaceable frame found after
// two full passes' worth of steps) it returns ErrNoUnpinnedBuffers.
func (c *clockSweep) getVictim() (*frame, error) {
	n := uint64(c.frames.size())
	if n == 0 {
		return nil, ErrNoUnpinnedBuffers
	}

	limit := 2 * n
	for steps := uint64(0); steps < limit; steps++ {
		i := c.cursor.Add(1) - 1
		if i%n == 0 {
			c.passes.Add(1)
		}
		f := c.frames.at(int32(i % n))

		cur := f.state.lock()
		if cur.refCount() == 0 {
			if u := cur.usageCount(); u > 0 {
				f.state.unlock(cur.withUsageCount(u - 1))
				continue
			}
			// Found: return with the spinlock still held.
			return f, nil
		}
		f.state.unlock(cur)
	}

	slog.Warn(logDebugPrefix+"clock sweep found no replaceable frame", "frames", n, "passes", c.passes.Load())
	return nil, ErrNoUnpinnedBuffers
}
