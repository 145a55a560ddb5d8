package graph

import (
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/pkg/frame"
)

// A TapFunc observes the mono signal at the graph's input point.
//
// It runs on the real-time thread: it must not block, and must copy the
// frame if it needs the samples after returning. position counts frames
// since the handle was built.
type TapFunc func(samples frame.PCMFrame, position uint64)

type TapID uint64

type tap struct {
	id TapID
	fn TapFunc
}

// Install a tap on the input point. Only allowed while the handle is Running.
//
// The tap list is replaced wholesale (copy on write), so the audio thread
// never sees a partially updated list and never takes a lock.
func (h *Handle) InstallTap(fn TapFunc) (TapID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return 0, &GraphError{Op: "install tap", HandleID: h.id, Err: ErrHandleReleased}
	}
	if h.state != Running {
		return 0, &GraphError{Op: "install tap", HandleID: h.id, Err: ErrNotRunning}
	}

	h.nextTapID++
	id := h.nextTapID

	current := h.taps.Load()
	next := make([]tap, 0, len(*current)+1)
	next = append(next, *current...)
	next = append(next, tap{id: id, fn: fn})
	h.taps.Store(&next)

	h.logger.Debug("installed tap", "tapID", id, "taps", len(next))
	return id, nil
}

// Remove a tap. Removing an unknown tap is a no-op.
//
// A callback that loaded the old list before the swap may still run the
// removed tap once more; taps that own resources must guard against that
// themselves.
func (h *Handle) RemoveTap(id TapID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeTapLocked(id)
}

func (h *Handle) removeTapLocked(id TapID) {
	current := h.taps.Load()
	next := make([]tap, 0, len(*current))
	for _, t := range *current {
		if t.id != id {
			next = append(next, t)
		}
	}
	if len(next) == len(*current) {
		return
	}
	h.taps.Store(&next)
	h.logger.Debug("removed tap", "tapID", id, "taps", len(next))
}

// The number of taps currently installed.
func (h *Handle) TapCount() int {
	return len(*h.taps.Load())
}
