// Package governor implements the buffer-count back-pressure semaphore that
// bounds the number of hardware-decoded buffers alive outside a decoder.
//
// It is grounded directly on original_source/decoder_vt.c's
// bufcount_context / bufcount_create / bufcount_update_max /
// bufcount_update_ref: two counters, a mutex and a condition variable, with
// the "context holds one reference" convention kept verbatim (refcount
// starts at 1, refmax starts one above its configured base).
package governor

import "sync"

// Governor bounds refcount by refmax: 0 <= refcount <= refmax at every
// observation boundary. It is a leaf lock: no method calls out to other
// locked code while holding its own mutex.
type Governor struct {
	mu   sync.Mutex
	cond *sync.Cond

	refcount int
	refmax   int

	destroyOnce sync.Once
	onDestroy   func()
}

// New creates a governor with one logical holder (the decoding context
// itself) and refmax = maxInFlight + 1, matching the original's
// "refcount = 1; refmax = base + 1" convention. Since AdjustRef(+1) blocks
// once refcount would reach refmax, refcount can rise to maxInFlight: the
// context's own reference plus maxInFlight-1 buffers.
func New(maxInFlight int, onDestroy func()) *Governor {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	g := &Governor{
		refcount:  1,
		refmax:    maxInFlight + 1,
		onDestroy: onDestroy,
	}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// RefCount returns the current reference count.
func (g *Governor) RefCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refcount
}

// RefMax returns the current cap.
func (g *Governor) RefMax() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refmax
}

// AdjustMax changes refmax by delta. Called with +1 when a frame enters the
// reorder buffer's bookkeeping and -1 when one leaves it, so the cap tracks
// however much lookahead the reorder step is currently buffering.
func (g *Governor) AdjustMax(delta int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refmax += delta
	g.cond.Broadcast()
}

// AdjustRef changes refcount by delta. A positive delta that would bring
// refcount to or past refmax blocks until a concurrent release (or a raised
// cap) makes room. If refcount reaches zero, the governor self-destructs:
// onDestroy fires exactly once. Later calls still adjust the counters but
// never fire onDestroy again.
//
// Every buffer release path (frame destruction) calls AdjustRef(-1); every
// decode callback that hands a new buffer to the reorder buffer calls
// AdjustRef(+1).
func (g *Governor) AdjustRef(delta int) {
	g.mu.Lock()

	if delta > 0 {
		for g.refcount+delta >= g.refmax {
			g.cond.Wait()
		}
	}

	g.refcount += delta
	reachedZero := g.refcount <= 0
	g.cond.Broadcast()
	g.mu.Unlock()

	if reachedZero {
		g.destroy()
	}
}

func (g *Governor) destroy() {
	g.destroyOnce.Do(func() {
		if g.onDestroy != nil {
			g.onDestroy()
		}
	})
}
