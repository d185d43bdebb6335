package scheduler

import (
	"sync"
	"time"
)

// Handle cancels a scheduled activity. Cancellation is best-effort: it
// guarantees that no execution which has not yet started will start, has
// no effect on an execution already in flight, and is a harmless no-op
// after the work has completed. Cancel may be called any number of
// times from any goroutine.
//
// The Service does not retain handles; whoever schedules the work owns
// its handle.
type Handle struct {
	once sync.Once
	done chan struct{}

	mu    sync.Mutex
	timer *time.Timer // one-shot schedules only
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) setTimer(t *time.Timer) {
	h.mu.Lock()
	h.timer = t
	h.mu.Unlock()
}

// Cancel stops all future executions.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		close(h.done)
		h.mu.Lock()
		t := h.timer
		h.mu.Unlock()
		if t != nil {
			_ = t.Stop()
		}
	})
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
