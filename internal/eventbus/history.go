package eventbus

import (
	"context"
	"sync"
)

// History keeps the most recent events of a bus in a fixed-size ring.
type History struct {
	mu   sync.Mutex
	buf  []Event
	next int
	full bool
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = 100
	}
	return &History{buf: make([]Event, size)}
}

func (h *History) Add(e Event) {
	h.mu.Lock()
	h.buf[h.next] = e
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
	h.mu.Unlock()
}

// Recent returns up to n events, newest first. n <= 0 returns all kept events.
func (h *History) Recent(n int) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	size := h.next
	if h.full {
		size = len(h.buf)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Event, 0, n)
	for i := 1; i <= n; i++ {
		idx := (h.next - i + len(h.buf)) % len(h.buf)
		out = append(out, h.buf[idx])
	}
	return out
}

// Follow subscribes to bus immediately and returns the loop that records
// its events until ctx is done. Events published between Follow and the
// loop starting are buffered, not lost.
func (h *History) Follow(bus Bus) func(ctx context.Context) {
	events, unsub := bus.Subscribe(128)
	return func(ctx context.Context) {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				h.Add(e)
			}
		}
	}
}
