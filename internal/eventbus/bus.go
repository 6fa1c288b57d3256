package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

const TypeReminderFired = "reminder.fired"

const defaultBuffer = 8

// Event is a small in-process notification. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Event struct {
	Type       string    `json:"type"`
	Time       time.Time `json:"time"`
	ReminderID string    `json:"reminder_id,omitempty"`
	Outcome    string    `json:"outcome,omitempty"` // e.g. "delivered", "retired"
}

type Publisher interface {
	Publish(e Event)
}

type Bus interface {
	Publisher
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
	// Dropped counts events lost to full subscriber buffers.
	Dropped() uint64
}

func New() Bus {
	return &fanout{subs: map[*subscriber]struct{}{}}
}

type subscriber struct {
	ch chan Event
}

type fanout struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	dropped atomic.Uint64
}

func (b *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// sends happen under the read lock so unsubscribe cannot close a
	// channel mid-send
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	return s.ch, sync.OnceFunc(func() {
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	})
}

func (b *fanout) Dropped() uint64 { return b.dropped.Load() }
