package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Broker fans events out to subscribers. Publishing never blocks: events
// for a slow subscriber are dropped and counted.
type Broker struct {
	mu      sync.RWMutex
	subs    map[chan Event]struct{}
	dropped atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan Event]struct{})}
}

func (b *Broker) Subscribe(buf int) chan Event {
	if buf <= 0 {
		buf = 100
	}
	ch := make(chan Event, buf)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	return ch
}

func (b *Broker) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Publish delivers the event to all subscribers. A nil broker is a no-op,
// so library callers can run without a sink wired up.
func (b *Broker) Publish(ev Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			count := b.dropped.Add(1)
			if count == 1 || count%100 == 0 {
				slog.Warn("events: dropped event on slow subscriber",
					"type", ev.Type, "total_dropped", count)
			}
		}
	}
}

// DroppedCount returns the total number of events dropped due to slow
// subscribers.
func (b *Broker) DroppedCount() int64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}
