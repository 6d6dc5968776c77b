// Package bridge carries worker outcomes onto the single consuming loop.
//
// Send may be called from any goroutine and never blocks beyond a bounded
// enqueue. Drain must only be called from the loop that owns UI and domain
// state; it returns events in strict arrival order.
package bridge

import (
	"sync"

	"github.com/rs/zerolog/log"

	"edo/pkg/events"
)

const DefaultCapacity = 256

type Bridge struct {
	mu       sync.Mutex
	queue    []events.Event
	capacity int
	closed   bool

	// overflowQueued keeps a single QueueOverflow diagnostic in the queue no
	// matter how many producers outrun the consumer before the next drain.
	overflowQueued bool
	dropped        int

	notify chan struct{}
}

func New(capacity int) *Bridge {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bridge{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Send enqueues an event for the consuming loop. After Close it is a silent
// no-op; the event is discarded.
func (b *Bridge) Send(ev events.Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if len(b.queue) >= b.capacity {
		b.dropOldestLocked()
	}
	b.queue = append(b.queue, ev)
	b.mu.Unlock()
	b.wake()
}

// dropOldestLocked evicts the oldest event that does not carry a terminal
// turn outcome, so a turn never loses its single terminal transition to
// backpressure. If only terminal events remain the oldest one goes anyway.
// A QueueOverflow diagnostic is synthesized once per drain cycle.
func (b *Bridge) dropOldestLocked() {
	idx := -1
	for i, ev := range b.queue {
		if !ev.TurnTerminal() && ev.Kind != events.KindQueueOverflow {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = 0
	}
	dropped := b.queue[idx]
	b.queue = append(b.queue[:idx], b.queue[idx+1:]...)
	b.dropped++
	log.Warn().
		Str("kind", string(dropped.Kind)).
		Int64("turn_id", dropped.TurnID).
		Int("dropped_total", b.dropped).
		Msg("bridge over capacity, dropping oldest event")
	if !b.overflowQueued {
		b.overflowQueued = true
		diag := events.New(events.KindQueueOverflow, 0)
		diag.Fields = map[string]any{"dropped": b.dropped}
		b.queue = append(b.queue, diag)
	}
}

// Drain returns all queued events in arrival order. Consuming loop only.
func (b *Bridge) Drain() []events.Event {
	b.mu.Lock()
	out := b.queue
	b.queue = nil
	b.overflowQueued = false
	b.mu.Unlock()
	return out
}

// Notify yields at most one pending wakeup per batch of sends. Wait on it,
// then Drain.
func (b *Bridge) Notify() <-chan struct{} {
	return b.notify
}

// Close makes all further Sends no-ops. One-way, called at process exit.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wake()
}

func (b *Bridge) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Bridge) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
