// Package eventbus provides the in-memory broadcast channel that
// decouples the transport from command handlers.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure); drops are
//     counted so the owner can log them.
//
// Every subscriber receives every event published after it joined; there
// is no replay and no delivery guarantee for late joiners.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// Bus is a typed fanout bus. The zero value is not usable; use New.
type Bus[T any] struct {
	mu   sync.RWMutex
	subs map[uint64]chan T
	seq  atomic.Uint64

	dropped atomic.Uint64
}

func New[T any]() *Bus[T] {
	return &Bus[T]{subs: map[uint64]chan T{}}
}

// Publish delivers e to all current subscribers without blocking.
// A subscriber whose buffer is full loses this event.
func (b *Bus[T]) Publish(e T) {
	// Snapshot subscribers so Publish doesn't hold locks while sending.
	b.mu.RLock()
	chs := make([]chan T, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// If a subscriber unsubscribes concurrently and the channel
		// closes, recover from the send panic.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
				b.dropped.Add(1)
			}
		}()
	}
}

// Subscribe registers a new subscriber with the given buffer size and
// returns its channel plus an idempotent unsubscribe func.
func (b *Bus[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan T, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}

// Dropped returns and resets the dropped-event counter. The owner is
// expected to flush this into a periodic warning log.
func (b *Bus[T]) Dropped() uint64 { return b.dropped.Swap(0) }

// Subscribers reports the current subscriber count.
func (b *Bus[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
