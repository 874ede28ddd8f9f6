package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/mr1hm/go-quake-safety/internal/models"
)

// SubscriberBuffer is how many undelivered events a subscriber may lag by
// before new events are dropped for it.
const SubscriberBuffer = 100

type subscriber struct {
	ch           chan *models.Earthquake
	minMagnitude float64
}

// Broadcaster fans newly ingested earthquakes out to live subscribers.
type Broadcaster struct {
	subscribers map[uint64]subscriber
	nextID      atomic.Uint64
	dropped     atomic.Uint64
	closed      bool
	mu          sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]subscriber),
	}
}

// Subscribe registers a subscriber for events at or above minMagnitude.
// After Close the returned channel is already closed.
func (b *Broadcaster) Subscribe(minMagnitude float64) (uint64, <-chan *models.Earthquake) {
	id := b.nextID.Add(1)
	ch := make(chan *models.Earthquake, SubscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = subscriber{ch: ch, minMagnitude: minMagnitude}

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Broadcast delivers e to every interested subscriber without blocking and
// returns how many received it.
func (b *Broadcaster) Broadcast(e *models.Earthquake) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.subscribers {
		if e.Magnitude < sub.minMagnitude {
			continue
		}
		select {
		case sub.ch <- e:
			delivered++
		default:
			// Skip slow subscribers
			b.dropped.Add(1)
		}
	}
	return delivered
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels, causing streams to exit gracefully
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}
