package receiver

import (
	"sync"
	"sync/atomic"
)

// Broadcaster fans events out to subscribers. A subscriber that falls
// behind loses events rather than stalling the read loop; losses are
// counted.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

func (b *Broadcaster) Subscribe(buffer int) (int, <-chan Event) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return -1, ch
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	return id, ch
}

func (b *Broadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Publish(ev Event) {
	if b == nil {
		return
	}
	b.published.Add(1)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Close closes every subscription channel. Later Publish calls are no-ops
// for former subscribers.
func (b *Broadcaster) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

type BroadcastStats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

func (b *Broadcaster) Stats() BroadcastStats {
	if b == nil {
		return BroadcastStats{}
	}
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return BroadcastStats{Subscribers: n, Published: b.published.Load(), Dropped: b.dropped.Load()}
}
