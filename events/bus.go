package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// Bus is the in-process publisher. Delivery never blocks the publisher: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscription
	nextId  int
	dropped atomic.Int64
}

type subscription struct {
	ch    chan DocumentChanged
	kinds map[string]bool
}

func NewBus() *Bus {
	return &Bus{subs: map[int]*subscription{}}
}

// Subscribe returns a channel of events for the given kinds (all kinds when
// none are given) and a cancel func that closes it.
func (b *Bus) Subscribe(buffer int, kinds ...string) (<-chan DocumentChanged, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &subscription{ch: make(chan DocumentChanged, buffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[string]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	b.mu.Lock()
	id := b.nextId
	b.nextId++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

func (b *Bus) Publish(_ context.Context, evt DocumentChanged) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.kinds != nil && !sub.kinds[evt.Kind] {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Dropped counts events a full subscriber buffer did not take.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
