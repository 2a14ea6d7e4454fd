package store

import (
	"context"
	"sync"
)

// FilterChanged is published whenever the list predicate changes.
type FilterChanged struct {
	Predicate map[string]string
}

// Bus delivers events synchronously to subscribers in subscription order.
type Bus[E any] struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(context.Context, E)
	order  []int
}

// NewBus returns an empty bus.
func NewBus[E any]() *Bus[E] {
	return &Bus[E]{subs: make(map[int]func(context.Context, E))}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus[E]) Subscribe(fn func(context.Context, E)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.order = append(b.order, id)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

// Publish calls every subscriber with ev. Subscribers may publish or
// subscribe re-entrantly.
func (b *Bus[E]) Publish(ctx context.Context, ev E) {
	b.mu.Lock()
	fns := make([]func(context.Context, E), 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ctx, ev)
	}
}
