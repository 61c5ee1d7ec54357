package client

import "sync"

// Cell is an observable value container. Subscribers are invoked
// synchronously on every change, after the new value is stored. It is
// the explicit stand-in for framework-level reactive state.
type Cell[T any] struct {
	mu    sync.Mutex
	value T
	subs  map[int]func(T)
	next  int
}

// NewCell returns a Cell seeded with v.
func NewCell[T any](v T) *Cell[T] {
	return &Cell[T]{value: v, subs: make(map[int]func(T))}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set stores v and notifies every subscriber.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	fns := make([]func(T), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// Update applies f to the current value under the lock and notifies
// subscribers with the result.
func (c *Cell[T]) Update(f func(T) T) {
	c.mu.Lock()
	c.value = f(c.value)
	v := c.value
	fns := make([]func(T), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// Subscribe registers fn and returns an unsubscribe func. fn is not
// called with the current value; only future changes.
func (c *Cell[T]) Subscribe(fn func(T)) func() {
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}
