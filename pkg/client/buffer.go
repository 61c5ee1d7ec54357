package client

import "sync"

// BufferState is one resource's optimistic local edit state.
type BufferState struct {
	// Text is the locally displayed value, which may be ahead of the
	// last committed remote value.
	Text string
	// Cursor is the caret position in runes.
	Cursor int
	// Base is the last remote value this buffer was derived from.
	Base string
	// Dirty is true while local edits have not been committed.
	Dirty bool
}

// Buffers tracks optimistic edit state per resource key. Local input
// lands here instantly; the debounce scheduler drains it toward the
// server, and reconciliation folds remote updates back in.
type Buffers struct {
	mu sync.Mutex
	m  map[string]*BufferState
}

// NewBuffers returns an empty buffer set.
func NewBuffers() *Buffers {
	return &Buffers{m: make(map[string]*BufferState)}
}

// Edit records a local edit: the value shows immediately and the
// buffer turns dirty.
func (b *Buffers) Edit(key, text string, cursor int) BufferState {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.m[key]
	if !ok {
		st = &BufferState{}
		b.m[key] = st
	}
	st.Text = text
	st.Cursor = cursor
	st.Dirty = true
	return *st
}

// Get returns the buffer for key and whether one exists.
func (b *Buffers) Get(key string) (BufferState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.m[key]
	if !ok {
		return BufferState{}, false
	}
	return *st, true
}

// MarkCommitted clears the dirty flag after the scheduler drained the
// buffer; the text stays as the optimistic display value.
func (b *Buffers) MarkCommitted(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.m[key]; ok {
		st.Dirty = false
		st.Base = st.Text
	}
}

// Replace installs reconciled state for key.
func (b *Buffers) Replace(key string, st BufferState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := st
	b.m[key] = &cp
}

// Drop discards the buffer for key entirely.
func (b *Buffers) Drop(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.m, key)
}
