package history

import "chatrelay/pkg/types"

// DefaultCapacity is the per-room history bound. It doubles as the store
// fetch limit on room hydration so a freshly created room starts at exactly
// the page the buffer can hold.
const DefaultCapacity = 250

// Buffer is a fixed-capacity, insertion-ordered ring of presented messages.
// Pushing beyond capacity evicts the oldest entry. Buffer is not safe for
// concurrent use; the owning room serializes access to it.
type Buffer struct {
	entries []*types.Message
	start   int
	count   int
}

// New creates a buffer holding at most capacity messages. A capacity below
// one falls back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer{entries: make([]*types.Message, capacity)}
}

// Push appends a message, evicting the oldest entry once the buffer is full.
func (b *Buffer) Push(msg *types.Message) {
	idx := (b.start + b.count) % len(b.entries)
	b.entries[idx] = msg
	if b.count < len(b.entries) {
		b.count++
		return
	}
	// Full: the slot just written replaced the oldest entry.
	b.start = (b.start + 1) % len(b.entries)
}

// Len returns the number of buffered messages.
func (b *Buffer) Len() int {
	return b.count
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.entries)
}

// Messages returns the buffered messages oldest-first. The slice is a copy;
// mutating it does not affect the buffer.
func (b *Buffer) Messages() []*types.Message {
	out := make([]*types.Message, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.entries[(b.start+i)%len(b.entries)]
	}
	return out
}
