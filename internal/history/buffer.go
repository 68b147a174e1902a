// Package history keeps a bounded, newest-first record of received messages.
package history

import (
	"sync"

	"mqtt-live-feed/internal/message"
)

// DefaultCapacity is the number of messages kept when no capacity is given
const DefaultCapacity = 50

// Buffer is a fixed-capacity ring of messages. Pushes preserve arrival order
// and evict the oldest entry once the ring is full. A message whose ID is
// already held is not stored twice. Safe for concurrent use.
type Buffer struct {
	mu       sync.RWMutex
	buf      []message.InboundMessage
	head     int // index of the newest entry
	count    int
	capacity int
	ids      map[string]struct{}
}

// NewBuffer creates a buffer holding at most capacity messages
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		buf:      make([]message.InboundMessage, capacity),
		head:     -1,
		capacity: capacity,
		ids:      make(map[string]struct{}, capacity),
	}
}

// Push inserts msg as the newest entry. It returns false if a message with
// the same ID is already buffered.
func (b *Buffer) Push(msg message.InboundMessage) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.ids[msg.ID]; dup {
		return false
	}

	b.head = (b.head + 1) % b.capacity
	if b.count == b.capacity {
		// slot at head holds the oldest entry
		delete(b.ids, b.buf[b.head].ID)
	} else {
		b.count++
	}

	b.buf[b.head] = msg
	b.ids[msg.ID] = struct{}{}
	return true
}

// Snapshot returns a copy of the contents, newest first
func (b *Buffer) Snapshot() []message.InboundMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]message.InboundMessage, b.count)
	for i := 0; i < b.count; i++ {
		idx := (b.head - i + b.capacity) % b.capacity
		out[i] = b.buf[idx]
	}
	return out
}

// Len returns the number of buffered messages
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the maximum number of buffered messages
func (b *Buffer) Cap() int {
	return b.capacity
}
