package realtime

import "sync"

type Order int

const (
	// NewestFirst prepends and evicts from the tail.
	NewestFirst Order = iota
	// OldestFirst appends and evicts from the head.
	OldestFirst
)

// Buffer is a bounded list of the most recent items.
type Buffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	order    Order
}

func NewBuffer[T any](capacity int, order Order) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
		order:    order,
	}
}

func (b *Buffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.order == NewestFirst {
		b.items = append(b.items, item)
		copy(b.items[1:], b.items[:len(b.items)-1])
		b.items[0] = item
		if len(b.items) > b.capacity {
			b.items = b.items[:b.capacity]
		}
		return
	}

	b.items = append(b.items, item)
	if over := len(b.items) - b.capacity; over > 0 {
		b.items = append(b.items[:0], b.items[over:]...)
	}
}

// Reset replaces the contents, keeping the most recent items given the
// buffer's order.
func (b *Buffer[T]) Reset(items []T) {
	if len(items) > b.capacity {
		if b.order == NewestFirst {
			items = items[:b.capacity]
		} else {
			items = items[len(items)-b.capacity:]
		}
	}
	next := make([]T, len(items), b.capacity)
	copy(next, items)

	b.mu.Lock()
	b.items = next
	b.mu.Unlock()
}

// Snapshot returns a copy of the current contents.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}
