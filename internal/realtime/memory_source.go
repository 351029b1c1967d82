package realtime

import (
	"context"
	"sync"
)

const streamBuffer = 64

// MemorySource is an in-process EventSource. Fixture mode publishes inserts
// through it.
type MemorySource struct {
	mu     sync.Mutex
	subs   map[uint64]*memorySub
	next   uint64
	closed bool
}

type memorySub struct {
	filter Filter
	stream *ChanStream
}

var _ EventSource = (*MemorySource)(nil)

func NewMemorySource() *MemorySource {
	return &MemorySource{subs: make(map[uint64]*memorySub)}
}

func (m *MemorySource) Subscribe(_ context.Context, filter Filter) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrSourceClosed
	}
	id := m.next
	m.next++
	stream := NewChanStream(streamBuffer, func() { m.remove(id) })
	m.subs[id] = &memorySub{filter: filter, stream: stream}
	return stream, nil
}

// Publish delivers ev to every matching stream and reports how many
// received it.
func (m *MemorySource) Publish(ctx context.Context, ev ChangeEvent) int {
	m.mu.Lock()
	targets := make([]*ChanStream, 0, len(m.subs))
	for _, sub := range m.subs {
		if sub.filter.Matches(ev) {
			targets = append(targets, sub.stream)
		}
	}
	m.mu.Unlock()

	delivered := 0
	for _, s := range targets {
		if s.Deliver(ctx, ev) {
			delivered++
		}
	}
	return delivered
}

// Subscribers reports the number of open streams.
func (m *MemorySource) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *MemorySource) Close() error {
	m.mu.Lock()
	m.closed = true
	streams := make([]*ChanStream, 0, len(m.subs))
	for _, sub := range m.subs {
		streams = append(streams, sub.stream)
	}
	m.mu.Unlock()

	for _, s := range streams {
		_ = s.Close()
	}
	return nil
}

func (m *MemorySource) remove(id uint64) {
	m.mu.Lock()
	delete(m.subs, id)
	m.mu.Unlock()
}
