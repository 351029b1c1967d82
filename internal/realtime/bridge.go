package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"secops-dashboard/internal/metrics"
	"secops-dashboard/internal/util"
)

// InsertHandler receives insert events for one table.
type InsertHandler func(ChangeEvent)

// Unsubscribe releases a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Bridge adapts an EventSource to per-table insert callbacks. Every
// Subscribe call opens its own stream; nothing is shared or deduplicated.
type Bridge struct {
	source  EventSource
	logger  *zap.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[string]*subscription
}

type subscription struct {
	id     string
	table  string
	stream Stream
	once   sync.Once
}

func NewBridge(source EventSource, logger *zap.Logger, m *metrics.Metrics) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		source:  source,
		logger:  logger,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		subs:    make(map[string]*subscription),
	}
}

// Subscribe delivers every insert on table to onInsert from a dedicated
// goroutine. If the source is unavailable the failure is logged and a no-op
// handle is returned.
func (b *Bridge) Subscribe(table string, onInsert InsertHandler) Unsubscribe {
	if b.source == nil {
		b.logger.Warn("Realtime subscriptions require an event source", util.String("table", table))
		return func() {}
	}

	stream, err := b.source.Subscribe(b.ctx, Filter{Table: table, Event: EventInsert})
	if err != nil {
		b.logger.Warn("Realtime subscription failed",
			util.String("table", table),
			util.ErrorField(err),
		)
		return func() {}
	}

	sub := &subscription{id: uuid.NewString(), table: table, stream: stream}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	b.metrics.SubscriptionOpened()

	b.logger.Debug("Realtime subscription opened",
		util.String("table", table),
		util.String("subscription_id", sub.id),
	)

	go b.pump(sub, onInsert)

	return func() { b.release(sub) }
}

// UnsubscribeAll releases every open subscription.
func (b *Bridge) UnsubscribeAll() {
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		b.release(sub)
	}
}

// Close releases every subscription and stops pending source calls.
func (b *Bridge) Close() {
	b.UnsubscribeAll()
	b.cancel()
}

// Len reports the number of open subscriptions.
func (b *Bridge) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bridge) release(sub *subscription) {
	sub.once.Do(func() {
		b.mu.Lock()
		delete(b.subs, sub.id)
		b.mu.Unlock()

		if err := sub.stream.Close(); err != nil {
			b.logger.Warn("Realtime stream close failed",
				util.String("table", sub.table),
				util.ErrorField(err),
			)
		}
		b.metrics.SubscriptionClosed()
	})
}

func (b *Bridge) pump(sub *subscription, onInsert InsertHandler) {
	for {
		select {
		case <-sub.stream.Done():
			return
		case ev := <-sub.stream.Events():
			if ev.Type != EventInsert || ev.Table != sub.table {
				continue
			}
			b.metrics.RealtimeEvent(ev.Table, string(ev.Type))
			b.dispatch(sub, onInsert, ev)
		}
	}
}

func (b *Bridge) dispatch(sub *subscription, onInsert InsertHandler, ev ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Realtime handler panicked",
				util.String("table", sub.table),
				util.Any("panic", r),
			)
		}
	}()
	onInsert(ev)
}
