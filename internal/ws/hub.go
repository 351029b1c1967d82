// Package ws pushes realtime frames to connected dashboard clients.
package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"secops-dashboard/internal/metrics"
	"secops-dashboard/internal/realtime"
	"secops-dashboard/internal/util"
)

// Subscriber abstracts a streaming client. Send must not block; the hub
// drops a subscriber whose Send fails.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Frame is the envelope of every message written to clients.
type Frame struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Data  any    `json:"data"`
}

// Hub fans frames out to every registered subscriber. All membership
// changes and sends happen on the run goroutine.
type Hub struct {
	clients   map[Subscriber]struct{}
	register  chan Subscriber
	unreg     chan Subscriber
	broadcast chan []byte
	count     chan chan int
	done      chan struct{}
	closeOnce sync.Once

	logger  *zap.Logger
	metrics *metrics.Metrics
}

var _ realtime.Broadcaster = (*Hub)(nil)

func NewHub(logger *zap.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		clients:   make(map[Subscriber]struct{}),
		register:  make(chan Subscriber),
		unreg:     make(chan Subscriber),
		broadcast: make(chan []byte, 64),
		count:     make(chan chan int),
		done:      make(chan struct{}),
		logger:    logger,
		metrics:   m,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.metrics.WSClients(len(h.clients))
		case c := <-h.unreg:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.Close()
				h.metrics.WSClients(len(h.clients))
			}
		case payload := <-h.broadcast:
			for c := range h.clients {
				if err := c.Send(payload); err != nil {
					h.logger.Debug("dropping websocket client", util.ErrorField(err))
					c.Close()
					delete(h.clients, c)
				}
			}
			h.metrics.WSClients(len(h.clients))
		case reply := <-h.count:
			reply <- len(h.clients)
		case <-h.done:
			for c := range h.clients {
				c.Close()
				delete(h.clients, c)
			}
			h.metrics.WSClients(0)
			return
		}
	}
}

// Register adds a client. It is a no-op once the hub is closed.
func (h *Hub) Register(c Subscriber) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

// Unregister removes and closes a client.
func (h *Hub) Unregister(c Subscriber) {
	select {
	case h.unreg <- c:
	case <-h.done:
	}
}

// Broadcast encodes a frame and queues it for every client.
func (h *Hub) Broadcast(topic, kind string, data any) {
	payload, err := json.Marshal(Frame{Topic: topic, Type: kind, Data: data})
	if err != nil {
		h.logger.Warn("failed to encode websocket frame",
			util.String("topic", topic),
			util.ErrorField(err))
		return
	}
	select {
	case h.broadcast <- payload:
	case <-h.done:
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Close disconnects every client and stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
