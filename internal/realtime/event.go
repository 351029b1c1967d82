// Package realtime bridges database change events into bounded in-memory
// feeds that the dashboard reads and streams to WebSocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
)

// Tables the dashboard follows.
const (
	TableAlerts    = "threat_alerts"
	TableTraffic   = "network_traffic"
	TableAnomalies = "anomaly_logs"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	EventAll    EventType = "*"
)

var ErrSourceClosed = errors.New("event source closed")

// ChangeEvent is one row change. Record holds the new row as JSON and
// OldRecord the previous row for updates and deletes.
type ChangeEvent struct {
	Table      string          `json:"table"`
	Type       EventType       `json:"type"`
	Record     json.RawMessage `json:"record,omitempty"`
	OldRecord  json.RawMessage `json:"old_record,omitempty"`
	CommitTime time.Time       `json:"commit_timestamp"`
}

type Filter struct {
	Table string
	Event EventType
}

func (f Filter) Matches(ev ChangeEvent) bool {
	if f.Table != "" && f.Table != ev.Table {
		return false
	}
	if f.Event == "" || f.Event == EventAll {
		return true
	}
	return strings.EqualFold(string(f.Event), string(ev.Type))
}

// Stream is one subscription's event channel. Events is never closed;
// consumers stop when Done is closed.
type Stream interface {
	Events() <-chan ChangeEvent
	Done() <-chan struct{}
	Close() error
}

// EventSource opens independent streams of change events.
type EventSource interface {
	Subscribe(ctx context.Context, filter Filter) (Stream, error)
}

// ChanStream is a Stream backed by a buffered channel. Sources push into it
// with Deliver.
type ChanStream struct {
	events  chan ChangeEvent
	done    chan struct{}
	once    sync.Once
	release func()
}

var _ Stream = (*ChanStream)(nil)

// NewChanStream creates a stream; release runs once when it is closed.
func NewChanStream(buffer int, release func()) *ChanStream {
	return &ChanStream{
		events:  make(chan ChangeEvent, buffer),
		done:    make(chan struct{}),
		release: release,
	}
}

func (s *ChanStream) Events() <-chan ChangeEvent { return s.events }

func (s *ChanStream) Done() <-chan struct{} { return s.done }

// Deliver blocks until the event is queued, the stream is closed or ctx ends.
func (s *ChanStream) Deliver(ctx context.Context, ev ChangeEvent) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *ChanStream) Close() error {
	s.once.Do(func() {
		close(s.done)
		if s.release != nil {
			s.release()
		}
	})
	return nil
}
