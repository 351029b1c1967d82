// Package nats consumes change events published on NATS subjects.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"secops-dashboard/internal/client"
	"secops-dashboard/internal/realtime"
	"secops-dashboard/internal/util"
)

const streamBuffer = 64

// ChangeSource subscribes to {prefix}.{table}. Messages published while
// nobody is subscribed are not replayed.
type ChangeSource struct {
	client *client.NATSClient
	prefix string
	logger *zap.Logger
}

var _ realtime.EventSource = (*ChangeSource)(nil)

func NewChangeSource(c *client.NATSClient, prefix string, logger *zap.Logger) *ChangeSource {
	return &ChangeSource{client: c, prefix: prefix, logger: logger}
}

func (s *ChangeSource) Subject(table string) string {
	return s.prefix + "." + table
}

func (s *ChangeSource) Subscribe(_ context.Context, filter realtime.Filter) (realtime.Stream, error) {
	if filter.Table == "" {
		return nil, fmt.Errorf("nats change source requires a table")
	}
	ctx, cancel := context.WithCancel(context.Background())

	var sub *natsgo.Subscription
	stream := realtime.NewChanStream(streamBuffer, func() {
		cancel()
		if sub != nil {
			if err := sub.Unsubscribe(); err != nil {
				s.logger.Debug("nats unsubscribe failed", util.ErrorField(err))
			}
		}
	})

	sub, err := s.client.Conn.Subscribe(s.Subject(filter.Table), func(msg *natsgo.Msg) {
		ev, err := decodeMessage(msg.Data, filter.Table)
		if err != nil {
			s.logger.Warn("dropping malformed change message",
				util.String("subject", msg.Subject),
				util.ErrorField(err))
			return
		}
		if filter.Matches(ev) {
			stream.Deliver(ctx, ev)
		}
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("nats subscribe %s: %w", s.Subject(filter.Table), err)
	}
	return stream, nil
}

func decodeMessage(data []byte, table string) (realtime.ChangeEvent, error) {
	var ev realtime.ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return realtime.ChangeEvent{}, err
	}
	if ev.Table == "" {
		ev.Table = table
	}
	if ev.Type == "" {
		ev.Type = realtime.EventInsert
	}
	if ev.CommitTime.IsZero() {
		ev.CommitTime = time.Now().UTC()
	}
	return ev, nil
}
