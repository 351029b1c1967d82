// Package kafka publishes new alerts and consumes change events from Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"secops-dashboard/internal/client"
	"secops-dashboard/internal/config"
	"secops-dashboard/internal/models"
	"secops-dashboard/internal/realtime"
	"secops-dashboard/internal/repository"
	"secops-dashboard/internal/util"
)

const streamBuffer = 64

// AlertPublisher writes each new alert to the alert topic keyed by alert ID.
type AlertPublisher struct {
	producer *client.KafkaProducer
	topic    string
}

var _ repository.AlertPublisher = (*AlertPublisher)(nil)

func NewAlertPublisher(producer *client.KafkaProducer, topic string) *AlertPublisher {
	return &AlertPublisher{producer: producer, topic: topic}
}

func (p *AlertPublisher) PublishAlert(ctx context.Context, alert models.ThreatAlert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	headers := map[string]string{
		"severity":   string(alert.Severity),
		"alert_type": alert.Type,
	}
	return p.producer.ProduceMessage(ctx, p.topic, []byte(alert.ID), value, headers)
}

// ChangeSource reads change events from one topic per table. Every
// subscription joins its own consumer group starting at the newest offset,
// so subscribers see only events produced after they subscribed.
type ChangeSource struct {
	cfg    *config.Config
	logger *zap.Logger
}

var _ realtime.EventSource = (*ChangeSource)(nil)

func NewChangeSource(cfg *config.Config, logger *zap.Logger) *ChangeSource {
	return &ChangeSource{cfg: cfg, logger: logger}
}

// Topic returns the change topic for table.
func (s *ChangeSource) Topic(table string) string {
	return s.cfg.Kafka.TopicPrefix + "." + table
}

func (s *ChangeSource) Subscribe(_ context.Context, filter realtime.Filter) (realtime.Stream, error) {
	if filter.Table == "" {
		return nil, fmt.Errorf("kafka change source requires a table")
	}
	groupID := s.cfg.Kafka.GroupPrefix + "-" + uuid.NewString()
	consumer, err := client.NewKafkaConsumer(s.cfg, s.Topic(filter.Table), groupID, kafkago.LastOffset, s.logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream := realtime.NewChanStream(streamBuffer, cancel)
	go s.consume(ctx, consumer, filter, stream)
	return stream, nil
}

func (s *ChangeSource) consume(ctx context.Context, consumer *client.KafkaConsumer, filter realtime.Filter, stream *realtime.ChanStream) {
	defer consumer.Close()

	for {
		msg, err := consumer.ConsumeMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Warn("kafka change consumer error",
				util.String("table", filter.Table),
				util.ErrorField(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var ev realtime.ChangeEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			s.logger.Warn("dropping malformed change message",
				util.String("topic", msg.Topic),
				util.ErrorField(err))
			continue
		}
		if ev.Table == "" {
			ev.Table = filter.Table
		}
		if ev.CommitTime.IsZero() {
			ev.CommitTime = msg.Time
		}
		if !filter.Matches(ev) {
			continue
		}
		if !stream.Deliver(ctx, ev) {
			return
		}
	}
}
