package kafka

import (
	"context"
	"testing"

	"secops-dashboard/internal/config"
	"secops-dashboard/internal/realtime"
)

func TestChangeSourceTopic(t *testing.T) {
	cfg := &config.Config{Kafka: config.KafkaConfig{TopicPrefix: "secops.changes"}}
	src := NewChangeSource(cfg, nil)
	if got := src.Topic(realtime.TableTraffic); got != "secops.changes.network_traffic" {
		t.Fatalf("unexpected topic %q", got)
	}
}

func TestChangeSourceRequiresTable(t *testing.T) {
	src := NewChangeSource(&config.Config{}, nil)
	if _, err := src.Subscribe(testContext(t), realtime.Filter{}); err == nil {
		t.Fatalf("expected error without table")
	}
}

// testContext stands in for testing.T.Context (Go 1.24+): a context that is
// cancelled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
