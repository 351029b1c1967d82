package client

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"secops-dashboard/internal/config"
	"secops-dashboard/internal/util"
)

type NATSClient struct {
	Conn   *nats.Conn
	config *config.NATSConfig
	logger *zap.Logger
}

func NewNATSClient(cfg *config.Config, logger *zap.Logger) (*NATSClient, error) {
	natsConfig := cfg.NATS

	conn, err := nats.Connect(natsConfig.URL,
		nats.Name("secops-dashboard"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", util.ErrorField(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", util.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("NATS client initialized", util.String("url", conn.ConnectedUrl()))

	return &NATSClient{
		Conn:   conn,
		config: &natsConfig,
		logger: logger,
	}, nil
}

// HealthCheck flushes pending writes and waits for the server's pong
func (n *NATSClient) HealthCheck(ctx context.Context) error {
	if !n.Conn.IsConnected() {
		return fmt.Errorf("nats not connected: %s", n.Conn.Status())
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := n.Conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush failed: %w", err)
	}
	return nil
}

func (n *NATSClient) Close() {
	if n.Conn == nil {
		return
	}
	if err := n.Conn.Drain(); err != nil {
		n.logger.Warn("NATS drain failed", util.ErrorField(err))
		n.Conn.Close()
	}
	n.logger.Info("NATS client closed")
}
