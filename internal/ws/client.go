package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"secops-dashboard/internal/util"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 4096
	sendQueue  = 64
)

var (
	ErrSlowClient   = errors.New("websocket client send queue is full")
	ErrClientClosed = errors.New("websocket client closed")
)

// Client wraps a websocket connection. Frames are queued by Send and written
// by a single pump goroutine started from Serve.
type Client struct {
	conn   *websocket.Conn
	logger *zap.Logger
	send   chan []byte
	once   sync.Once
	done   chan struct{}
}

func NewClient(conn *websocket.Conn, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		conn:   conn,
		logger: logger,
		send:   make(chan []byte, sendQueue),
		done:   make(chan struct{}),
	}
}

// Send queues a text frame without blocking. It fails with ErrSlowClient when
// the peer has fallen a full queue behind.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSlowClient
	}
}

// Close terminates the connection.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// Serve writes first, then every queued frame, and discards inbound messages
// until the connection fails or is closed.
func (c *Client) Serve(first []byte) {
	go c.writePump(first)

	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", util.ErrorField(err))
			}
			return
		}
	}
}

func (c *Client) writePump(first []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if first != nil && !c.write(first) {
		return
	}
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if !c.write(payload) {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Client) write(payload []byte) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Debug("websocket send failed", util.ErrorField(err))
		c.Close()
		return false
	}
	return true
}
