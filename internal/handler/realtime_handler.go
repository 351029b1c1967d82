package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"secops-dashboard/internal/realtime"
	"secops-dashboard/internal/util"
	"secops-dashboard/internal/ws"
)

// RealtimeHandler upgrades dashboard clients to WebSocket. Each client first
// receives a snapshot of the live feeds and then every broadcast frame.
type RealtimeHandler struct {
	hub      *ws.Hub
	feeds    *realtime.Feeds
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewRealtimeHandler(hub *ws.Hub, feeds *realtime.Feeds, allowedOrigins []string, logger *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		hub:   hub,
		feeds: feeds,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"), allowedOrigins)
			},
		},
		logger: logger,
	}
}

func (h *RealtimeHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", util.ErrorField(err))
		return
	}
	client := ws.NewClient(conn, h.logger)

	// registered before the snapshot is taken so no frame falls in between
	h.hub.Register(client)
	snapshot, err := json.Marshal(ws.Frame{Topic: "snapshot", Type: "init", Data: h.feeds.Snapshot()})
	if err != nil {
		h.logger.Error("Failed to encode feed snapshot", util.ErrorField(err))
		h.hub.Unregister(client)
		client.Close()
		return
	}

	h.logger.Debug("WebSocket client connected", util.String("remote_addr", r.RemoteAddr))
	client.Serve(snapshot)
	h.hub.Unregister(client)
	client.Close()
}

// originAllowed accepts requests without an Origin header, exact matches and
// patterns with a single "*" wildcard.
func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	for _, pattern := range allowed {
		if pattern == "*" || pattern == origin {
			return true
		}
		if prefix, suffix, ok := strings.Cut(pattern, "*"); ok &&
			len(origin) >= len(prefix)+len(suffix) &&
			strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}
