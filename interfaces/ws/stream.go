// Package ws streams session events over WebSocket. Each connection
// gets its own bus subscription; a connection that falls behind the
// bounded buffer is disconnected by the bus and must reconnect, so
// losing the stream is always observable.
package ws

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"agora-backend/application/ports"
	"agora-backend/application/services"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// StreamHandler upgrades session stream requests to WebSocket
type StreamHandler struct {
	registry   *services.SessionRegistry
	subscriber ports.EventSubscriber
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// NewStreamHandler creates a stream handler
func NewStreamHandler(registry *services.SessionRegistry, subscriber ports.EventSubscriber, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		registry:   registry,
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origin policy is enforced by the CORS layer in front
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Stream handles GET /sessions/{sessionID}/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.registry.Get(sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	envelopes, cancel := h.subscriber.Subscribe(sessionID)
	defer cancel()
	defer conn.Close()

	// Reader drains control frames and signals close
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	h.logger.Debug("stream opened", zap.String("session_id", sessionID))
	for {
		select {
		case <-done:
			return
		case envelope, ok := <-envelopes:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(envelope); err != nil {
				h.logger.Debug("stream write failed, closing",
					zap.String("session_id", sessionID), zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
