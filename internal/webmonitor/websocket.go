package webmonitor

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dj-oyu/facecam/internal/logger"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsReadLimit    = 4096
)

// Non-browser clients send no Origin header, so any origin is accepted.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleDetectionsWS pushes detection events over a websocket. JSON events
// are text frames; with ?format=protobuf they are binary google.protobuf.Struct.
func (s *Server) handleDetectionsWS(w http.ResponseWriter, r *http.Request) {
	useProtobuf := wantsProtobuf(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("DetectionWS", "Upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id, eventCh := s.detections.Subscribe()
	defer s.detections.Unsubscribe(id)
	logger.Debug("DetectionWS", "Client #%d connected from %s", id, r.RemoteAddr)

	// Reader: drains control frames and notices the close.
	closed := make(chan struct{})
	conn.SetReadLimit(wsReadLimit)
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("DetectionWS", "Client #%d read error: %v", id, err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(s.cfg.KeepaliveInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(wsWriteTimeout))
				return
			}

			msgType, data := websocket.TextMessage, event.JSONData
			if useProtobuf {
				raw, err := event.RawProtobuf()
				if err != nil {
					logger.Error("DetectionWS", "Decode protobuf event: %v", err)
					continue
				}
				msgType, data = websocket.BinaryMessage, raw
			}

			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(msgType, data); err != nil {
				logger.Debug("DetectionWS", "Client #%d write failed: %v", id, err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				logger.Debug("DetectionWS", "Client #%d ping failed: %v", id, err)
				return
			}
		}
	}
}
