package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"st-telemetry/gateway/internal/broadcast"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// auth runs in the middleware; the dashboard may be served from
	// anywhere, so origin is not restricted here
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebsocket bridges one websocket connection to one broadcaster
// subscriber. If the subscriber falls behind and is evicted, its channel
// closes and the connection is closed with it.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := s.broadcaster.Register()
	s.logger.Info("websocket client connected", "remote", conn.RemoteAddr().String())

	go s.writePump(conn, sub)
	go s.readPump(conn, sub)
}

// writePump streams broadcast payloads to the peer and keeps the connection
// alive with pings. It exits when the subscriber channel closes.
func (s *Server) writePump(conn *websocket.Conn, sub *broadcast.Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case payload, ok := <-sub.C():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// unregistered, evicted, or broadcaster closed
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(payload)
			if err != nil {
				s.logger.Error("broadcast payload marshal failed", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.broadcaster.Unregister(sub)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.broadcaster.Unregister(sub)
				return
			}
		}
	}
}

// readPump consumes control frames and client messages (which are ignored)
// so pongs are processed and disconnects are noticed promptly.
func (s *Server) readPump(conn *websocket.Conn, sub *broadcast.Subscriber) {
	defer func() {
		s.broadcaster.Unregister(sub)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "error", err)
			}
			return
		}
	}
}
