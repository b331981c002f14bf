package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"smart_bottle/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12 // 4 KB
)

// Inbound message types.
const (
	wsDrag   = "drag"
	wsCommit = "commit"
)

// Envelope used for outbound WebSocket messages.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// wsCommand is what the browser sends when the slider moves.
type wsCommand struct {
	Type  string   `json:"type"`
	Value *float64 `json:"value"`
}

// Upgrader for HTTP -> WebSocket. Consider tightening CheckOrigin in production.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h *Handler) wsConnect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	clientID := uuid.NewString()
	if h.log != nil {
		h.log.Infow("ws_connected", "client_id", clientID)
	}

	// Configure read limits and pong handler to extend read deadline.
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	views, cancel := h.services.Subscribe()
	defer cancel()

	// Reader goroutine turns slider events into control calls; replies go
	// back through the writer loop, the only goroutine that writes.
	done := make(chan struct{})
	replies := make(chan wsEnvelope, 4)
	go h.startReader(conn, clientID, replies, done)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "client_id", clientID, "err", err)
				}
				return
			}
		case v, ok := <-views:
			if !ok {
				return
			}
			if err := h.send(conn, wsEnvelope{Type: "view", Data: v}); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "client_id", clientID, "err", err)
				}
				return
			}
		case env := <-replies:
			if err := h.send(conn, env); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "client_id", clientID, "err", err)
				}
				return
			}
		}
	}
}

// Helper: startReader handles inbound slider events until the socket closes.
func (h *Handler) startReader(conn *websocket.Conn, clientID string, replies chan<- wsEnvelope, done chan<- struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "client_id", clientID, "err", err)
			}
			return
		}
		if msg := h.dispatch(data); msg != "" {
			select {
			case replies <- wsEnvelope{Type: "error", Error: msg}:
			default:
				// writer is behind, the client will see the next view anyway
			}
		}
	}
}

// dispatch applies one inbound message and returns a user-facing error, if any.
func (h *Handler) dispatch(data []byte) string {
	var cmd wsCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return errInvalidBodyPref + err.Error()
	}
	if cmd.Value == nil {
		return errInvalidBodyPref + "value is required"
	}

	switch cmd.Type {
	case wsDrag:
		h.services.Drag(*cmd.Value)
	case wsCommit:
		// the socket may close before the write finishes
		res := h.services.Commit(context.Background(), *cmd.Value)
		select {
		case err := <-res:
			if errors.Is(err, service.ErrNotInitialized) {
				return errNotInitialized
			}
		default:
		}
	default:
		return "unknown message type: " + cmd.Type
	}
	return ""
}

// Helper: send writes one envelope with a write deadline.
func (h *Handler) send(conn *websocket.Conn, env wsEnvelope) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}
