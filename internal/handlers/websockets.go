package handlers

import (
	"net/http"
	"time"

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

// wsInbound is a message from the display shell: forwarded input events.
type wsInbound struct {
	Type   string `json:"type"`
	Source string `json:"source,omitempty"`
}

// Upgrader for HTTP -> WebSocket. The panel serves the family LAN only.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConnect is the display shell link: render commands flow out, input
// events flow back in. Authenticated with the device token as a query
// parameter because browser WebSocket clients cannot set headers.
func (h *Handler) wsConnect(c *gin.Context) {
	deviceID, err := h.pairing.ParseToken(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	sessionID := uuid.NewString()
	cmds := h.hub.Join(sessionID)
	defer h.hub.Leave(sessionID)

	if h.log != nil {
		h.log.Infow("display_shell_connected", "session", sessionID, "device", deviceID)
	}
	if h.onShellConnected != nil {
		h.onShellConnected()
	}

	// Configure read limits and pong handler to extend the read deadline.
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader goroutine: input events from the shell, plus disconnect
	// detection and control frames.
	done := make(chan struct{})
	go h.startReader(conn, done)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	// Writer/select loop. All writes to the conn happen here.
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
					h.log.Infow("ws_ping_failed", "session", sessionID, "err", err)
				}
				return
			}
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(cmd); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "session", sessionID, "err", err)
				}
				return
			}
		}
	}
}

// startReader consumes inbound messages, feeding shell input events to the
// activity monitor, and closes done when the connection drops.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		var msg wsInbound
		if err := conn.ReadJSON(&msg); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
		if msg.Type == "activity" && msg.Source != "" {
			h.monitor.RecordActivity(msg.Source)
		}
	}
}
