package app

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn adapts a gorilla websocket connection to the hub's Conn
// interface. Writes are serialized; gorilla allows only one concurrent
// writer per connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// ServeWS upgrades an HTTP request to a websocket session on the hub and
// pumps inbound frames until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	raw, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := &wsConn{conn: raw}
	sessionID := h.Connect(conn)

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			h.Disconnect(sessionID)
			return
		}
		h.HandleFrame(sessionID, data)
	}
}
