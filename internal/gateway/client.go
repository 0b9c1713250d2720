// internal/gateway/client.go
//
// One websocket client connection: write pump, keepalive, and the
// session.Handle implementation used for outbound delivery.

package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

// Message is the wire frame for both directions.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type client struct {
	gw   *Gateway
	conn *websocket.Conn
	send chan Message

	mu       sync.Mutex
	userID   string
	username string
	elo      int
	authed   bool
	bound    bool // identity registered on this connection
	closed   bool
}

// Send implements session.Handle. Delivery is best-effort: a slow consumer
// whose buffer is full loses the frame rather than stalling the engine.
func (c *client) Send(event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		c.gw.log.Error().Err(err).Str("event", event).Msg("marshal outbound")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- Message{Type: event, Data: raw}:
	default:
		c.gw.log.Warn().Str("event", event).Msg("send buffer full, dropping frame")
	}
}

// shutdown closes the send channel exactly once; the registry must already
// have dropped this handle so no further Send can race the close.
func (c *client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) identity() (id string, username string, elo int, authed bool, bound bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.username, c.elo, c.authed, c.bound
}

func (c *client) bind() {
	c.mu.Lock()
	c.bound = true
	c.mu.Unlock()
}
