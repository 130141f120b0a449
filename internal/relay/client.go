package relay

import (
	"time"

	"github.com/gorilla/websocket"
)

// frame preserves the WebSocket frame kind through the send queue so binary
// CRDT deltas and JSON text events stay distinguishable on the wire.
type frame struct {
	kind int
	data []byte
}

// Client is one relay connection. Session state lives in the room; the
// client only owns the socket and its pumps.
type Client struct {
	UserID   string
	RoomID   string
	conn     *websocket.Conn
	registry *Registry
	send     chan frame
}

func NewClient(userID, roomID string, conn *websocket.Conn, registry *Registry) *Client {
	return &Client{
		UserID:   userID,
		RoomID:   roomID,
		conn:     conn,
		registry: registry,
		send:     make(chan frame, 256),
	}
}

// ReadPump forwards inbound frames to the registry loop until the connection
// drops, then triggers disconnect handling. Connection close is the only
// cancellation signal the server side gets.
func (c *Client) ReadPump() {
	defer func() {
		c.registry.Unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.registry.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.registry.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.registry.pongWait))
		return nil
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.registry.log.Warn().Err(err).Str("user", c.UserID).Msg("websocket read error")
			}
			break
		}
		switch kind {
		case websocket.BinaryMessage, websocket.TextMessage:
			c.registry.Frames <- Frame{Client: c, Kind: kind, Data: data}
		}
	}
}

// WritePump drains the send queue one frame at a time and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.registry.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.registry.writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(f.kind, f.data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.registry.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
