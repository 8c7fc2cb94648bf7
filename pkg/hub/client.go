package hub

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	// writeWait bounds each write to an observer.
	writeWait = 10 * time.Second

	// pongWait is how long an observer may stay silent before it is
	// presumed gone.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound frames. Observers only listen, so
	// anything bigger than a control frame is suspect.
	maxMessageSize = 64 * 1024
)

// Client is one dashboard observer connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// NewClient registers a new observer with the hub.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan Message, 256),
	}
	hub.register <- client
	return client
}

// QueueEvent puts one event on this observer's send queue, ahead of any live
// broadcast that has not been delivered yet. Use it to catch a fresh
// observer up on current state before Run; the write pump delivers it in
// order with everything that follows.
func (c *Client) QueueEvent(kind string, payload any) error {
	data, err := json.Marshal(Event{Kind: kind, Payload: payload})
	if err != nil {
		return err
	}
	select {
	case c.send <- NewJSONMessage(data):
		return nil
	default:
		return errors.New("hub: observer send queue full")
	}
}

// Run pumps the connection until the observer disconnects. Call it from the
// websocket handler; it blocks.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump drains inbound frames. Observers send nothing of interest, but
// reading is what surfaces pongs and disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only goroutine that writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub dropped us; say goodbye.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			wsType := websocket.TextMessage
			if message.Type == BinaryMessage {
				wsType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(wsType, message.Data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
