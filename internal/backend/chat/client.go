package chat

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // voice payloads ride the socket as base64
)

// Client is one authenticated websocket connection on the server side.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	UserID string
	Name   string
	ConnID string
}

func NewClient(hub *Hub, conn *websocket.Conn, userID, name string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		UserID: userID,
		Name:   name,
		ConnID: uuid.NewString(),
	}
}

// sendEvent enqueues a single envelope for this client, bypassing the
// broker. Used for direct replies that never cross instances.
func (c *Client) sendEvent(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("client %s: marshal %s: %v", c.ConnID, event, err)
		return
	}
	frame, err := json.Marshal(envelope{Event: event, Data: raw})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Printf("client %s: send buffer full, dropping %s", c.ConnID, event)
	}
}

// ReadPump pulls envelopes off the socket and feeds them to the hub. One
// per connection; it owns all reads.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("client %s: read: %v", c.ConnID, err)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("client %s: bad frame: %v", c.ConnID, err)
			continue
		}
		c.hub.Inbound <- Inbound{Client: c, Event: env.Event, Data: env.Data}
	}
}

// WritePump drains the send channel onto the socket and keeps the
// connection alive with pings. One per connection; it owns all writes.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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
