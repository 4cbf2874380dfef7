package channel

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a frame to the server.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong from the server.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 1 << 20             // Voice payloads ride the channel base64-encoded.
	sendBuffer     = 256
)

// Conn is the live event channel bound to one authenticated identity.
// It is created by Dial, lives for at most one session, and is never
// reconnected: a new session dials a brand-new Conn with a fresh,
// independently ordered event stream.
type Conn struct {
	userID string
	connID string

	ws   *websocket.Conn
	send chan []byte

	// inbound feeds the single dispatch goroutine. All handlers run there,
	// in subscription order, one event at a time.
	inbound chan Envelope
	done    chan struct{}
	once    sync.Once

	onDisconnect func()

	mu     sync.Mutex
	state  State
	nextID int
	subs   map[string][]*subscription
}

type subscription struct {
	id    int
	event string
	fn    Handler
	conn  *Conn
}

func (s *subscription) Cancel() {
	s.conn.unsubscribe(s)
}

// Dial opens the channel against serverURL (http or ws scheme), announces
// the identity with a userJoined event and starts the pumps. Single
// attempt: a failed dial is terminal for this Conn and returns the error.
// onDisconnect, if non-nil, fires exactly once when the channel closes for
// any reason, including an explicit Close.
func Dial(serverURL, token, userID string, onDisconnect func()) (*Conn, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("channel: bad server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("channel: unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	c := &Conn{
		userID:       userID,
		state:        Connecting,
		send:         make(chan []byte, sendBuffer),
		inbound:      make(chan Envelope, sendBuffer),
		done:         make(chan struct{}),
		onDisconnect: onDisconnect,
		subs:         make(map[string][]*subscription),
	}

	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
		return nil, fmt.Errorf("channel: connect failed: %w", err)
	}

	c.ws = ws
	c.connID = uuid.NewString()
	c.mu.Lock()
	c.state = Connected
	c.mu.Unlock()

	go c.writePump()
	go c.readPump()
	go c.dispatch()

	c.Publish(EventUserJoined, map[string]string{"userId": userID})
	return c, nil
}

// ID is the transient per-connection id. It changes on every Dial and is
// distinct from the durable user id.
func (c *Conn) ID() string { return c.connID }

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when the connection has fully torn down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Publish queues an event frame. Fire-and-forget: after teardown the frame
// is silently dropped.
func (c *Conn) Publish(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("channel: drop %s: %v", event, err)
		return
	}
	frame, _ := json.Marshal(Envelope{Event: event, Data: raw})
	select {
	case c.send <- frame:
	case <-c.done:
	}
}

func (c *Conn) Subscribe(event string, fn Handler) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	sub := &subscription{id: c.nextID, event: event, fn: fn, conn: c}
	c.subs[event] = append(c.subs[event], sub)
	return sub
}

func (c *Conn) unsubscribe(sub *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.subs[sub.event]
	for i, s := range list {
		if s.id == sub.id {
			c.subs[sub.event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Close tears the channel down. Idempotent and safe when already closed.
func (c *Conn) Close() {
	c.teardown(true)
}

func (c *Conn) teardown(graceful bool) {
	c.once.Do(func() {
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
		if graceful {
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}
		close(c.done)
		c.ws.Close()
		if c.onDisconnect != nil {
			c.onDisconnect()
		}
	})
}

// readPump pumps frames from the websocket into the dispatch queue.
// Frames are queued in arrival order; no local reordering ever happens.
func (c *Conn) readPump() {
	defer c.teardown(false)

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("channel: read: %v", err)
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("channel: bad frame: %v", err)
			continue
		}
		select {
		case c.inbound <- env:
		case <-c.done:
			return
		}
	}
}

// writePump pumps queued frames to the websocket and keeps the connection
// alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.teardown(false)
	}()

	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// dispatch drains inbound events one at a time and runs the matching
// handlers in subscription order. All engine state mutation happens on
// this goroutine.
func (c *Conn) dispatch() {
	for {
		select {
		case env := <-c.inbound:
			c.deliver(env)
		case <-c.done:
			return
		}
	}
}

func (c *Conn) deliver(env Envelope) {
	c.mu.Lock()
	list := c.subs[env.Event]
	handlers := make([]Handler, len(list))
	for i, s := range list {
		handlers[i] = s.fn
	}
	c.mu.Unlock()

	for _, fn := range handlers {
		run(env.Event, fn, env.Data)
	}
}

// run shields the channel from a misbehaving handler: no handler may fail
// the connection.
func run(event string, fn Handler, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("channel: handler panic on %s: %v", event, r)
		}
	}()
	fn(data)
}
