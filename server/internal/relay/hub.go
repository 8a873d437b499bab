package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/biomirror/biomirror/pkg/types"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultClientBuffer is the per-observer outgoing message buffer depth.
	DefaultClientBuffer = 64

	// DefaultSubscriberBuffer is the per-subscriber sample buffer depth.
	DefaultSubscriberBuffer = 256
)

// Event names carried in Message.Event.
const (
	EventSensorData   = "sensor_data"
	EventSensorUpdate = "sensor_update"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; CORS belongs at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope exchanged with WebSocket clients.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Drop targets reported to Options.OnDrop.
const (
	DropObserver   = "observer"
	DropSubscriber = "subscriber"
)

// Options tunes a Hub. Zero values pick the defaults.
type Options struct {
	// Name identifies the hub in logs.
	Name string

	ClientBuffer     int
	SubscriberBuffer int

	// OnConnect, when set, returns an event sent to each observer right
	// after it connects.
	OnConnect func() (event string, data any)

	// OnDrop is called whenever a message is discarded for a full buffer.
	OnDrop func(target string)

	// OnPublish is called once per sample accepted by PublishSample.
	OnPublish func()
}

// Hub manages WebSocket observers and in-process sample subscribers.
type Hub struct {
	opts Options

	mu      sync.Mutex
	clients map[*client]struct{}
	subs    map[*Subscription]struct{}
}

// client represents one connected WebSocket observer.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Subscription delivers relayed samples to an in-process consumer. C is
// closed by Unsubscribe or when the hub shuts down.
type Subscription struct {
	C  <-chan types.Sample
	ch chan types.Sample
}

// New creates a Hub.
func New(opts Options) *Hub {
	if opts.ClientBuffer <= 0 {
		opts.ClientBuffer = DefaultClientBuffer
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if opts.Name == "" {
		opts.Name = "relay"
	}
	return &Hub{
		opts:    opts,
		clients: make(map[*client]struct{}),
		subs:    make(map[*Subscription]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes every observer connection
// and subscription.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves an
// observer. Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, h.opts.ClientBuffer),
	}
	h.register(c)
	defer h.unregister(c)

	if h.opts.OnConnect != nil {
		event, data := h.opts.OnConnect()
		if msg, err := encode(event, data); err == nil {
			select {
			case c.send <- msg:
			default:
			}
		}
	}

	go c.writePump()
	c.readPump(512, nil) // blocks until connection closes
}

// Broadcast sends one event to every observer. Observers that cannot keep
// up are disconnected.
func (h *Hub) Broadcast(event string, data any) error {
	msg, err := encode(event, data)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Outgoing buffer is full; disconnect the observer.
			delete(h.clients, c)
			close(c.send)
			h.dropped(DropObserver)
			slog.Warn(h.opts.Name+": disconnecting slow observer", "remote", c.conn.RemoteAddr().String())
		}
	}
	return nil
}

// PublishSample relays one sample: a sensor_update event to observers and
// the raw sample to every subscriber. A subscriber with a full buffer loses
// the sample.
func (h *Hub) PublishSample(s types.Sample) error {
	if err := h.Broadcast(EventSensorUpdate, s); err != nil {
		return err
	}
	if h.opts.OnPublish != nil {
		h.opts.OnPublish()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- s:
		default:
			h.dropped(DropSubscriber)
		}
	}
	return nil
}

// Subscribe registers an in-process consumer of published samples.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan types.Sample, h.opts.SubscriberBuffer)
	sub := &Subscription{C: ch, ch: ch}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// Count returns the number of currently connected observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Subscribers returns the number of in-process subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// --- internal ---------------------------------------------------------------

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("relay: encode %s: %w", event, err)
	}
	return json.Marshal(Message{Event: event, Data: raw})
}

func (h *Hub) dropped(target string) {
	if h.opts.OnDrop != nil {
		h.opts.OnDrop(target)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	for sub := range h.subs {
		close(sub.ch)
		delete(h.subs, sub)
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames until the connection closes. Text frames are passed
// to onMessage when it is non-nil; observers only need pong and close
// handling.
func (c *client) readPump(limit int64, onMessage func([]byte)) {
	defer c.conn.Close()
	c.conn.SetReadLimit(limit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		typ, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if onMessage != nil && typ == websocket.TextMessage {
			onMessage(msg)
		}
	}
}
