// Package gateway connects presentation shells to the event bus over WebSocket.
// Text frames carry bus messages; binary frames carry captured PCM16 audio.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/session-assistant/internal/bus"
)

const (
	writeWait      = 10 * time.Second
	sendQueueSize  = 256
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	// Shells connect from extension origins
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// AudioSink receives captured audio. Its errors are expected while no session is
// running and are only logged at debug level.
type AudioSink interface {
	SendAudio(chunk []byte) error
}

// Hub tracks connected shells and relays bus traffic to and from them.
type Hub struct {
	bus    *bus.Bus
	audio  AudioSink
	logger zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
	sub     *bus.Subscription
}

// NewHub subscribes to every outbound event and intent response on b.
func NewHub(b *bus.Bus, audio AudioSink, logger zerolog.Logger) (*Hub, error) {
	h := &Hub{
		bus:     b,
		audio:   audio,
		logger:  logger.With().Str("component", "gateway").Logger(),
		clients: make(map[string]*client),
	}

	handlers := bus.HandlerMap{bus.TypeResponse: h.relay}
	for _, t := range bus.Events {
		handlers[t] = h.relay
	}
	sub, err := b.Subscribe("gateway", handlers)
	if err != nil {
		return nil, err
	}
	h.sub = sub
	return h, nil
}

// ServeHTTP upgrades the request and serves one shell connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		h.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}

	id := uuid.New().String()
	c := &client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
		logger: h.logger.With().Str("client_id", id).Logger(),
	}
	if !h.register(c) {
		conn.Close()
		return
	}
	c.logger.Info().Str("remote", r.RemoteAddr).Msg("Shell connected")

	go c.writeLoop()
	h.readLoop(c)

	h.unregister(c)
	c.close()
	c.logger.Info().Msg("Shell disconnected")
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
}

// readLoop handles inbound frames until the connection fails.
func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			h.handleAudio(c, data)
		case websocket.TextMessage:
			h.handleText(c, data)
		}
	}
}

func (h *Hub) handleAudio(c *client, data []byte) {
	if h.audio == nil {
		return
	}
	if err := h.audio.SendAudio(data); err != nil {
		c.logger.Debug().Err(err).Int("bytes", len(data)).Msg("Audio frame not forwarded")
	}
}

func (h *Hub) handleText(c *client, data []byte) {
	var msg bus.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to parse shell message")
		return
	}
	if !msg.Type.IsIntent() {
		c.logger.Warn().Str("type", string(msg.Type)).Msg("Ignoring message that is not a session intent")
		return
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	c.logger.Debug().
		Str("type", string(msg.Type)).
		Str("request_id", msg.RequestID).
		Msg("Intent received")
	h.bus.Deliver(msg)
}

// relay forwards a bus message to every connected shell.
func (h *Hub) relay(ctx context.Context, msg bus.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.enqueue(data)
	}
	return nil
}

// ClientCount returns the number of connected shells.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops relaying and disconnects every shell.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	h.sub.Unsubscribe()
	for _, c := range clients {
		c.close()
	}
}

// client is one shell connection. Writes happen only on its writeLoop goroutine.
type client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    zerolog.Logger
}

func (c *client) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Warn().Msg("Shell send queue full, dropping message")
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.logger.Warn().Err(err).Msg("WebSocket write failed")
				}
				c.close()
				return
			}
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.conn.Close()
	})
}
