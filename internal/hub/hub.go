package hub

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-stage/pkg/log"
)

// Config holds websocket timing for relay clients.
type Config struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

// DisconnectHandler is called when a client's read loop ends.
type DisconnectHandler func(*Client)

// Client is one authenticated relay connection.
type Client struct {
	// Key is the routing key: window:main, window:output, mobile:<id> or
	// remote:<uuid>.
	Key        string
	ClientType string
	DeviceID   string
	DeviceName string

	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte

	disconnectHandler DisconnectHandler

	sendMu sync.Mutex
	closed bool
}

// NewClient wraps an authenticated connection.
func NewClient(h *Hub, conn *websocket.Conn, key, clientType string) *Client {
	buf := h.config.SendBuffer
	if buf <= 0 {
		buf = 256
	}
	return &Client{
		Key:        key,
		ClientType: clientType,
		Hub:        h,
		Conn:       conn,
		Send:       make(chan []byte, buf),
	}
}

// SetDisconnectHandler sets the handler to be called on disconnect.
func (c *Client) SetDisconnectHandler(handler DisconnectHandler) {
	c.disconnectHandler = handler
}

// Hub routes frames between authenticated clients by key.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	config  Config
}

// NewHub creates a new Hub.
func NewHub(cfg Config) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		config:  cfg,
	}
}

// Register adds a client. A client already holding the key is replaced and
// its connection closed; window roles are singletons.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	old := h.clients[client.Key]
	h.clients[client.Key] = client
	h.mu.Unlock()

	l := log.L()
	if old != nil && old != client {
		l.Warn().Str(log.FieldClientKey, client.Key).Msg("client replaced by newer connection")
		old.close()
	}
	l.Info().Str(log.FieldClientKey, client.Key).Msg("client registered")
}

// Unregister removes client if it still holds its key. It reports whether
// the client was removed, which is false after a replacement.
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()
	current, ok := h.clients[client.Key]
	removed := ok && current == client
	if removed {
		delete(h.clients, client.Key)
	}
	h.mu.Unlock()

	client.close()
	if removed {
		l := log.L()
		l.Info().Str(log.FieldClientKey, client.Key).Msg("client unregistered")
	}
	return removed
}

// Has reports whether key is connected.
func (h *Hub) Has(key string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[key]
	return ok
}

// Keys lists connected keys, sorted.
func (h *Hub) Keys() []string {
	h.mu.RLock()
	keys := make([]string, 0, len(h.clients))
	for k := range h.clients {
		keys = append(keys, k)
	}
	h.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// SendTo delivers data to one client. It reports false when the key is not
// connected or its buffer is full; a full buffer drops the client.
func (h *Hub) SendTo(key string, data []byte) bool {
	h.mu.RLock()
	client, ok := h.clients[key]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.deliver(client, data)
}

// SendJSON marshals message and delivers it to one client.
func (h *Hub) SendJSON(key string, message interface{}) bool {
	data, err := json.Marshal(message)
	if err != nil {
		return false
	}
	return h.SendTo(key, data)
}

// Broadcast delivers data to every client except the one keyed exclude.
func (h *Hub) Broadcast(data []byte, exclude string) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for key, client := range h.clients {
		if key != exclude {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		h.deliver(client, data)
	}
}

// BroadcastJSON marshals message and broadcasts it.
func (h *Hub) BroadcastJSON(message interface{}, exclude string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	h.Broadcast(data, exclude)
	return nil
}

func (h *Hub) deliver(client *Client, data []byte) bool {
	client.sendMu.Lock()
	defer client.sendMu.Unlock()
	if client.closed {
		return false
	}
	select {
	case client.Send <- data:
		return true
	default:
		// Client's send buffer is full
		l := log.L()
		l.Warn().Str(log.FieldClientKey, client.Key).Msg("client too slow, dropping")
		go h.Unregister(client)
		return false
	}
}

func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// ReadPump pumps messages from the WebSocket connection to handler.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		// Call disconnect handler before unregistering
		if c.disconnectHandler != nil {
			c.disconnectHandler(c)
		}
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Error().Err(err).Str(log.FieldClientKey, c.Key).Msg("websocket error")
			}
			break
		}
		// Any frame proves liveness.
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))

		handler(c, message)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage marshals message onto the client's queue. A full queue drops
// the message.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	c.Hub.deliver(c, data)
	return nil
}
