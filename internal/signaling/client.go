package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/pkg/log"
)

var (
	// ErrNotReady is returned by Send before the relay has accepted the pin.
	ErrNotReady = errors.New("signaling channel not ready")
	// ErrAuthRejected ends the reconnect loop.
	ErrAuthRejected = errors.New("relay rejected pin")
)

// Config configures the relay connection.
type Config struct {
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	ClientType     string        `mapstructure:"client_type"`
	DeviceID       string        `mapstructure:"device_id"`
	DeviceName     string        `mapstructure:"device_name"`
}

func (c Config) withDefaults() Config {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 1 << 20
	}
	return c
}

// Client is a process's single connection to the relay. One supervisor
// goroutine owns dialing and reconnecting.
type Client struct {
	cfg      Config
	clock    clockwork.Clock
	dialer   *websocket.Dialer
	messages chan []byte

	mu      sync.Mutex
	pin     string
	conn    *websocket.Conn
	ready   bool
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	writeMu sync.Mutex
}

// NewClient creates a disconnected client.
func NewClient(cfg Config, clock clockwork.Clock) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:      cfg,
		clock:    clock,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.WriteWait},
		messages: make(chan []byte, 256),
	}
}

// Messages yields inbound frames in receipt order, auth_ok included.
func (c *Client) Messages() <-chan []byte {
	return c.messages
}

// Connect stores pin and starts the supervisor. Calling it again while the
// supervisor runs only replaces the pin used for the next dial.
func (c *Client) Connect(ctx context.Context, pin string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pin = pin
	if c.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.supervise(ctx, c.done)
}

// Close stops the supervisor and waits for it.
func (c *Client) Close() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Ready reports whether the relay has accepted the pin on the current
// connection.
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Running reports whether the supervisor is alive.
func (c *Client) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Send writes msg as JSON. Messages are dropped, not queued, while the
// channel is not ready.
func (c *Client) Send(ctx context.Context, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	c.mu.Lock()
	conn, ready := c.conn, c.ready
	c.mu.Unlock()
	if conn == nil || !ready {
		l := log.Ctx(ctx)
		l.Debug().Msg("signaling message dropped, not ready")
		return ErrNotReady
	}
	if err := c.write(conn, data); err != nil {
		return fmt.Errorf("write relay: %w", err)
	}
	return nil
}

func (c *Client) write(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) supervise(ctx context.Context, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.mu.Unlock()
		close(done)
	}()

	l := log.Ctx(ctx)
	for {
		c.mu.Lock()
		pin := c.pin
		c.mu.Unlock()
		if pin == "" {
			return
		}

		err := c.session(ctx, pin)
		if errors.Is(err, ErrAuthRejected) {
			c.mu.Lock()
			c.pin = ""
			c.mu.Unlock()
			l.Warn().Msg("relay rejected pin, not reconnecting")
			return
		}
		if ctx.Err() != nil {
			return
		}
		l.Warn().Err(err).Dur("retry_in", c.cfg.ReconnectDelay).Msg("relay connection lost")

		select {
		case <-c.clock.After(c.cfg.ReconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

// session runs one connection until it fails.
func (c *Client) session(ctx context.Context, pin string) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c.mu.Lock()
	c.conn = conn
	c.ready = false
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.ready = false
		c.mu.Unlock()
		_ = conn.Close()
	}()

	auth, err := json.Marshal(domain.AuthMessage{
		Cmd:        domain.CmdAuth,
		PIN:        pin,
		ClientType: c.cfg.ClientType,
		DeviceID:   c.cfg.DeviceID,
		DeviceName: c.cfg.DeviceName,
	})
	if err != nil {
		return err
	}
	if err := c.write(conn, auth); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	conn.SetReadLimit(c.cfg.MaxMessageSize)
	l := log.Ctx(ctx)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read relay: %w", err)
		}

		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			l.Debug().Err(err).Msg("malformed relay frame ignored")
			continue
		}
		switch env.Type {
		case domain.TypeAuthOK:
			c.mu.Lock()
			c.ready = true
			c.mu.Unlock()
			l.Info().Str(log.FieldClientKey, c.cfg.ClientType).Msg("relay authenticated")
		case domain.TypeAuthFail:
			return ErrAuthRejected
		}

		select {
		case c.messages <- data:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
