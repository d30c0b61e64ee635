package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dreamware/statusboard/internal/inventory"
)

// ErrNotConnected is returned by SendUpdate while the link is down.
var ErrNotConnected = errors.New("not connected")

// ClientConfig configures a Client.
type ClientConfig struct {
	URL    string
	Mirror *Mirror
	Logger *slog.Logger

	// Optional configuration.
	Dialer       *websocket.Dialer
	Header       http.Header
	WriteTimeout time.Duration

	// OnMessage, when set, is called after every frame the mirror applied
	// or rejected.
	OnMessage func(msgType string, err error)
}

// Validate checks required fields and fills in defaults.
func (c *ClientConfig) Validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	if c.Mirror == nil {
		return errors.New("mirror is required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return nil
}

// Client drives a Mirror from a hub WebSocket endpoint.
type Client struct {
	url          string
	header       http.Header
	dialer       *websocket.Dialer
	mirror       *Mirror
	writeTimeout time.Duration
	onMessage    func(string, error)
	log          *slog.Logger

	mu   sync.Mutex // Serializes writes; guards conn
	conn *websocket.Conn
}

// NewClient returns a Client for cfg.Mirror.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		url:          cfg.URL,
		header:       cfg.Header,
		dialer:       cfg.Dialer,
		mirror:       cfg.Mirror,
		writeTimeout: cfg.WriteTimeout,
		onMessage:    cfg.OnMessage,
		log:          cfg.Logger.With("component", "mirror-client", "url", cfg.URL),
	}, nil
}

// Run dials the hub and feeds every received frame into the mirror until
// ctx is done (returns nil) or the link fails (returns the error).
func (c *Client) Run(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.url, err)
	}
	c.setConn(conn)
	c.mirror.setConnected(true)
	defer func() {
		c.setConn(nil)
		c.mirror.setConnected(false)
		_ = conn.Close()
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.mu.Unlock()
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		msgType, err := c.mirror.Apply(data)
		if err != nil {
			c.log.Warn("dropping message", "type", msgType, "error", err)
		}
		if c.onMessage != nil {
			c.onMessage(msgType, err)
		}
	}
}

// SendUpdate applies u to the mirror and sends it to the hub. A missing
// timestamp is filled from the mirror clock so both sides record the same
// instant. An update the mirror rejects is not sent.
func (c *Client) SendUpdate(u inventory.StatusUpdate) error {
	if u.Timestamp.IsZero() {
		u.Timestamp = c.mirror.clock.Now()
	}
	frame, err := inventory.NewMessage(inventory.MessageStatusUpdate, u)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.mirror.Store.Apply(u); err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}
