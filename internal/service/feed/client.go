package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	drepo "EnergyDash/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client dials the energy simulator's websocket feed.
type Client struct {
	url          string
	dialTimeout  time.Duration
	pingInterval time.Duration
	readLimit    int64
	dialer       *websocket.Dialer
}

// Option configures Client.
type Option func(*Client)

// WithDialTimeout bounds the websocket handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// WithPingInterval sets how often control pings are sent. Zero disables pings
// and read deadlines.
func WithPingInterval(d time.Duration) Option {
	return func(c *Client) { c.pingInterval = d }
}

// WithReadLimit caps the size of a single inbound frame.
func WithReadLimit(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.readLimit = n
		}
	}
}

// New creates a feed dialer for url.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:          url,
		dialTimeout:  10 * time.Second,
		pingInterval: 30 * time.Second,
		readLimit:    1 << 20,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dialer = &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: c.dialTimeout,
	}
	return c
}

// Endpoint returns the configured feed URL.
func (c *Client) Endpoint() string { return c.url }

// Dial establishes one websocket connection.
func (c *Client) Dial(ctx context.Context) (drepo.FeedConn, error) {
	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("feed dial %s: %w", c.url, err)
	}
	ws.SetReadLimit(c.readLimit)

	conn := &Conn{
		id:   uuid.NewString(),
		ws:   ws,
		done: make(chan struct{}),
	}
	if c.pingInterval > 0 {
		deadline := 2 * c.pingInterval
		_ = ws.SetReadDeadline(time.Now().Add(deadline))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(deadline))
		})
		conn.deadline = deadline
		go conn.pingLoop(c.pingInterval)
	}
	return conn, nil
}

// Conn is a live feed connection. ReadFrame must be called from one goroutine.
type Conn struct {
	id       string
	ws       *websocket.Conn
	deadline time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// ReadFrame returns the payload of the next data frame.
func (c *Conn) ReadFrame() ([]byte, error) {
	for {
		mt, b, err := c.ws.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("feed read: %w", err)
		}
		if c.deadline > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(c.deadline))
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return b, nil
		}
	}
}

// Close sends a close frame and releases the socket. Safe to call repeatedly.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) pingLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(every)); err != nil {
				return
			}
		}
	}
}

var _ drepo.FeedDialer = (*Client)(nil)
