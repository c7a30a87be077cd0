// Package websocket carries live page traffic over github.com/coder/websocket.
// It adds serialized writes, a keepalive read loop, rooms for broadcasting
// and a router for JSON messages.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// MessageType is the frame type of a message.
type MessageType = websocket.MessageType

const MessageText = websocket.MessageText

// StatusCode is a close status code.
type StatusCode = websocket.StatusCode

const (
	StatusNormalClosure = websocket.StatusNormalClosure
	StatusGoingAway     = websocket.StatusGoingAway
	StatusTryAgainLater = websocket.StatusTryAgainLater
)

// Conn is an accepted connection. Writes are serialized, so the read loop,
// broadcasts and keepalive may share it.
type Conn struct {
	ws *websocket.Conn

	mu      sync.Mutex
	closed  bool
	onClose func()
}

// AcceptOptions configures the upgrade.
type AcceptOptions struct {
	// OriginPatterns lists the hosts allowed to connect cross-origin, e.g.
	// "app.example.com" or "*.example.com". Same-origin is always allowed.
	OriginPatterns []string

	// Compress enables permessage-deflate without context takeover.
	Compress bool
}

// Accept upgrades the request. On failure the HTTP error has already been
// written.
func Accept(w http.ResponseWriter, r *http.Request, opts *AcceptOptions) (*Conn, error) {
	o := &websocket.AcceptOptions{CompressionMode: websocket.CompressionDisabled}
	if opts != nil {
		o.OriginPatterns = opts.OriginPatterns
		if opts.Compress {
			o.CompressionMode = websocket.CompressionNoContextTakeover
		}
	}
	ws, err := websocket.Accept(w, r, o)
	if err != nil {
		return nil, err
	}
	return &Conn{ws: ws}, nil
}

func (c *Conn) setOnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

// Close closes the connection normally.
func (c *Conn) Close() error {
	return c.CloseWithReason(StatusNormalClosure, "")
}

// CloseWithReason sends a close frame with code and reason. Only the first
// call has an effect.
func (c *Conn) CloseWithReason(code StatusCode, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	onClose := c.onClose
	c.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	if c.ws == nil {
		return nil
	}
	return c.ws.Close(code, reason)
}

func (c *Conn) writeJSON(ctx context.Context, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	return wsjson.Write(ctx, c.ws, v)
}

// Config tunes a connection's read loop.
type Config struct {
	// ReadTimeout bounds the wait for each message. Zero waits forever.
	ReadTimeout time.Duration

	// PingInterval is how often the peer is pinged. Zero disables pings.
	PingInterval time.Duration

	// PongTimeout is how long a ping may go unanswered before the
	// connection is dropped. Defaults to PingInterval.
	PongTimeout time.Duration

	// MaxMessageSize caps an incoming message.
	MaxMessageSize int64
}

// DefaultConfig suits small JSON envelopes.
func DefaultConfig() Config {
	return Config{
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		MaxMessageSize: 16 << 10,
	}
}

type frameFunc func(ctx context.Context, typ MessageType, data []byte) error

// readLoop hands each frame to fn until reading fails, ctx ends or fn
// returns an error. It pings the peer meanwhile when configured to.
func (c *Conn) readLoop(ctx context.Context, cfg Config, fn frameFunc) error {
	if cfg.MaxMessageSize > 0 {
		c.ws.SetReadLimit(cfg.MaxMessageSize)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.PingInterval > 0 {
		go c.keepAlive(ctx, cfg)
	}

	for {
		typ, data, err := c.read(ctx, cfg.ReadTimeout)
		if err != nil {
			return err
		}
		if err := fn(ctx, typ, data); err != nil {
			return err
		}
	}
}

func (c *Conn) read(ctx context.Context, timeout time.Duration) (MessageType, []byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.ws.Read(ctx)
}

func (c *Conn) keepAlive(ctx context.Context, cfg Config) {
	wait := cfg.PongTimeout
	if wait <= 0 {
		wait = cfg.PingInterval
	}
	t := time.NewTicker(cfg.PingInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		pctx, cancel := context.WithTimeout(ctx, wait)
		err := c.ws.Ping(pctx)
		cancel()
		if err != nil {
			_ = c.CloseWithReason(StatusGoingAway, "ping timeout")
			return
		}
	}
}
