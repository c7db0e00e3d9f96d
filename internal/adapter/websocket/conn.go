package websocket

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gongo/emacs-realtime-markdown-viewer/internal/domain"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	defaultWriteTimeout    = 5 * time.Second
	defaultPingInterval    = 30 * time.Second
	defaultMaxMessageBytes = 1 << 20
	closeWriteTimeout      = time.Second
)

// Options tunes a Conn. Zero values fall back to defaults.
type Options struct {
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = defaultMaxMessageBytes
	}
	return o
}

// NewUpgrader returns an upgrader using checkOrigin.
func NewUpgrader(checkOrigin func(r *http.Request) bool) *ws.Upgrader {
	return &ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin,
	}
}

// Conn is one accepted producer or viewer connection.
type Conn struct {
	id    uuid.UUID
	conn  *ws.Conn
	clock clockwork.Clock
	opts  Options

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// NewConn wraps an upgraded connection.
func NewConn(conn *ws.Conn, clock clockwork.Clock, opts Options) *Conn {
	opts = opts.withDefaults()
	conn.SetReadLimit(opts.MaxMessageBytes)
	return &Conn{
		id:    uuid.New(),
		conn:  conn,
		clock: clock,
		opts:  opts,
		done:  make(chan struct{}),
	}
}

func (c *Conn) ID() uuid.UUID {
	return c.id
}

// Receive blocks for the next data frame and returns its payload.
func (c *Conn) Receive() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if isClosed(err) {
			return nil, fmt.Errorf("%w: %w", domain.ErrConnectionClosed, err)
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return data, nil
}

// Send writes fragment as a single text frame, bounded by the write timeout.
func (c *Conn) Send(fragment domain.Fragment) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return fmt.Errorf("%w: connection closed locally", domain.ErrViewerGone)
	default:
	}

	c.updateWriteDeadline()
	if err := c.conn.WriteMessage(ws.TextMessage, []byte(fragment)); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrViewerGone, err)
	}
	return nil
}

// StartKeepalive pings the peer every PingInterval and expects a pong within
// two intervals; a missed pong fails the pending Receive.
func (c *Conn) StartKeepalive() {
	pongWait := 2 * c.opts.PingInterval
	c.updateReadDeadline(pongWait)
	c.conn.SetPongHandler(func(string) error {
		c.updateReadDeadline(pongWait)
		return nil
	})

	c.wg.Add(1)
	go c.pingLoop()
}

func (c *Conn) pingLoop() {
	defer c.wg.Done()

	ticker := c.clock.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			deadline := c.clock.Now().Add(c.opts.WriteTimeout)
			if err := c.conn.WriteControl(ws.PingMessage, nil, deadline); err != nil {
				// Unblocks the reader; its loop performs the cleanup.
				_ = c.conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close sends a normal-closure frame with reason and closes the connection.
// Safe to call more than once and from multiple goroutines.
func (c *Conn) Close(reason string) error {
	c.closeOnce.Do(func() {
		close(c.done)

		msg := ws.FormatCloseMessage(ws.CloseNormalClosure, reason)
		_ = c.conn.WriteControl(ws.CloseMessage, msg, c.clock.Now().Add(closeWriteTimeout))

		c.closeErr = c.conn.Close()
	})
	c.wg.Wait()
	return c.closeErr
}

func (c *Conn) updateWriteDeadline() {
	_ = c.conn.SetWriteDeadline(c.clock.Now().Add(c.opts.WriteTimeout))
}

func (c *Conn) updateReadDeadline(wait time.Duration) {
	_ = c.conn.SetReadDeadline(c.clock.Now().Add(wait))
}

func isClosed(err error) bool {
	var closeErr *ws.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	// An oversized frame has already been answered with a close frame.
	if errors.Is(err, ws.ErrReadLimit) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
