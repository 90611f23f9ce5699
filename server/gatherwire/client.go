package gatherwire

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Client is a simple synchronous connection to one node.
// It locks send/recv so you can call Query concurrently but they'll serialize.
type Client struct {
	conn net.Conn
	mu   sync.Mutex
	id   atomic.Uint64

	// Optional per-request timeout (0 = no timeout).
	rwTimeout time.Duration
	maxFrame  int

	// set after an i/o failure; the stream may hold a stale response
	broken atomic.Bool
}

// ErrBrokenConn is returned by a Client whose earlier request failed mid-way.
var ErrBrokenConn = errors.New("gatherwire: connection broken by an earlier failure")

func Dial(addr string, timeout time.Duration) (*Client, error) {
	return DialContext(context.Background(), addr, timeout)
}

func DialContext(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	d := net.Dialer{Timeout: timeout}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: c, maxFrame: MaxFrameSize}, nil
}

// SetRWTimeout sets a per-Query read/write deadline.
// Useful to avoid hanging forever if the node dies.
func (c *Client) SetRWTimeout(d time.Duration) {
	if c == nil {
		return
	}
	c.rwTimeout = d
}

// SetMaxFrameSize bounds the accepted response size, compressed or not.
func (c *Client) SetMaxFrameSize(n int) {
	if c != nil && n > 0 {
		c.maxFrame = n
	}
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Query sends req and returns the node's encoded DataTable. req.ID is
// assigned by the client.
func (c *Client) Query(ctx context.Context, req QueryRequest) ([]byte, error) {
	if c == nil || c.conn == nil {
		return nil, fmt.Errorf("gatherwire: nil client")
	}

	req.ID = c.id.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken.Load() {
		return nil, ErrBrokenConn
	}

	// Apply deadline if configured or context has deadline.
	if err := c.applyDeadline(ctx); err != nil {
		return nil, err
	}
	defer func() {
		// Clear deadline after request so idle connection doesn't expire.
		_ = c.conn.SetDeadline(time.Time{})
	}()

	// A cancel without deadline still has to unblock the read.
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Now()) })
	defer stop()

	if err := WriteFrame(c.conn, req); err != nil {
		c.broken.Store(true)
		return nil, c.ctxErr(ctx, err)
	}

	id, payload, err := ReadPayload(c.conn, c.maxFrame)
	if err != nil {
		c.broken.Store(true)
		return nil, c.ctxErr(ctx, err)
	}
	if id != req.ID {
		c.broken.Store(true)
		return nil, fmt.Errorf("gatherwire: response id mismatch: got=%d want=%d", id, req.ID)
	}
	return payload, nil
}

// ctxErr prefers the context's reason over the i/o error it caused.
func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("gatherwire: %w (%v)", ctxErr, err)
	}
	return err
}

func (c *Client) applyDeadline(ctx context.Context) error {
	// Prefer context deadline if present; otherwise use rwTimeout.
	if dl, ok := ctx.Deadline(); ok {
		return c.conn.SetDeadline(dl)
	}
	if c.rwTimeout > 0 {
		return c.conn.SetDeadline(time.Now().Add(c.rwTimeout))
	}
	return nil
}
