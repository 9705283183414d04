package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
	"github.com/randalmurphal/beehive/pkg/beehive/observability"
)

// Client pushes framed messages to a Server.
//
// The client reconnects on demand: a server that is not yet listening, or a
// connection that failed mid-write, costs a retry rather than an error.
type Client struct {
	addr string
	opts options

	mu     sync.Mutex
	conn   net.Conn
	buf    []byte
	closed bool
}

// NewClient creates a client for addr. It does not dial until Connect or
// the first Send.
func NewClient(addr string, opts ...Option) *Client {
	c := &Client{addr: addr, opts: buildOptions(opts)}

	onRetry := c.opts.retry.OnRetry
	c.opts.retry.OnRetry = func(attempt int, err error) {
		observability.LogTransportRetry(c.opts.logger, addr, attempt, err)
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
	return c
}

// Addr returns the server address.
func (c *Client) Addr() string { return c.addr }

// Connect dials the server. A peer that is not accepting connections yet is
// not an error: the client stays disconnected and Send dials again.
// Connect fails only for a closed client or an unusable address.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return &bherrors.TransportError{Op: "connect", Addr: c.addr, Err: bherrors.ErrClosed}
	}
	if _, _, err := net.SplitHostPort(c.addr); err != nil {
		return &bherrors.TransportError{Op: "connect", Addr: c.addr, Err: err}
	}

	if err := c.dialLocked(ctx); err != nil {
		c.opts.logger.Debug("server not reachable yet",
			slog.String("addr", c.addr),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Connected reports whether the client holds an open connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) dialLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	d := net.Dialer{Timeout: c.opts.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return bherrors.Transient(&bherrors.TransportError{
			Op:   "dial",
			Addr: c.addr,
			Err:  fmt.Errorf("%w: %v", bherrors.ErrNotConnected, err),
		}, "server not reachable")
	}
	c.conn = conn
	return nil
}

// Send writes one message. Transient failures are retried with the
// client's backoff. When the retries are exhausted the message is dropped,
// logged, and the last error returned; such errors satisfy
// errors.IsRetryable. Oversized messages and a closed client fail
// immediately with a permanent error.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	if len(msg) > c.opts.maxFrameSize {
		err := bherrors.Permanent(&bherrors.TransportError{
			Op:   "send",
			Addr: c.addr,
			Err:  fmt.Errorf("%w: %d > %d", bherrors.ErrFrameTooLarge, len(msg), c.opts.maxFrameSize),
		}, "frame size")
		c.opts.metrics.RecordTransport(ctx, "send", len(msg), err)
		return err
	}

	result := bherrors.WithRetryContext(ctx, c.opts.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.write(ctx, msg)
	})
	c.opts.metrics.RecordTransport(ctx, "send", len(msg), result.Err)

	if result.Err != nil && bherrors.IsRetryable(result.Err) {
		observability.LogTransportDrop(c.opts.logger, c.addr, len(msg), result.Err)
	}
	return result.Err
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return &bherrors.TransportError{Op: "send", Addr: c.addr, Err: bherrors.ErrClosed}
	}
	if err := c.dialLocked(ctx); err != nil {
		return err
	}

	c.buf = appendFrame(c.buf[:0], msg)
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
	if _, err := c.conn.Write(c.buf); err != nil {
		// A partial frame cannot be resumed; start over on a new connection.
		_ = c.conn.Close()
		c.conn = nil

		cause := err
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			cause = fmt.Errorf("%w: %v", bherrors.ErrWouldBlock, err)
		}
		return &bherrors.TransportError{Op: "send", Addr: c.addr, Temporary: true, Err: cause}
	}
	return nil
}

// Shutdown closes the connection with zero linger. Unsent data is
// discarded. Shutdown is idempotent.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn != nil {
		closeNoLinger(c.conn)
		c.conn = nil
	}
	return nil
}
