// Package network implements the pool's connector capability contract over
// plain net.Conn transports (TCP and Unix sockets), with dial timeout
// handling, an optional application handshake, and a liveness probe that
// drives the broken flag.
package network

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/ncoder/npgsql/pool"
)

const defaultDialTimeout = 30 * time.Second

// HandshakeFunc authenticates a freshly dialed transport. It runs during
// Open, before the connector is considered usable.
type HandshakeFunc func(ctx context.Context, conn net.Conn, creds pool.Credentials) error

// NetConnector is a pooled session over a single net.Conn. The broken flag
// is owned by the connector's own I/O layer: any Read/Write failure or a
// failed liveness probe sets it, and the pool discards the connector on the
// next Release.
type NetConnector struct {
	network   string
	address   string
	timeout   time.Duration
	handshake HandshakeFunc

	conn   net.Conn
	broken atomic.Bool
}

// Open dials the transport and runs the handshake, if any.
func (c *NetConnector) Open(ctx context.Context, creds pool.Credentials) error {
	if c.conn != nil {
		return &NetError{Op: "open", Address: c.address, Err: ErrAlreadyOpen}
	}

	// Use the context deadline if it is tighter than the dial timeout.
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return &NetError{Op: "dial", Address: c.address, Err: context.DeadlineExceeded}
		}
	}

	conn, err := net.DialTimeout(c.network, c.address, timeout)
	if err != nil {
		return &NetError{Op: "dial", Address: c.address, Err: err}
	}

	if c.handshake != nil {
		if err := c.handshake(ctx, conn, creds); err != nil {
			_ = conn.Close()
			return &NetError{Op: "handshake", Address: c.address, Err: err}
		}
	}

	c.conn = conn
	return nil
}

// Reset clears any per-checkout deadlines and probes the transport. A raw
// byte stream has no session state of its own to roll back, so a live
// transport with no stray inbound data is the pristine baseline.
func (c *NetConnector) Reset(ctx context.Context) error {
	if c.conn == nil {
		return &NetError{Op: "reset", Address: c.address, Err: ErrNotOpen}
	}
	if c.broken.Load() {
		return &NetError{Op: "reset", Address: c.address, Err: ErrBroken}
	}

	_ = c.conn.SetDeadline(time.Time{})

	if !c.probe() {
		c.broken.Store(true)
		return &NetError{Op: "reset", Address: c.address, Err: ErrBroken}
	}
	return nil
}

// probe does a non-blocking read with a short deadline. A timeout means the
// transport is alive with no pending data; anything readable means the
// session is out of sync with its baseline and must not be reused.
func (c *NetConnector) probe() bool {
	_ = c.conn.SetReadDeadline(time.Now().Add(1 * time.Millisecond))
	var buf [1]byte
	_, err := c.conn.Read(buf[:])
	_ = c.conn.SetReadDeadline(time.Time{})

	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return true
		}
		return false
	}
	return false
}

// IsBroken reports whether the transport has failed.
func (c *NetConnector) IsBroken() bool {
	return c.broken.Load()
}

// Close closes the underlying transport.
func (c *NetConnector) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Read reads from the transport, flagging the connector broken on failure.
func (c *NetConnector) Read(b []byte) (int, error) {
	if c.conn == nil {
		return 0, &NetError{Op: "read", Address: c.address, Err: ErrNotOpen}
	}
	n, err := c.conn.Read(b)
	if err != nil {
		if netErr, ok := err.(net.Error); !ok || !netErr.Timeout() {
			c.broken.Store(true)
		}
	}
	return n, err
}

// Write writes to the transport, flagging the connector broken on failure.
func (c *NetConnector) Write(b []byte) (int, error) {
	if c.conn == nil {
		return 0, &NetError{Op: "write", Address: c.address, Err: ErrNotOpen}
	}
	n, err := c.conn.Write(b)
	if err != nil {
		if netErr, ok := err.(net.Error); !ok || !netErr.Timeout() {
			c.broken.Store(true)
		}
	}
	return n, err
}

// SetDeadline sets the read and write deadlines on the transport.
func (c *NetConnector) SetDeadline(t time.Time) error {
	if c.conn == nil {
		return &NetError{Op: "set", Address: c.address, Err: ErrNotOpen}
	}
	return c.conn.SetDeadline(t)
}

// RemoteAddr returns the remote network address, or nil before Open.
func (c *NetConnector) RemoteAddr() net.Addr {
	if c.conn == nil {
		return nil
	}
	return c.conn.RemoteAddr()
}
