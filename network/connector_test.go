package network

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncoder/npgsql/pool"
)

// echoServer accepts connections and echoes everything back until the peer
// hangs up. Returns the listen address; the listener stops with the test.
func echoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 512)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					if _, err := c.Write(buf[:n]); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestOpenAndEcho(t *testing.T) {
	addr := echoServer(t)

	factory := NewTCPConnectorFactory(time.Second, nil)
	c := factory(pool.Config{Endpoint: addr}).(*NetConnector)

	require.NoError(t, c.Open(context.Background(), pool.Credentials{}))
	defer c.Close()

	_, err := c.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	require.NoError(t, c.SetDeadline(time.Now().Add(time.Second)))
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
	assert.False(t, c.IsBroken())
}

func TestOpenRefusedWrapsDialError(t *testing.T) {
	// Grab a port and close it so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	factory := NewTCPConnectorFactory(time.Second, nil)
	c := factory(pool.Config{Endpoint: addr})

	err = c.Open(context.Background(), pool.Credentials{})
	require.Error(t, err)
	assert.True(t, IsNetError(err))
	assert.True(t, IsConnectionError(err))
}

func TestOpenDoubleOpen(t *testing.T) {
	addr := echoServer(t)

	factory := NewTCPConnectorFactory(time.Second, nil)
	c := factory(pool.Config{Endpoint: addr})

	require.NoError(t, c.Open(context.Background(), pool.Credentials{}))
	defer c.Close()

	err := c.Open(context.Background(), pool.Credentials{})
	assert.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestOpenExpiredContext(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	factory := NewTCPConnectorFactory(time.Second, nil)
	c := factory(pool.Config{Endpoint: "127.0.0.1:1"})

	err := c.Open(ctx, pool.Credentials{})
	require.Error(t, err)
	assert.True(t, IsTimeoutError(err))
}

func TestHandshakeRunsAndCanReject(t *testing.T) {
	addr := echoServer(t)

	var seen pool.Credentials
	ok := NewTCPConnectorFactory(time.Second, func(ctx context.Context, conn net.Conn, creds pool.Credentials) error {
		seen = creds
		return nil
	})
	c := ok(pool.Config{Endpoint: addr})
	require.NoError(t, c.Open(context.Background(), pool.Credentials{User: "app", Password: "hunter2"}))
	assert.Equal(t, "app", seen.User)
	assert.Equal(t, "hunter2", seen.Password)
	require.NoError(t, c.Close())

	reject := NewTCPConnectorFactory(time.Second, func(ctx context.Context, conn net.Conn, creds pool.Credentials) error {
		return errors.New("auth failed")
	})
	c2 := reject(pool.Config{Endpoint: addr})
	err := c2.Open(context.Background(), pool.Credentials{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth failed")
}

func TestResetHealthyTransport(t *testing.T) {
	addr := echoServer(t)

	factory := NewTCPConnectorFactory(time.Second, nil)
	c := factory(pool.Config{Endpoint: addr})
	require.NoError(t, c.Open(context.Background(), pool.Credentials{}))
	defer c.Close()

	assert.NoError(t, c.Reset(context.Background()))
	assert.False(t, c.IsBroken())
}

func TestResetDetectsStrayData(t *testing.T) {
	addr := echoServer(t)

	factory := NewTCPConnectorFactory(time.Second, nil)
	c := factory(pool.Config{Endpoint: addr}).(*NetConnector)
	require.NoError(t, c.Open(context.Background(), pool.Credentials{}))
	defer c.Close()

	// Echoed bytes left unread put the session out of sync.
	_, err := c.Write([]byte("x"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return c.Reset(context.Background()) != nil
	}, time.Second, 10*time.Millisecond)
	assert.True(t, c.IsBroken())
}

func TestResetDetectsPeerClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	factory := NewTCPConnectorFactory(time.Second, nil)
	c := factory(pool.Config{Endpoint: ln.Addr().String()}).(*NetConnector)
	require.NoError(t, c.Open(context.Background(), pool.Credentials{}))
	defer c.Close()

	server := <-accepted
	require.NoError(t, server.Close())

	require.Eventually(t, func() bool {
		return c.Reset(context.Background()) != nil
	}, time.Second, 10*time.Millisecond)
	assert.True(t, c.IsBroken())
	assert.ErrorIs(t, c.Reset(context.Background()), ErrBroken)
}

func TestReadFailureFlagsBroken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	factory := NewTCPConnectorFactory(time.Second, nil)
	c := factory(pool.Config{Endpoint: ln.Addr().String()}).(*NetConnector)
	require.NoError(t, c.Open(context.Background(), pool.Credentials{}))
	defer c.Close()

	server := <-accepted
	require.NoError(t, server.Close())

	buf := make([]byte, 1)
	require.NoError(t, c.SetDeadline(time.Now().Add(time.Second)))
	_, err = c.Read(buf)
	require.Error(t, err)
	assert.True(t, c.IsBroken())
}

func TestReadTimeoutDoesNotFlagBroken(t *testing.T) {
	addr := echoServer(t)

	factory := NewTCPConnectorFactory(time.Second, nil)
	c := factory(pool.Config{Endpoint: addr}).(*NetConnector)
	require.NoError(t, c.Open(context.Background(), pool.Credentials{}))
	defer c.Close()

	require.NoError(t, c.SetDeadline(time.Now().Add(10*time.Millisecond)))
	buf := make([]byte, 1)
	_, err := c.Read(buf)
	require.Error(t, err)
	assert.False(t, c.IsBroken())
}

func TestPoolDiscardsBrokenTransport(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 2)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted <- conn
		}
	}()

	cfg := pool.Config{Endpoint: ln.Addr().String(), User: "app", Database: "orders", MaxSize: 2, AcquireTimeout: time.Second}
	p, err := pool.NewPool(cfg, pool.Credentials{}, NewTCPConnectorFactory(time.Second, nil))
	require.NoError(t, err)
	defer p.Close()

	pc, err := p.Acquire(context.Background())
	require.NoError(t, err)
	nc := pc.Conn().(*NetConnector)
	server := <-accepted

	// Kill the server side while checked out. The release-time probe sees
	// EOF and the pool discards the connector instead of re-idling it.
	require.NoError(t, server.Close())
	buf := make([]byte, 1)
	require.NoError(t, nc.SetDeadline(time.Now().Add(time.Second)))
	_, err = nc.Read(buf)
	require.Error(t, err)
	require.True(t, nc.IsBroken())
	pc.Release()

	st := p.Status()
	assert.Equal(t, 0, st.Busy)
	assert.Equal(t, 0, st.Idle)

	// A fresh acquire gets a new transport, never the discarded one.
	pc2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, nc, pc2.Conn())
	pc2.Release()
}
