package network

import (
	"context"
	"fmt"
	"sync"

	"github.com/ncoder/npgsql/pool"
)

// MockConnectorFactory implements pool.ConnectorFactory for testing
type MockConnectorFactory struct {
	mu           sync.Mutex
	failCount    int
	currentCount int
	shouldFail   bool
	connectors   []*MockConnector
}

// NewMockConnectorFactory creates a new mock connector factory for testing
func NewMockConnectorFactory(shouldFail bool, failCount int) *MockConnectorFactory {
	return &MockConnectorFactory{
		shouldFail: shouldFail,
		failCount:  failCount,
	}
}

// Factory returns the pool.ConnectorFactory producing mock connectors.
func (f *MockConnectorFactory) Factory() pool.ConnectorFactory {
	return func(cfg pool.Config) pool.Connector {
		return &MockConnector{factory: f, address: cfg.Endpoint}
	}
}

// Opened returns every connector that opened successfully so far.
func (f *MockConnectorFactory) Opened() []*MockConnector {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockConnector(nil), f.connectors...)
}

func (f *MockConnectorFactory) nextOpen(c *MockConnector) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.currentCount++
	if f.shouldFail && f.currentCount <= f.failCount {
		return &NetError{
			Op:      "mock_dial",
			Address: c.address,
			Err:     fmt.Errorf("mock connection failure %d", f.currentCount),
		}
	}
	f.connectors = append(f.connectors, c)
	return nil
}

// MockConnector is an in-memory connector for testing
type MockConnector struct {
	factory *MockConnectorFactory
	address string

	mu     sync.Mutex
	opened bool
	closed bool
	broken bool
	resets int
}

func (c *MockConnector) Open(ctx context.Context, creds pool.Credentials) error {
	if err := c.factory.nextOpen(c); err != nil {
		return err
	}
	c.mu.Lock()
	c.opened = true
	c.mu.Unlock()
	return nil
}

func (c *MockConnector) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened || c.closed {
		return &NetError{Op: "reset", Address: c.address, Err: ErrNotOpen}
	}
	c.resets++
	if c.broken {
		return &NetError{Op: "reset", Address: c.address, Err: ErrBroken}
	}
	return nil
}

func (c *MockConnector) IsBroken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken
}

func (c *MockConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// SetBroken flips the broken flag, simulating a transport failure.
func (c *MockConnector) SetBroken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broken = true
}

// Closed reports whether Close was called.
func (c *MockConnector) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Resets reports how many times the connector was reset.
func (c *MockConnector) Resets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets
}
