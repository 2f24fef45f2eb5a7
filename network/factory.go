package network

import (
	"time"

	"github.com/ncoder/npgsql/pool"
)

// NewTCPConnectorFactory returns a factory producing TCP connectors for a
// pool configuration's endpoint. The handshake may be nil for protocols
// with no authentication step.
func NewTCPConnectorFactory(timeout time.Duration, handshake HandshakeFunc) pool.ConnectorFactory {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return func(cfg pool.Config) pool.Connector {
		return &NetConnector{
			network:   "tcp",
			address:   cfg.Endpoint,
			timeout:   timeout,
			handshake: handshake,
		}
	}
}

// NewUnixConnectorFactory returns a factory producing Unix socket
// connectors. The configuration's Endpoint is the socket path.
func NewUnixConnectorFactory(timeout time.Duration, handshake HandshakeFunc) pool.ConnectorFactory {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return func(cfg pool.Config) pool.Connector {
		return &NetConnector{
			network:   "unix",
			address:   cfg.Endpoint,
			timeout:   timeout,
			handshake: handshake,
		}
	}
}
