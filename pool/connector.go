package pool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Connector is the capability contract a pooled resource implements. The
// pool drives connectors only through these four operations; everything
// about wire protocols, authentication mechanics, and query execution stays
// on the implementation's side.
//
// Implementations must be pointer types.
type Connector interface {
	// Open establishes the underlying session. A failed Open leaves the
	// connector unusable.
	Open(ctx context.Context, creds Credentials) error
	// Reset restores the session-default state before the connector goes
	// back to the pool. A failed Reset marks the connector broken.
	Reset(ctx context.Context) error
	// IsBroken reports whether the connector's own I/O layer has flagged
	// the underlying transport as failed.
	IsBroken() bool
	// Close releases the underlying session.
	Close() error
}

// ConnectorFactory creates an unopened connector for a pool configuration.
type ConnectorFactory func(cfg Config) Connector

// State is the ownership tag of a pooled connector.
type State int32

const (
	// StateIdle means the pool owns the connector and may hand it out.
	StateIdle State = iota
	// StateBusy means a caller has the connector checked out.
	StateBusy
	// StateInTransit means the connector is mid hand-off from a Release to
	// a waiting acquirer and is visible to neither side.
	StateInTransit
	// StateDiscarded is terminal; the connector never re-enters the pool.
	StateDiscarded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateInTransit:
		return "in-transit"
	case StateDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// PooledConnector wraps a Connector with pool ownership bookkeeping.
type PooledConnector struct {
	inner     Connector
	id        uuid.UUID
	createdAt time.Time
	pool      *Pool
	state     atomic.Int32
}

// ID returns the connector's identity for logging and diagnostics.
func (pc *PooledConnector) ID() string {
	return pc.id.String()
}

// Conn returns the underlying connector so the holder can do its work.
// Only the caller currently holding the connector may use it.
func (pc *PooledConnector) Conn() Connector {
	return pc.inner
}

// State returns the current ownership tag.
func (pc *PooledConnector) State() State {
	return State(pc.state.Load())
}

// CreatedAt returns when the connector was opened.
func (pc *PooledConnector) CreatedAt() time.Time {
	return pc.createdAt
}

// Release hands the connector back to the pool that owns it.
func (pc *PooledConnector) Release() {
	pc.pool.Release(pc)
}

func (pc *PooledConnector) setState(s State) {
	pc.state.Store(int32(s))
}
