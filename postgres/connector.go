// Package postgres provides a pooled connector backed by a real PostgreSQL
// session via pgconn.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ncoder/npgsql/pool"
)

const closeTimeout = 5 * time.Second

// PGConnector wraps a single pgconn session. Reset rolls the session back
// to a pristine state with DISCARD ALL; pgconn's own liveness tracking
// drives the broken flag.
type PGConnector struct {
	cfg  pool.Config
	conn *pgconn.PgConn
}

// NewConnectorFactory returns a factory producing PostgreSQL connectors.
// The pool configuration's Endpoint is a host:port pair.
func NewConnectorFactory() pool.ConnectorFactory {
	return func(cfg pool.Config) pool.Connector {
		return &PGConnector{cfg: cfg}
	}
}

// Open establishes the session. Credentials override whatever the
// connection string would otherwise carry.
func (c *PGConnector) Open(ctx context.Context, creds pool.Credentials) error {
	connStr := fmt.Sprintf("postgresql://%s/%s", c.cfg.Endpoint, c.cfg.Database)
	pgCfg, err := pgconn.ParseConfig(connStr)
	if err != nil {
		return fmt.Errorf("parse connection config for %s: %w", c.cfg.Endpoint, err)
	}
	pgCfg.User = creds.User
	pgCfg.Password = creds.Password
	if creds.Database != "" {
		pgCfg.Database = creds.Database
	}

	conn, err := pgconn.ConnectConfig(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.cfg.Endpoint, err)
	}
	c.conn = conn
	return nil
}

// Reset discards all session state accumulated by the previous checkout:
// temp tables, prepared statements, advisory locks, GUC changes.
func (c *PGConnector) Reset(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("reset: session is not open")
	}
	if err := c.conn.Exec(ctx, "DISCARD ALL").Close(); err != nil {
		return fmt.Errorf("discard session state: %w", err)
	}
	return nil
}

// IsBroken reports whether the session is unusable.
func (c *PGConnector) IsBroken() bool {
	return c.conn == nil || c.conn.IsClosed()
}

// Close terminates the session, bounding the goodbye exchange.
func (c *PGConnector) Close() error {
	if c.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	err := c.conn.Close(ctx)
	c.conn = nil
	return err
}

// Conn exposes the underlying pgconn session for query execution.
func (c *PGConnector) Conn() *pgconn.PgConn {
	return c.conn
}
