package pool

import (
	"fmt"
	"time"
)

// MaxPoolCeiling is the hard upper bound on MaxSize for any pool.
const MaxPoolCeiling = 1024

// Config identifies a pool. Two equal Config values share one Pool, so the
// struct must stay comparable. Secrets do not belong here; they are resolved
// separately through Credentials.
type Config struct {
	// Endpoint is the backend address, e.g. "db-1:5432".
	Endpoint string
	// User is the credential identity the pool's connectors authenticate as.
	User string
	// Database is the logical database connectors are bound to.
	Database string
	// MinSize is the warm minimum the pool tops up to on Acquire.
	MinSize int
	// MaxSize is the maximum number of connectors, idle plus busy.
	MaxSize int
	// AcquireTimeout bounds Acquire when the caller's context has no
	// deadline of its own.
	AcquireTimeout time.Duration
}

// Validate checks the numeric bounds. Anything beyond bound checking is the
// connector implementation's concern.
func (c Config) Validate() error {
	if c.MinSize < 0 {
		return &ConfigError{Reason: fmt.Sprintf("MinSize %d is negative", c.MinSize)}
	}
	if c.MaxSize <= 0 {
		return &ConfigError{Reason: fmt.Sprintf("MaxSize %d must be at least 1", c.MaxSize)}
	}
	if c.MinSize > c.MaxSize {
		return &ConfigError{Reason: fmt.Sprintf("MinSize %d exceeds MaxSize %d", c.MinSize, c.MaxSize)}
	}
	if c.MaxSize > MaxPoolCeiling {
		return &ConfigError{Reason: fmt.Sprintf("MaxSize %d exceeds the ceiling of %d", c.MaxSize, MaxPoolCeiling)}
	}
	return nil
}

// Name returns a stable human-readable identity for logging and diagnostics.
func (c Config) Name() string {
	return fmt.Sprintf("%s/%s@%s", c.Endpoint, c.Database, c.User)
}

// Credentials carries what a connector needs to authenticate during Open.
// Credentials are never logged.
type Credentials struct {
	User     string
	Password string
	Database string
}

// CredentialFunc resolves credentials for a pool configuration. Keeping
// secrets out of the Config key lets equal configurations share a pool.
type CredentialFunc func(cfg Config) Credentials

// IdentityCredentials resolves credentials straight from the configuration
// key, with no password. It is the default for registries.
func IdentityCredentials(cfg Config) Credentials {
	return Credentials{User: cfg.User, Database: cfg.Database}
}
