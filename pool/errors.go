package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrAcquireTimeout is returned when capacity did not become available
	// within the caller's timeout. The caller may retry with a fresh Acquire.
	ErrAcquireTimeout = errors.New("pool: connector acquisition timed out")

	// ErrPoolClosed is returned when acquiring from a closed pool.
	ErrPoolClosed = errors.New("pool: pool is closed")
)

// PoolError represents errors specific to pool operations
type PoolError struct {
	Op  string
	Err error
}

func (e *PoolError) Error() string {
	return fmt.Sprintf("pool error during %s: %v", e.Op, e.Err)
}

func (e *PoolError) Unwrap() error {
	return e.Err
}

// ConfigError reports an invalid pool configuration. It is raised at pool
// construction, before any connector is touched, and is fatal for that
// configuration.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pool: invalid configuration: %s", e.Reason)
}

// CreateError reports a failed attempt to open a new connector. It is
// propagated to the caller whose Acquire triggered the open.
type CreateError struct {
	Endpoint string
	Err      error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("pool: opening connector to %s failed: %v", e.Endpoint, e.Err)
}

func (e *CreateError) Unwrap() error {
	return e.Err
}

// IsAcquireTimeout checks if an error is an acquisition timeout
func IsAcquireTimeout(err error) bool {
	return errors.Is(err, ErrAcquireTimeout)
}

// IsConfigError checks if an error is a configuration error
func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// IsCreateError checks if an error is a connector creation failure
func IsCreateError(err error) bool {
	var target *CreateError
	return errors.As(err, &target)
}
