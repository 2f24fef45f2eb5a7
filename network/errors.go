package network

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotOpen     = errors.New("connector is not open")
	ErrAlreadyOpen = errors.New("connector is already open")
	ErrBroken      = errors.New("transport has failed")
)

// NetError represents a structured network error
type NetError struct {
	Op      string
	Address string
	Err     error
}

func (e *NetError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("network error during %s to %s: %v", e.Op, e.Address, e.Err)
	}
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetError) Unwrap() error {
	return e.Err
}

// IsNetError checks if an error is a network error
func IsNetError(err error) bool {
	var target *NetError
	return errors.As(err, &target)
}

// IsTimeoutError checks if an error is a timeout error
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		strings.Contains(err.Error(), "i/o timeout")
}

// IsConnectionError checks if an error indicates a failed transport
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBroken) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset by peer") ||
		strings.Contains(errStr, "broken pipe")
}
