package logger

import (
	"context"
)

// ContextKey is used for context values
type ContextKey string

const (
	// PoolNameKey is the context key for the pool identity
	PoolNameKey ContextKey = "pool"
	// EndpointKey is the context key for the backend endpoint
	EndpointKey ContextKey = "endpoint"
	// ConnectorIDKey is the context key for the connector identity
	ConnectorIDKey ContextKey = "connector_id"
)

// WithContextValue adds a value to the context for logging
func WithContextValue(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

// ExtractContextValues extracts logging-relevant values from context
func ExtractContextValues(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}

	var args []any

	if pool, ok := ctx.Value(PoolNameKey).(string); ok {
		args = append(args, "pool", pool)
	}

	if endpoint, ok := ctx.Value(EndpointKey).(string); ok {
		args = append(args, "endpoint", endpoint)
	}

	if connectorID, ok := ctx.Value(ConnectorIDKey).(string); ok {
		args = append(args, "connector_id", connectorID)
	}

	return args
}
