package pool

import (
	"context"
	"sort"
	"sync"
)

// Registry maps configuration keys to pools, creating each pool lazily on
// first reference and never removing it. It is an explicit value with
// application-controlled lifetime; share one registry per process, or per
// whatever scope the application wants pools shared in.
type Registry struct {
	factory ConnectorFactory
	creds   CredentialFunc

	mu    sync.RWMutex
	pools map[Config]*Pool
}

// NewRegistry creates a registry whose pools open connectors through the
// given factory. A nil creds falls back to IdentityCredentials.
func NewRegistry(factory ConnectorFactory, creds CredentialFunc) *Registry {
	if creds == nil {
		creds = IdentityCredentials
	}
	return &Registry{
		factory: factory,
		creds:   creds,
		pools:   make(map[Config]*Pool),
	}
}

// GetOrCreate returns the pool for cfg, creating it on first reference.
// Concurrent calls with equal keys observe the same *Pool on every call. A
// configuration that fails validation creates nothing and is not retained.
func (r *Registry) GetOrCreate(cfg Config) (*Pool, error) {
	r.mu.RLock()
	p, ok := r.pools[cfg]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pools[cfg]; ok {
		return p, nil
	}
	p, err := NewPool(cfg, r.creds(cfg), r.factory)
	if err != nil {
		return nil, err
	}
	r.pools[cfg] = p
	return p, nil
}

// Acquire is the registry-level convenience path: resolve the pool for cfg,
// then acquire from it.
func (r *Registry) Acquire(ctx context.Context, cfg Config) (*PooledConnector, error) {
	p, err := r.GetOrCreate(cfg)
	if err != nil {
		return nil, err
	}
	return p.Acquire(ctx)
}

// Pools returns the registry's pools in a stable order.
func (r *Registry) Pools() []*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pools := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	sort.Slice(pools, func(i, j int) bool {
		return pools[i].cfg.Name() < pools[j].cfg.Name()
	})
	return pools
}

// Snapshot returns a status snapshot of every pool, for diagnostics.
func (r *Registry) Snapshot() []PoolStatus {
	pools := r.Pools()
	statuses := make([]PoolStatus, 0, len(pools))
	for _, p := range pools {
		statuses = append(statuses, p.Status())
	}
	return statuses
}

// Close closes every pool. The registry itself keeps its entries; a closed
// pool stays closed.
func (r *Registry) Close() {
	for _, p := range r.Pools() {
		p.Close()
	}
}
