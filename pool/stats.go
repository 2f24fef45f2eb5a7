package pool

import "sync/atomic"

// stats holds the pool's cumulative counters. Fields are only touched
// through sync/atomic.
type stats struct {
	Hits          uint64 // acquires served from idle
	Creates       uint64 // connectors opened
	Handoffs      uint64 // connectors passed directly to a waiter
	Timeouts      uint64 // acquires that timed out waiting
	CreateErrors  uint64 // failed open attempts
	ResetFailures uint64 // connectors that failed Reset at release
	Discards      uint64 // connectors discarded as broken
}

// Stats is a read-only snapshot of a pool's cumulative counters.
type Stats struct {
	Hits          uint64 `json:"hits"`
	Creates       uint64 `json:"creates"`
	Handoffs      uint64 `json:"handoffs"`
	Timeouts      uint64 `json:"timeouts"`
	CreateErrors  uint64 `json:"create_errors"`
	ResetFailures uint64 `json:"reset_failures"`
	Discards      uint64 `json:"discards"`
}

// Stats returns the pool's cumulative counters. It does not take the pool
// mutex and is safe to call from diagnostics paths at any time.
func (p *Pool) Stats() Stats {
	return Stats{
		Hits:          atomic.LoadUint64(&p.stats.Hits),
		Creates:       atomic.LoadUint64(&p.stats.Creates),
		Handoffs:      atomic.LoadUint64(&p.stats.Handoffs),
		Timeouts:      atomic.LoadUint64(&p.stats.Timeouts),
		CreateErrors:  atomic.LoadUint64(&p.stats.CreateErrors),
		ResetFailures: atomic.LoadUint64(&p.stats.ResetFailures),
		Discards:      atomic.LoadUint64(&p.stats.Discards),
	}
}
