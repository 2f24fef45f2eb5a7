// Package pool manages reuse of expensive-to-establish network sessions
// ("connectors") per distinct configuration: bounded size, warm-minimum
// pre-fill, FIFO fairness among blocked acquirers, and safe reclamation of
// broken connectors. Connectors perform their own I/O; the pool only drives
// them through the Connector capability contract.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ncoder/npgsql/logger"
)

// Pool is a bounded collection of connectors for one configuration.
//
// One mutex guards the idle stack, the busy counter, and the waiter queue.
// It is held only for O(1) bookkeeping; Open, Reset, and Close always run
// outside it.
type Pool struct {
	cfg     Config
	creds   Credentials
	factory ConnectorFactory
	log     *slog.Logger

	mu      sync.Mutex
	idle    []*PooledConnector // LIFO: most recently released on top
	busy    int
	waiters []*waiter // FIFO: oldest request first
	closed  bool

	stats stats
}

// waiter is a single-resolution ticket for a blocked Acquire. It resolves
// with either a connector handed over directly or a nil grant: a busy slot
// transferred to the waiter, who opens its own connector against it. The
// delivered and cancelled flags are reconciled under the pool mutex so a
// fulfillment and a timeout expiry race deterministically: first to commit
// wins, and neither a connector nor a slot is ever lost.
type waiter struct {
	ch        chan *PooledConnector // buffered, capacity 1
	delivered bool
	cancelled bool
}

// NewPool creates a pool for the given configuration. Bounds are checked
// here; a violation means no pool and no connectors.
func NewPool(cfg Config, creds Credentials, factory ConnectorFactory) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		cfg:     cfg,
		creds:   creds,
		factory: factory,
		log: logger.With(
			logger.Component("pool"),
			logger.String("pool", cfg.Name()),
		),
	}
	p.log.Debug("pool created", "min", cfg.MinSize, "max", cfg.MaxSize)
	return p, nil
}

// Config returns the configuration key the pool was created for.
func (p *Pool) Config() Config {
	return p.cfg
}

// Name returns the pool's human-readable identity, "endpoint/database@user".
func (p *Pool) Name() string {
	return p.cfg.Name()
}

// Acquire returns a connector, blocking up to the caller's deadline when the
// pool is exhausted. When ctx carries no deadline the configured
// AcquireTimeout applies. The result is either a usable connector or one of
// the distinguishable error kinds: *CreateError for a failed open, or
// ErrAcquireTimeout for exhausted capacity.
func (p *Pool) Acquire(ctx context.Context) (*PooledConnector, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && p.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	if err := p.warmFill(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, &PoolError{Op: "acquire", Err: ErrPoolClosed}
	}

	// Pop the most recently released connector: warm resources are the most
	// likely to still have a live transport.
	if n := len(p.idle); n > 0 {
		pc := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.busy++
		pc.setState(StateBusy)
		p.mu.Unlock()
		atomic.AddUint64(&p.stats.Hits, 1)
		return pc, nil
	}

	if p.busy >= p.cfg.MaxSize {
		w := &waiter{ch: make(chan *PooledConnector, 1)}
		p.waiters = append(p.waiters, w)
		p.mu.Unlock()
		return p.await(ctx, w)
	}

	// Room to grow: reserve the slot before the open attempt so the size
	// bound holds, then open outside the mutex.
	p.busy++
	p.mu.Unlock()

	pc, err := p.open(ctx)
	if err != nil {
		p.mu.Lock()
		p.freeSlotLocked()
		p.mu.Unlock()
		atomic.AddUint64(&p.stats.CreateErrors, 1)
		return nil, err
	}
	atomic.AddUint64(&p.stats.Creates, 1)
	return pc, nil
}

// await blocks on a waiter ticket until fulfillment, pool close, or ctx
// expiry.
func (p *Pool) await(ctx context.Context, w *waiter) (*PooledConnector, error) {
	select {
	case pc, ok := <-w.ch:
		if !ok {
			return nil, &PoolError{Op: "acquire", Err: ErrPoolClosed}
		}
		return p.claim(ctx, pc)
	case <-ctx.Done():
	}

	// The context ended. A fulfillment may have committed in the meantime;
	// whichever committed first under the mutex wins.
	p.mu.Lock()
	if w.delivered {
		p.mu.Unlock()
		pc := <-w.ch // send already committed under the mutex
		return p.claim(ctx, pc)
	}
	w.cancelled = true
	for i, q := range p.waiters {
		if q == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	if errors.Is(ctx.Err(), context.Canceled) {
		p.log.Debug("acquire cancelled while waiting")
		return nil, &PoolError{Op: "acquire", Err: ctx.Err()}
	}
	atomic.AddUint64(&p.stats.Timeouts, 1)
	p.log.Debug("acquire timed out waiting for capacity")
	return nil, &PoolError{Op: "acquire", Err: ErrAcquireTimeout}
}

// claim finalizes a fulfilled ticket. A non-nil pc was handed over directly.
// A nil pc is a slot grant, redeemed by opening a fresh connector; a grant
// whose context already ended passes the slot on instead of hoarding it.
func (p *Pool) claim(ctx context.Context, pc *PooledConnector) (*PooledConnector, error) {
	if pc != nil {
		pc.setState(StateBusy)
		atomic.AddUint64(&p.stats.Handoffs, 1)
		return pc, nil
	}

	if ctx.Err() != nil {
		p.mu.Lock()
		p.freeSlotLocked()
		p.mu.Unlock()
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, &PoolError{Op: "acquire", Err: ctx.Err()}
		}
		atomic.AddUint64(&p.stats.Timeouts, 1)
		return nil, &PoolError{Op: "acquire", Err: ErrAcquireTimeout}
	}

	opened, err := p.open(ctx)
	if err != nil {
		p.mu.Lock()
		p.freeSlotLocked()
		p.mu.Unlock()
		atomic.AddUint64(&p.stats.CreateErrors, 1)
		return nil, err
	}
	atomic.AddUint64(&p.stats.Creates, 1)
	return opened, nil
}

// warmFill tops the pool up to its warm minimum. The missing slots are
// counted busy for the duration of the batch so the size bound holds, and
// every open runs outside the mutex. Per-attempt results are aggregated at
// the end: with no pre-existing idle capacity a failure is propagated and
// the batch is rolled back; with idle capacity on hand the failure is
// logged and suppressed.
func (p *Pool) warmFill(ctx context.Context) error {
	p.mu.Lock()
	need := p.cfg.MinSize - (len(p.idle) + p.busy)
	if p.closed || need <= 0 {
		p.mu.Unlock()
		return nil
	}
	p.busy += need
	p.mu.Unlock()

	opened := make([]*PooledConnector, 0, need)
	var firstErr error
	for i := 0; i < need; i++ {
		pc, err := p.open(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			atomic.AddUint64(&p.stats.CreateErrors, 1)
			continue
		}
		atomic.AddUint64(&p.stats.Creates, 1)
		opened = append(opened, pc)
	}

	p.mu.Lock()
	if p.closed {
		p.busy -= need
		p.mu.Unlock()
		for _, pc := range opened {
			pc.setState(StateDiscarded)
			_ = pc.inner.Close()
		}
		return nil
	}

	failFast := firstErr != nil && len(p.idle) == 0

	// Queued waiters take priority over idle storage; a handed-off
	// connector keeps its busy slot with the waiter.
	var leftover []*PooledConnector
	for _, pc := range opened {
		if w := p.takeWaiterLocked(); w != nil {
			w.delivered = true
			pc.setState(StateInTransit)
			w.ch <- pc
			continue
		}
		leftover = append(leftover, pc)
	}

	if failFast {
		// No usable capacity at all: fail fast. Unclaimed partial
		// successes are discarded along the failure path.
		for range leftover {
			p.decBusyLocked()
		}
		for i := len(opened); i < need; i++ {
			p.freeSlotLocked()
		}
		p.mu.Unlock()
		for _, pc := range leftover {
			pc.setState(StateDiscarded)
			_ = pc.inner.Close()
		}
		return firstErr
	}

	for _, pc := range leftover {
		pc.setState(StateIdle)
		p.idle = append(p.idle, pc)
		p.decBusyLocked()
	}
	for i := len(opened); i < need; i++ {
		p.freeSlotLocked()
	}
	p.mu.Unlock()

	if firstErr != nil {
		p.log.Warn("warm-fill open failed, continuing with existing capacity",
			logger.ErrorField(firstErr))
	}
	return nil
}

// open creates and opens one connector. The caller must have reserved a
// busy slot for it.
func (p *Pool) open(ctx context.Context) (*PooledConnector, error) {
	conn := p.factory(p.cfg)
	if err := conn.Open(ctx, p.creds); err != nil {
		return nil, &CreateError{Endpoint: p.cfg.Endpoint, Err: err}
	}

	pc := &PooledConnector{
		inner:     conn,
		id:        uuid.New(),
		createdAt: time.Now(),
		pool:      p,
	}
	pc.setState(StateBusy)
	p.log.Debug("connector opened", logger.ConnectorID(pc.ID()))
	return pc, nil
}

// Release hands a connector back to the pool. It never reports an error to
// the caller: a broken or unresettable connector is silently discarded.
func (p *Pool) Release(pc *PooledConnector) {
	if pc == nil {
		return
	}
	if pc.pool != p {
		panic("pool: connector released to a pool it does not belong to")
	}

	if pc.inner.IsBroken() {
		p.discard(pc, "broken")
		return
	}

	// Restore the session baseline before the connector becomes visible to
	// anyone else. A connector that cannot reset is broken.
	if err := pc.inner.Reset(context.Background()); err != nil {
		atomic.AddUint64(&p.stats.ResetFailures, 1)
		p.log.Warn("connector reset failed, discarding",
			logger.ConnectorID(pc.ID()), logger.ErrorField(err))
		p.discard(pc, "reset failed")
		return
	}

	p.mu.Lock()
	if p.closed {
		p.decBusyLocked()
		p.mu.Unlock()
		pc.setState(StateDiscarded)
		_ = pc.inner.Close()
		return
	}

	// Offer to the oldest waiter first. A fulfilled hand-off keeps the
	// connector counted busy and it never touches idle.
	if w := p.takeWaiterLocked(); w != nil {
		w.delivered = true
		pc.setState(StateInTransit)
		w.ch <- pc
		p.mu.Unlock()
		return
	}

	pc.setState(StateIdle)
	p.idle = append(p.idle, pc)
	p.decBusyLocked()
	p.mu.Unlock()
}

// discard permanently removes a connector that must never be reused. Its
// slot is freed, which may grant it to a queued waiter.
func (p *Pool) discard(pc *PooledConnector, reason string) {
	p.mu.Lock()
	p.freeSlotLocked()
	p.mu.Unlock()

	pc.setState(StateDiscarded)
	if err := pc.inner.Close(); err != nil {
		p.log.Debug("closing discarded connector", logger.ErrorField(err))
	}
	atomic.AddUint64(&p.stats.Discards, 1)
	p.log.Info("connector discarded",
		logger.ConnectorID(pc.ID()), logger.String("reason", reason))
}

// takeWaiterLocked pops the oldest live ticket. Tickets that lost the
// timeout race were already removed by their owners; the cancelled check
// covers a ticket whose owner has not re-entered the mutex yet.
func (p *Pool) takeWaiterLocked() *waiter {
	for len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		if w.cancelled {
			continue
		}
		return w
	}
	return nil
}

// freeSlotLocked returns one busy slot to the pool. With a live waiter
// queued, the slot transfers to it as a grant instead of lowering the busy
// count; the waiter opens its own connector against it. Without this,
// capacity freed by a discard or a failed open would never reach the queue.
func (p *Pool) freeSlotLocked() {
	if !p.closed {
		if w := p.takeWaiterLocked(); w != nil {
			w.delivered = true
			w.ch <- nil
			return
		}
	}
	p.decBusyLocked()
}

// decBusyLocked decrements the busy counter. A negative count is a
// programming error in the pool's own bookkeeping, not a recoverable
// condition.
func (p *Pool) decBusyLocked() {
	p.busy--
	if p.busy < 0 {
		panic("pool: busy counter went negative")
	}
}

// Close rejects further Acquires, fails queued waiters, and closes idle
// connectors. Busy connectors are closed when they come back through
// Release. Registries never remove pools; Close exists for shutdown paths.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, w := range waiters {
		close(w.ch)
	}
	for _, pc := range idle {
		pc.setState(StateDiscarded)
		_ = pc.inner.Close()
	}
	p.log.Debug("pool closed", "closed_idle", len(idle), "failed_waiters", len(waiters))
}

// PoolStatus is a read-only snapshot of one pool's occupancy.
type PoolStatus struct {
	Endpoint string `json:"endpoint"`
	Database string `json:"database"`
	User     string `json:"user"`
	Busy     int    `json:"busy"`
	Idle     int    `json:"idle"`
	Waiting  int    `json:"waiting"`
}

// Status returns the pool's current occupancy under the mutex.
func (p *Pool) Status() PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	waiting := 0
	for _, w := range p.waiters {
		if !w.cancelled {
			waiting++
		}
	}
	return PoolStatus{
		Endpoint: p.cfg.Endpoint,
		Database: p.cfg.Database,
		User:     p.cfg.User,
		Busy:     p.busy,
		Idle:     len(p.idle),
		Waiting:  waiting,
	}
}
