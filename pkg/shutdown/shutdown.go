// Package shutdown coordinates cmd/poold's graceful stop: it counts
// in-flight operations registered through Add or NewGuard and gives
// callers a channel to select on instead of polling a flag.
package shutdown

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Coordinator tracks in-flight operations against a shutdown signal.
type Coordinator struct {
	mu         sync.Mutex
	inFlight   int64
	shutdownCh chan struct{}
	closed     int32
}

// New returns a Coordinator ready to track operations.
func New() *Coordinator {
	return &Coordinator{shutdownCh: make(chan struct{})}
}

// Add registers one in-flight operation. Returns false once shutdown has
// started, meaning the caller should refuse the operation instead.
func (c *Coordinator) Add() bool {
	if atomic.LoadInt32(&c.closed) != 0 {
		return false
	}
	atomic.AddInt64(&c.inFlight, 1)
	return true
}

// Done releases one in-flight operation registered by Add.
func (c *Coordinator) Done() {
	atomic.AddInt64(&c.inFlight, -1)
}

// InFlight reports the current number of registered operations.
func (c *Coordinator) InFlight() int64 {
	return atomic.LoadInt64(&c.inFlight)
}

// IsShuttingDown reports whether Shutdown has been called.
func (c *Coordinator) IsShuttingDown() bool {
	return atomic.LoadInt32(&c.closed) != 0
}

// Shutdown signals ShutdownCh exactly once.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		close(c.shutdownCh)
	}
}

// ShutdownCh closes when Shutdown is called.
func (c *Coordinator) ShutdownCh() <-chan struct{} {
	return c.shutdownCh
}

// Wait blocks until every in-flight operation has called Done, or ctx is
// cancelled.
func (c *Coordinator) Wait(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if atomic.LoadInt64(&c.inFlight) <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitWithTimeout is Wait bounded by a fresh timeout context.
func (c *Coordinator) WaitWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Wait(ctx)
}

// ShutdownAndWait signals shutdown and waits (bounded by timeout) for
// drain, in one call, the sequence cmd/poold's signal handler wants.
func (c *Coordinator) ShutdownAndWait(timeout time.Duration) error {
	c.Shutdown()
	return c.WaitWithTimeout(timeout)
}

// Guard is an RAII-style in-flight operation tracker: construct with
// NewGuard, defer Close.
type Guard struct {
	c     *Coordinator
	added bool
}

// NewGuard registers one in-flight operation. Returns nil once shutdown
// has started; callers must treat a nil Guard as "refuse this operation".
func NewGuard(c *Coordinator) *Guard {
	if c == nil {
		return &Guard{}
	}
	if !c.Add() {
		return nil
	}
	return &Guard{c: c, added: true}
}

// Close releases the guarded operation. Safe to call on a nil Guard.
func (g *Guard) Close() {
	if g != nil && g.added && g.c != nil {
		g.c.Done()
		g.added = false
	}
}
