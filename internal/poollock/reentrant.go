// Package poollock implements the engine's reentrant monitors: the
// class lock, the per-element serialization monitor, the per-session
// serialization monitor, and the registry monitor must all be re-entrant
// from a single logical call chain (a plug-in call made while the caller
// already holds the session lock must not deadlock).
//
// Go's sync.Mutex has no notion of an owning goroutine, so reentrancy is
// modeled explicitly: callers thread a context.Context through the call
// chain, and RMutex.Lock records how many times *that chain* has entered
// the mutex, rather than reaching for goroutine-local storage, which Go
// does not provide.
package poollock

import (
	"context"
	"sync"
)

type heldKey struct{}

// held tracks, for one logical call chain, how many times each RMutex has
// been entered.
type held struct {
	mu  sync.Mutex
	cnt map[*RMutex]int
}

func ensureHeld(ctx context.Context) (context.Context, *held) {
	if h, ok := ctx.Value(heldKey{}).(*held); ok {
		return ctx, h
	}
	h := &held{cnt: make(map[*RMutex]int)}
	return context.WithValue(ctx, heldKey{}, h), h
}

// RMutex is a reentrant mutex scoped to a context-threaded call chain.
type RMutex struct {
	mu sync.Mutex
}

// Unlock releases one level of an RMutex acquisition.
type Unlock func()

// Lock acquires the mutex for the call chain carried by ctx. If the same
// chain already holds it, Lock returns immediately without blocking. The
// returned context must be passed to any nested call that might re-enter
// the same lock; the returned Unlock must be deferred by the caller.
func (r *RMutex) Lock(ctx context.Context) (context.Context, Unlock) {
	ctx, h := ensureHeld(ctx)

	h.mu.Lock()
	depth := h.cnt[r]
	h.mu.Unlock()

	if depth == 0 {
		r.mu.Lock()
	}

	h.mu.Lock()
	h.cnt[r] = depth + 1
	h.mu.Unlock()

	return ctx, func() {
		h.mu.Lock()
		h.cnt[r]--
		remaining := h.cnt[r]
		if remaining <= 0 {
			delete(h.cnt, r)
		}
		h.mu.Unlock()
		if remaining <= 0 {
			r.mu.Unlock()
		}
	}
}

// Held reports whether ctx's call chain currently holds r. Useful for
// asserting lock-order invariants in tests.
func (r *RMutex) Held(ctx context.Context) bool {
	h, ok := ctx.Value(heldKey{}).(*held)
	if !ok {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cnt[r] > 0
}
