package poollock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRMutexReentrant(t *testing.T) {
	var r RMutex
	ctx, unlock1 := r.Lock(context.Background())
	require.True(t, r.Held(ctx))

	// Re-entering from the same chain must not block.
	done := make(chan struct{})
	go func() {
		_, unlock2 := r.Lock(ctx)
		unlock2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reentrant Lock blocked")
	}

	unlock1()
	require.False(t, r.Held(context.Background()))
}

func TestRMutexExcludesOtherChains(t *testing.T) {
	var r RMutex
	_, unlock1 := r.Lock(context.Background())

	acquired := make(chan struct{})
	go func() {
		_, unlock2 := r.Lock(context.Background())
		close(acquired)
		unlock2()
	}()

	select {
	case <-acquired:
		t.Fatal("a fresh context chain acquired a lock already held elsewhere")
	case <-time.After(50 * time.Millisecond):
	}

	unlock1()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock never released to the waiting chain")
	}
}
