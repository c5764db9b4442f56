package persistence_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/persistence"
	"github.com/r3e-network/pool-orchestrator/internal/registry"
)

func TestRestoreIDsReservesPersistedIDs(t *testing.T) {
	store := persistence.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, persistence.ElementRecord{ID: elementid.ID(42), CtrlID: elementid.ID(1), Axis: 0}))

	reg := registry.New(elementid.NewAllocator())
	n, err := persistence.RestoreIDs(ctx, store, reg)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.True(t, reg.Allocator().IsReserved(elementid.ID(42)))
}
