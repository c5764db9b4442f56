package persistence_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/persistence"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := persistence.NewMemoryStore()
	ctx := context.Background()

	rec := persistence.ElementRecord{ID: elementid.ID(7), CtrlID: elementid.ID(1), Axis: 2}
	require.NoError(t, store.Save(ctx, rec))

	got, ok, err := store.Load(ctx, elementid.ID(7))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec, got)

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, store.Delete(ctx, elementid.ID(7)))
	_, ok, err = store.Load(ctx, elementid.ID(7))
	require.NoError(t, err)
	require.False(t, ok)
}
