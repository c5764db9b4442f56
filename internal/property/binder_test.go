package property_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/pool-orchestrator/internal/configstore"
	"github.com/r3e-network/pool-orchestrator/internal/pluginloader"
	"github.com/r3e-network/pool-orchestrator/internal/property"
)

func TestResolveDefaultFallback(t *testing.T) {
	ctx := context.Background()
	store := configstore.NewMemoryStore()
	b := property.NewBinder(store)

	schema := []pluginloader.PropertyDecl{
		{Name: "Host", Type: pluginloader.PropString},
		{Name: "Port", Type: pluginloader.PropInt32, HasDefault: true, Default: int64(5000)},
	}
	require.NoError(t, store.Set(ctx, configstore.Key("icepap01", "Host"), "192.168.1.1"))

	resolved, err := b.Resolve(ctx, "icepap01", schema)
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.Equal(t, "192.168.1.1", resolved[0].Value)
	assert.False(t, resolved[0].NotInDB)
	assert.Equal(t, int64(5000), resolved[1].Value)
	assert.True(t, resolved[1].NotInDB)
}

func TestResolveMissingProperty(t *testing.T) {
	ctx := context.Background()
	store := configstore.NewMemoryStore()
	b := property.NewBinder(store)

	schema := []pluginloader.PropertyDecl{{Name: "Host", Type: pluginloader.PropString}}
	_, err := b.Resolve(ctx, "icepap01", schema)
	require.Error(t, err)
}

func TestArrayRoundTripWithEmbeddedNewline(t *testing.T) {
	ctx := context.Background()
	store := configstore.NewMemoryStore()
	b := property.NewBinder(store)

	schema := []pluginloader.PropertyDecl{{Name: "Labels", Type: pluginloader.PropStringArray}}
	resolved, err := b.BuildPropertyData(ctx, "io01", schema, map[string]any{
		"Labels": []any{"a\nb", "c", "d"},
	})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, []any{"a\nb", "c", "d"}, resolved[0].Value)
}

func TestBuildPropertyDataJSONOverride(t *testing.T) {
	ctx := context.Background()
	store := configstore.NewMemoryStore()
	b := property.NewBinder(store)

	schema := []pluginloader.PropertyDecl{{Name: "Thresholds", Type: pluginloader.PropFloat64Array}}
	resolved, err := b.BuildPropertyData(ctx, "ct01", schema, map[string]any{
		"Thresholds": `[1.5, 2.5, 3.5]`,
	})
	require.NoError(t, err)
	assert.Equal(t, []any{1.5, 2.5, 3.5}, resolved[0].Value)
}
