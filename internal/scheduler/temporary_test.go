package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/pool-orchestrator/internal/element"
	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/eventbus"
	"github.com/r3e-network/pool-orchestrator/internal/registry"
	"github.com/r3e-network/pool-orchestrator/internal/scheduler"
	"github.com/r3e-network/pool-orchestrator/internal/session"
)

func newTmpRig(t *testing.T, maxInactive time.Duration) (*scheduler.Scheduler, *registry.Registry, []elementid.ID) {
	t.Helper()
	ctx := context.Background()
	reg := registry.New(elementid.NewAllocator())
	sched := scheduler.New(reg, session.NewManager(), eventbus.New(nil), scheduler.Config{
		DefaultPollInterval: time.Millisecond,
		MaxInactive:         maxInactive,
	}, nil)

	var ids []elementid.ID
	for _, name := range []string{"m1", "m2", "m3"} {
		id := reg.Allocator().Next(elementid.SpacePublic)
		require.NoError(t, reg.Add(ctx, element.NewMotor(id, name, 1, len(ids)+1)))
		ids = append(ids, id)
	}
	return sched, reg, ids
}

func TestTemporaryGroupReusedForSameMembers(t *testing.T) {
	sched, reg, ids := newTmpRig(t, time.Minute)
	ctx := context.Background()

	g1, err := sched.TemporaryMotorGroup(ctx, []elementid.ID{ids[0], ids[1]}, false, nil)
	require.NoError(t, err)
	assert.True(t, g1.Hidden())

	// The temporary group listens on its members for aggregation.
	m0, err := reg.GetMotor(ctx, ids[0])
	require.NoError(t, err)
	assert.Len(t, m0.Listeners(), 1)

	// Same member set, different order: unordered comparison reuses.
	g2, err := sched.TemporaryMotorGroup(ctx, []elementid.ID{ids[1], ids[0]}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, g1.ElementID(), g2.ElementID())

	// Exact-order comparison treats the permutation as a distinct group.
	g3, err := sched.TemporaryMotorGroup(ctx, []elementid.ID{ids[1], ids[0]}, true, nil)
	require.NoError(t, err)
	assert.NotEqual(t, g1.ElementID(), g3.ElementID())
}

func TestTemporaryGroupDistinctMembers(t *testing.T) {
	sched, _, ids := newTmpRig(t, time.Minute)
	ctx := context.Background()

	g1, err := sched.TemporaryMotorGroup(ctx, []elementid.ID{ids[0], ids[1]}, false, nil)
	require.NoError(t, err)
	g2, err := sched.TemporaryMotorGroup(ctx, []elementid.ID{ids[0], ids[2]}, false, nil)
	require.NoError(t, err)
	assert.NotEqual(t, g1.ElementID(), g2.ElementID())
}

func TestAgeSweepCollectsInactiveTemporaries(t *testing.T) {
	sched, reg, ids := newTmpRig(t, 10*time.Millisecond)
	ctx := context.Background()

	g, err := sched.TemporaryMotorGroup(ctx, []elementid.ID{ids[0], ids[1]}, false, nil)
	require.NoError(t, err)

	// Too young to collect.
	assert.Equal(t, 0, sched.AgeSweep(ctx))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, sched.AgeSweep(ctx))

	_, err = reg.Get(ctx, g.ElementID())
	require.Error(t, err)

	// The sweep also detached the group from its members.
	m0, err := reg.GetMotor(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, m0.Listeners())
}

func TestTemporaryGroupUsesGhostIDSpace(t *testing.T) {
	sched, _, ids := newTmpRig(t, time.Minute)
	ctx := context.Background()

	g, err := sched.TemporaryMotorGroup(ctx, []elementid.ID{ids[0]}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, elementid.SpaceGhost, elementid.SpaceOf(g.ElementID()))
}
