package pool_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/pool-orchestrator/internal/configstore"
	"github.com/r3e-network/pool-orchestrator/internal/element"
	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/eventbus"
	"github.com/r3e-network/pool-orchestrator/internal/persistence"
	"github.com/r3e-network/pool-orchestrator/internal/pluginloader"
	"github.com/r3e-network/pool-orchestrator/internal/pool"
	"github.com/r3e-network/pool-orchestrator/internal/poolerrors"
	"github.com/r3e-network/pool-orchestrator/internal/property"
	"github.com/r3e-network/pool-orchestrator/internal/registry"
	"github.com/r3e-network/pool-orchestrator/internal/session"
)

const motorCtrlSrc = `
PoolControllerClasses = [{
	name: "DemoMotor",
	category: "Motor",
	maxDevice: 4,
	properties: [
		{name: "Host", type: "string", default: "localhost"}
	],
	construct: function(instance, props) {
		var pos = {};
		return {
			AddDevice: function(a) { pos[a] = 0; },
			DeleteDevice: function(a) { delete pos[a]; },
			StateOne: function(a) { return ["On", ""]; },
			ReadOne: function(a) { return pos[a]; },
			StartOne: function(a, t) { pos[a] = t; },
			AbortOne: function(a) {}
		};
	}
}];
`

const rotCtrlSrc = `
PoolControllerClasses = [{
	name: "Rot",
	category: "PseudoMotor",
	roles: {motorRoles: ["a", "b"], pseudoMotorRoles: ["sum", "diff"]},
	construct: function(instance, props) {
		return {
			AddDevice: function(a) {},
			DeleteDevice: function(a) {},
			StateOne: function(a) { return ["On", ""]; },
			CalcPhysical: function(role, pseudo) {
				if (role === 0) { return (pseudo[0] + pseudo[1]) / 2; }
				return (pseudo[0] - pseudo[1]) / 2;
			},
			CalcPseudo: function(role, physical) {
				if (role === 0) { return physical[0] + physical[1]; }
				return physical[0] - physical[1];
			}
		};
	}
}];
`

type fixture struct {
	p       *pool.Pool
	reg     *registry.Registry
	bus     *eventbus.Bus
	persist *persistence.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo_motor.js"), []byte(motorCtrlSrc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rot.js"), []byte(rotCtrlSrc), 0o644))

	loader, err := pluginloader.New([]string{dir}, 16, nil)
	require.NoError(t, err)

	reg := registry.New(elementid.NewAllocator())
	sessions := session.NewManager()
	bus := eventbus.New(nil)
	binder := property.NewBinder(configstore.NewMemoryStore())
	persist := persistence.NewMemoryStore()

	return &fixture{
		p:       pool.New(reg, sessions, loader, binder, bus, persist, nil),
		reg:     reg,
		bus:     bus,
		persist: persist,
	}
}

func (f *fixture) createMotorController(t *testing.T, instance string) {
	t.Helper()
	_, err := f.p.CreateController(context.Background(), pool.CreateControllerRequest{
		FileName:     "demo_motor.js",
		Category:     pluginloader.CategoryMotor,
		ClassName:    "DemoMotor",
		InstanceName: instance,
	})
	require.NoError(t, err)
}

func (f *fixture) createMotor(t *testing.T, ctrl, name string, axis int) *element.Motor {
	t.Helper()
	e, err := f.p.CreateElement(context.Background(), pool.CreateElementRequest{
		Type: element.TypeMotor, Name: name, ControllerName: ctrl, Axis: axis,
	})
	require.NoError(t, err)
	m, err := f.reg.GetMotor(context.Background(), e.ElementID())
	require.NoError(t, err)
	return m
}

func TestCreateControllerAndElementFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createMotorController(t, "dm01")

	m := f.createMotor(t, "dm01", "mot01", 1)
	assert.Equal(t, "motor/dm01/1", m.FullName())
	assert.Equal(t, 1, m.Axis())

	// Persisted identity landed in the store.
	rec, ok, err := f.persist.Load(ctx, m.ElementID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, rec.Axis)
}

func TestCreateControllerUnknownClass(t *testing.T) {
	f := newFixture(t)
	_, err := f.p.CreateController(context.Background(), pool.CreateControllerRequest{
		FileName: "demo_motor.js", Category: pluginloader.CategoryMotor,
		ClassName: "NoSuchClass", InstanceName: "x1",
	})
	require.Error(t, err)
	assert.True(t, poolerrors.Is(err, poolerrors.CodeClassMissingRequiredSymbol))
}

func TestCreateElementAxisOutOfRange(t *testing.T) {
	f := newFixture(t)
	f.createMotorController(t, "dm01")
	_, err := f.p.CreateElement(context.Background(), pool.CreateElementRequest{
		Type: element.TypeMotor, Name: "mot99", ControllerName: "dm01", Axis: 99,
	})
	require.Error(t, err)
	assert.True(t, poolerrors.Is(err, poolerrors.CodeAxisOutOfRange))
}

func TestDeleteControllerRefusedWithAxes(t *testing.T) {
	f := newFixture(t)
	f.createMotorController(t, "dm01")
	f.createMotor(t, "dm01", "mot01", 1)

	err := f.p.DeleteController(context.Background(), "dm01")
	require.Error(t, err)
	assert.True(t, poolerrors.Is(err, poolerrors.CodeReferencedByDependents))
}

func TestPseudoMotorCreationWiresFamily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createMotorController(t, "dm01")
	ma := f.createMotor(t, "dm01", "m_a", 1)
	mb := f.createMotor(t, "dm01", "m_b", 2)

	_, err := f.p.CreateController(ctx, pool.CreateControllerRequest{
		FileName: "rot.js", Category: pluginloader.CategoryPseudoMotor,
		ClassName: "Rot", InstanceName: "rot01",
	})
	require.NoError(t, err)

	pms, err := f.p.CreatePseudoMotors(ctx, "rot01", []string{"sum", "diff"}, []string{"m_a", "m_b"})
	require.NoError(t, err)
	require.Len(t, pms, 2)

	sum := pms[0]
	assert.Equal(t, []elementid.ID{ma.ElementID(), mb.ElementID()}, sum.MotorRoles())
	assert.Equal(t, []elementid.ID{pms[1].ElementID()}, sum.Siblings())

	// The hidden backing group lives in the ghost space and mirrors the
	// motor roles.
	hidden, err := f.reg.GetMotorGroup(ctx, sum.HiddenGroupID())
	require.NoError(t, err)
	assert.True(t, hidden.Hidden())
	assert.Equal(t, elementid.SpaceGhost, elementid.SpaceOf(hidden.ElementID()))
	assert.Equal(t, sum.MotorRoles(), hidden.PhysicalMotors())
}

func TestPseudoMotorRoleCountMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createMotorController(t, "dm01")
	f.createMotor(t, "dm01", "m_a", 1)

	_, err := f.p.CreateController(ctx, pool.CreateControllerRequest{
		FileName: "rot.js", Category: pluginloader.CategoryPseudoMotor,
		ClassName: "Rot", InstanceName: "rot01",
	})
	require.NoError(t, err)

	_, err = f.p.CreatePseudoMotors(ctx, "rot01", []string{"sum", "diff"}, []string{"m_a"})
	require.Error(t, err)
}

func TestMotorGroupClosureThroughPseudo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createMotorController(t, "dm01")
	ma := f.createMotor(t, "dm01", "m_a", 1)
	mb := f.createMotor(t, "dm01", "m_b", 2)
	mc := f.createMotor(t, "dm01", "m_c", 3)

	_, err := f.p.CreateController(ctx, pool.CreateControllerRequest{
		FileName: "rot.js", Category: pluginloader.CategoryPseudoMotor,
		ClassName: "Rot", InstanceName: "rot01",
	})
	require.NoError(t, err)
	_, err = f.p.CreatePseudoMotors(ctx, "rot01", []string{"sum", "diff"}, []string{"m_a", "m_b"})
	require.NoError(t, err)

	// Group over {m_c, sum}: the physical closure expands sum through its
	// motor roles, so mot_ids = {m_c, m_a, m_b}.
	g, err := f.p.CreateMotorGroup(ctx, "mg01", []string{"m_c", "sum"})
	require.NoError(t, err)
	assert.Equal(t, []elementid.ID{mc.ElementID(), ma.ElementID(), mb.ElementID()}, g.PhysicalMotors())

	// Containment is transitive: m_a is reachable through the pseudo.
	groups := f.p.MotorGroupsContaining(ctx, ma.ElementID())
	names := make([]string, 0, len(groups))
	for _, mg := range groups {
		names = append(names, mg.ElementName())
	}
	assert.Contains(t, names, "mg01")
}

func TestDeleteMotorRefusedWhileReferenced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createMotorController(t, "dm01")
	f.createMotor(t, "dm01", "m_a", 1)
	f.createMotor(t, "dm01", "m_b", 2)

	_, err := f.p.CreateController(ctx, pool.CreateControllerRequest{
		FileName: "rot.js", Category: pluginloader.CategoryPseudoMotor,
		ClassName: "Rot", InstanceName: "rot01",
	})
	require.NoError(t, err)
	_, err = f.p.CreatePseudoMotors(ctx, "rot01", []string{"sum", "diff"}, []string{"m_a", "m_b"})
	require.NoError(t, err)

	err = f.p.DeleteElement(ctx, "m_a")
	require.Error(t, err)
	assert.True(t, poolerrors.Is(err, poolerrors.CodeReferencedByDependents))
}

func TestDeleteFreeMotorReleasesAxis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createMotorController(t, "dm01")
	m := f.createMotor(t, "dm01", "m_a", 1)

	require.NoError(t, f.p.DeleteElement(ctx, "m_a"))
	_, err := f.reg.Get(ctx, m.ElementID())
	require.Error(t, err)

	// The axis slot is free again.
	f.createMotor(t, "dm01", "m_a2", 1)
}

func TestInstrumentHierarchy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.p.CreateInstrument(ctx, "/slit", "NXcollimator")
	require.NoError(t, err)
	child, err := f.p.CreateInstrument(ctx, "/slit/blades", "NXslit")
	require.NoError(t, err)
	assert.Equal(t, "/slit/blades(NXslit)", child.FullName())

	_, err = f.p.CreateInstrument(ctx, "/nowhere/child", "NXslit")
	require.Error(t, err)
	assert.True(t, poolerrors.Is(err, poolerrors.CodeParentInstrumentMissing))

	_, err = f.p.CreateInstrument(ctx, "bad-name", "NXslit")
	require.Error(t, err)
	assert.True(t, poolerrors.Is(err, poolerrors.CodeInvalidInstrumentName))

	_, err = f.p.CreateInstrument(ctx, "/empty-type", "")
	require.Error(t, err)
	assert.True(t, poolerrors.Is(err, poolerrors.CodeInvalidInstrumentType))
}

func TestAssignInstrument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createMotorController(t, "dm01")
	m := f.createMotor(t, "dm01", "m_a", 1)

	inst, err := f.p.CreateInstrument(ctx, "/table", "NXtable")
	require.NoError(t, err)
	require.NoError(t, f.p.AssignInstrument(ctx, "m_a", "/table"))
	assert.Equal(t, inst.ElementID(), m.InstrumentID())
}

func TestInitSuppressesListChangeEvents(t *testing.T) {
	f := newFixture(t)
	var listChanges, structureChanges int
	f.p.AddListener(eventbus.ListenerFunc(func(stack *eventbus.Stack) {
		switch stack.Head().Kind {
		case eventbus.KindElementListChange:
			listChanges++
		case eventbus.KindElementStructureChange:
			structureChanges++
		}
	}))

	f.p.BeginInit()
	f.createMotorController(t, "dm01")
	f.createMotor(t, "dm01", "m_a", 1)
	f.createMotor(t, "dm01", "m_b", 2)
	f.p.EndInit()

	assert.Equal(t, 0, listChanges)
	assert.Equal(t, 1, structureChanges)

	f.createMotor(t, "dm01", "m_c", 3)
	assert.Equal(t, 1, listChanges)
}

func TestCreatedGroupAggregatesMemberEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createMotorController(t, "dm01")
	ma := f.createMotor(t, "dm01", "m_a", 1)
	f.createMotor(t, "dm01", "m_b", 2)

	g, err := f.p.CreateMotorGroup(ctx, "mg01", []string{"m_a", "m_b"})
	require.NoError(t, err)

	var derived []eventbus.Event
	g.AddListener(eventbus.ListenerFunc(func(stack *eventbus.Stack) {
		derived = append(derived, stack.Head())
	}))

	// A member's position event reaches the group's listeners re-sourced
	// to the group; the member's own delivery loop is untouched.
	f.bus.Fire(ma, eventbus.Event{Kind: eventbus.KindPositionChange, Source: ma, Current: 1.5}, nil, true)

	require.Len(t, derived, 1)
	assert.Equal(t, g.ElementName(), derived[0].Source.ElementName())
	assert.Equal(t, 1.5, derived[0].Current)

	// Deleting the group detaches it from its members.
	require.NoError(t, f.p.DeleteElement(ctx, "mg01"))
	f.bus.Fire(ma, eventbus.Event{Kind: eventbus.KindPositionChange, Source: ma, Current: 2.5}, nil, true)
	assert.Len(t, derived, 1)
}

func TestMeasurementGroupClosure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createMotorController(t, "dm01")

	// Counter channels need a counter controller; the demo motor session
	// can't host them, so drive the closure directly over counter
	// elements registered by hand.
	ctID1 := f.reg.Allocator().Next(elementid.SpacePublic)
	ctID2 := f.reg.Allocator().Next(elementid.SpacePublic)
	require.NoError(t, f.reg.Add(ctx, element.NewCounterTimer(ctID1, "ct01", 1, 1)))
	require.NoError(t, f.reg.Add(ctx, element.NewCounterTimer(ctID2, "ct02", 1, 2)))

	g, err := f.p.CreateMeasurementGroup(ctx, "mntgrp01", []string{"ct01", "ct02"}, "ct02")
	require.NoError(t, err)
	assert.Equal(t, []elementid.ID{ctID1, ctID2}, g.PhysicalChannels())
	assert.Equal(t, ctID2, g.Master())
}
