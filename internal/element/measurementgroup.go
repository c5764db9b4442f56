package element

import (
	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/eventbus"
)

// MeasurementGroup is the acquisition analogue of MotorGroup: an ordered
// set of channel ids with one designated master channel whose termination
// stops the others.
type MeasurementGroup struct {
	*Base

	channelIDs []elementid.ID
	chIDs      []elementid.ID // transitive physical-channel closure of channelIDs
	masterID   elementid.ID

	evtBus  *eventbus.Bus
	adapter eventbus.GroupAdapter
}

func NewMeasurementGroup(id elementid.ID, name string, channelIDs []elementid.ID) *MeasurementGroup {
	g := &MeasurementGroup{
		Base:       NewBase(id, name, TypeMeasurementGroup),
		channelIDs: append([]elementid.ID(nil), channelIDs...),
	}
	if len(channelIDs) > 0 {
		g.masterID = channelIDs[0]
	}
	return g
}

func (g *MeasurementGroup) Channels() []elementid.ID { return append([]elementid.ID(nil), g.channelIDs...) }

func (g *MeasurementGroup) Master() elementid.ID { return g.masterID }

// SetPhysicalChannels records the transitive physical-channel closure of
// the user member list, derived by the pool facade the same way
// MotorGroup's physical-motor set is.
func (g *MeasurementGroup) SetPhysicalChannels(ids []elementid.ID) {
	g.chIDs = append([]elementid.ID(nil), ids...)
}

// PhysicalChannels returns the derived physical-channel set.
func (g *MeasurementGroup) PhysicalChannels() []elementid.ID {
	return append([]elementid.ID(nil), g.chIDs...)
}

// SetMaster changes the designated master channel; it must be one of the
// group's members, which the caller (pool.CreateMeasurementGroup) is
// responsible for validating.
func (g *MeasurementGroup) SetMaster(id elementid.ID) { g.masterID = id }

// BindEventBus connects the group to the bus it republishes derived
// events on, same as MotorGroup.BindEventBus.
func (g *MeasurementGroup) BindEventBus(bus *eventbus.Bus) { g.evtBus = bus }

// SetGroupAdapter overrides the adapter consulted when constructing the
// derived event; eventbus.DefaultAdapter when unset.
func (g *MeasurementGroup) SetGroupAdapter(a eventbus.GroupAdapter) { g.adapter = a }

// OnPoolElementChanged aggregates a channel's event into a group-sourced
// one: derive through the adapter, push, redeliver to the group's own
// listeners excluding the group itself, pop.
func (g *MeasurementGroup) OnPoolElementChanged(stack *eventbus.Stack) {
	if g.evtBus == nil {
		return
	}
	adapter := g.adapter
	if adapter == nil {
		adapter = eventbus.DefaultAdapter{}
	}
	stack.Push(adapter.DeriveEvent(stack, g))
	g.evtBus.Redeliver(g, stack, g, true)
	stack.Pop()
}
