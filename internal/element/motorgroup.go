package element

import (
	"fmt"

	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/eventbus"
)

// MotorGroup is a Moveable composite over an ordered list of member ids,
// which may themselves be Motor, PseudoMotor, or nested MotorGroup
// elements. The member closure is resolved by whoever creates the group
// (the pool facade) and handed in through SetPhysicalMotors; MotorGroup
// itself only tracks ids and
// delegates decomposition to its composer.
type MotorGroup struct {
	*Base
	movingThreadMixin

	memberIDs []elementid.ID
	motIDs    []elementid.ID // transitive physical-motor closure of memberIDs
	hidden    bool           // true for the internal group backing a PseudoMotor

	composer GroupComposer
	evtBus   *eventbus.Bus
	adapter  eventbus.GroupAdapter
}

// NewMotorGroup constructs a MotorGroup over memberIDs in the given order;
// Size() and the expected calc_move arity both follow len(memberIDs).
func NewMotorGroup(id elementid.ID, name string, memberIDs []elementid.ID) *MotorGroup {
	return &MotorGroup{
		Base:      NewBase(id, name, TypeMotorGroup),
		memberIDs: append([]elementid.ID(nil), memberIDs...),
	}
}

// SetComposer wires the pseudo composition layer's group algorithm in.
func (g *MotorGroup) SetComposer(c GroupComposer) { g.composer = c }

// BindEventBus connects the group to the bus it republishes derived
// events on. Whoever creates the group also registers it as a listener on
// each member; until bound, member events pass through unaggregated.
func (g *MotorGroup) BindEventBus(bus *eventbus.Bus) { g.evtBus = bus }

// SetGroupAdapter overrides the adapter consulted when constructing the
// derived event; eventbus.DefaultAdapter when unset.
func (g *MotorGroup) SetGroupAdapter(a eventbus.GroupAdapter) { g.adapter = a }

// OnPoolElementChanged makes the group a listener of its members: a
// member's event is rewritten through the adapter into a group-sourced
// event, pushed onto the stack, delivered to the group's own listeners
// with the group itself excluded so the re-emission never cycles back,
// then popped before returning to the member's delivery loop.
func (g *MotorGroup) OnPoolElementChanged(stack *eventbus.Stack) {
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

// SetHidden marks a group as internal (a PseudoMotor's backing group or a
// scheduler temporary group). The flag is recorded and reported by Hidden;
// registry listings and event delivery treat hidden groups like any other.
func (g *MotorGroup) SetHidden(v bool) { g.hidden = v }
func (g *MotorGroup) Hidden() bool     { return g.hidden }

func (g *MotorGroup) Members() []elementid.ID { return append([]elementid.ID(nil), g.memberIDs...) }

// SetPhysicalMotors records the transitive physical-motor closure of the
// user member list. The closure is derived by whoever creates or edits the
// group (the pool facade), which is the only place that can expand pseudo
// members and sub-groups through the registry.
func (g *MotorGroup) SetPhysicalMotors(ids []elementid.ID) {
	g.motIDs = append([]elementid.ID(nil), ids...)
}

// PhysicalMotors returns the derived physical-motor set.
func (g *MotorGroup) PhysicalMotors() []elementid.ID {
	return append([]elementid.ID(nil), g.motIDs...)
}

// Size is the member count, which is the arity calc_move expects.
func (g *MotorGroup) Size() int { return len(g.memberIDs) }

// CalcMove delegates to the injected composer, which expands mixed
// physical/pseudo members into per-controller physical targets, resolving
// pseudo members' own roles recursively.
func (g *MotorGroup) CalcMove(src []float64) (MoveTargets, error) {
	if len(src) != len(g.memberIDs) {
		return nil, fmt.Errorf("motor group %q: calc_move expects %d targets, got %d", g.ElementName(), len(g.memberIDs), len(src))
	}
	if g.composer == nil {
		return nil, fmt.Errorf("motor group %q: no composer wired", g.ElementName())
	}
	return g.composer.CalcGroupMove(g, src)
}
