package element

import (
	"context"
	"strings"
	"sync"

	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/eventbus"
	"github.com/r3e-network/pool-orchestrator/internal/poollock"
)

// Base is the common record every element type embeds, carrying the
// identity, naming, and containment fields plus the element's
// serialization monitor.
type Base struct {
	eventbus.Registry // listener storage (HasListeners)

	id             elementid.ID
	name           string
	fullName       string
	userFullName   string
	controllerID   elementid.ID
	axis           int
	instrumentID   elementid.ID
	simulationMode bool
	typ            Type

	mon poollock.RMutex // serialization monitor (reentrant)

	stateMu sync.Mutex
	state   State
}

// NewBase constructs a Base for the given type. Axis defaults to
// elementid.InvalidAxis for synthetic elements; callers set it explicitly
// for physical ones.
func NewBase(id elementid.ID, name string, typ Type) *Base {
	return &Base{
		id:           id,
		name:         name,
		typ:          typ,
		axis:         elementid.InvalidAxis,
		controllerID: elementid.InvalidID,
		instrumentID: elementid.InvalidID,
		state:        StateUnknown,
	}
}

func (b *Base) ElementID() elementid.ID { return b.id }
func (b *Base) ElementName() string     { return b.name }
func (b *Base) Type() Type              { return b.typ }

func (b *Base) FullName() string         { return b.fullName }
func (b *Base) SetFullName(fn string)    { b.fullName = fn }
func (b *Base) UserFullName() string     { return b.userFullName }
func (b *Base) SetUserFullName(ufn string) { b.userFullName = ufn }

func (b *Base) ControllerID() elementid.ID      { return b.controllerID }
func (b *Base) SetControllerID(id elementid.ID) { b.controllerID = id }

func (b *Base) Axis() int      { return b.axis }
func (b *Base) SetAxis(a int)  { b.axis = a }

func (b *Base) InstrumentID() elementid.ID      { return b.instrumentID }
func (b *Base) SetInstrumentID(id elementid.ID) { b.instrumentID = id }

func (b *Base) SimulationMode() bool     { return b.simulationMode }
func (b *Base) SetSimulationMode(v bool) { b.simulationMode = v }

// NameMatches is the case-insensitive comparison the registry's name index
// relies on.
func (b *Base) NameMatches(other string) bool {
	return strings.EqualFold(b.name, other)
}

// Lock acquires the element's reentrant serialization monitor.
func (b *Base) Lock(ctx context.Context) (context.Context, poollock.Unlock) {
	return b.mon.Lock(ctx)
}

// State returns the cached last-observed state without acquiring the
// monitor; the monitor guards lifecycle transitions, not every state
// peek.
func (b *Base) State() State {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.state
}

// SetState updates the cached state and reports whether it changed, which
// callers use to decide whether a StateChange event is warranted.
func (b *Base) SetState(s State) (old State, changed bool) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	old = b.state
	changed = old != s
	b.state = s
	return old, changed
}
