// Package eventbus implements the in-process, listener-propagated Element
// Event Bus: ordered delivery, event stacking for group re-publication,
// and source exclusion to prevent propagation cycles.
package eventbus

import "github.com/r3e-network/pool-orchestrator/internal/elementid"

// Kind is one of the closed set of event kinds.
type Kind string

const (
	KindStateChange             Kind = "StateChange"
	KindPositionChange          Kind = "PositionChange"
	KindPositionArrayChange     Kind = "PositionArrayChange"
	KindCTValueChange           Kind = "CTValueChange"
	KindZeroDValueChange        Kind = "ZeroDValueChange"
	KindOneDValueChange         Kind = "OneDValueChange"
	KindTwoDValueChange         Kind = "TwoDValueChange"
	KindPseudoCounterValueChange Kind = "PseudoCounterValueChange"
	KindMotionEnded             Kind = "MotionEnded"
	KindElementStructureChange  Kind = "ElementStructureChange"
	KindElementListChange       Kind = "ElementListChange"
	KindNameChange              Kind = "NameChange"
)

// ElementRef is the minimal identity an event's source must expose. It lets
// eventbus avoid importing the element package (and thus a cycle), matching
// the design note's "the Event Bus depends only on HasListeners" split.
type ElementRef interface {
	ElementID() elementid.ID
	ElementName() string
}

// Event is one occurrence delivered through the bus. Dimension is only
// meaningful for the *ArrayChange kinds; Old/Current carry a tagged union
// of whatever value type the Kind implies (int, float64, State, []float64,
// ...) left as `any` since Go has no closed sum type.
type Event struct {
	Kind      Kind
	Source    ElementRef
	Dimension int
	Priority  bool
	Old       any
	Current   any
}

// Stack is the list of events a listener observes for one delivery: the
// first entry (Origin) is the event that was originally fired; later
// entries are pushed by intermediate group listeners that construct a
// derived event before continuing propagation, and Head returns the most
// recently pushed one.
type Stack struct {
	events []Event
}

// NewStack seeds a stack with the originating event.
func NewStack(origin Event) *Stack {
	return &Stack{events: []Event{origin}}
}

// Push appends a derived event, used by a group listener before it
// republishes to its own listeners.
func (s *Stack) Push(evt Event) {
	s.events = append(s.events, evt)
}

// Pop removes the most recently pushed event, used by a group listener once
// it has finished republishing. Popping the origin event is a programming
// error and is a no-op to keep delivery from ever observing an empty stack.
func (s *Stack) Pop() {
	if len(s.events) > 1 {
		s.events = s.events[:len(s.events)-1]
	}
}

// Len reports the current stack depth.
func (s *Stack) Len() int { return len(s.events) }

// Head returns the most recently pushed event (what a listener should react
// to).
func (s *Stack) Head() Event { return s.events[len(s.events)-1] }

// Origin returns the event that started this delivery.
func (s *Stack) Origin() Event { return s.events[0] }

// Events returns a copy of the full stack, head-last.
func (s *Stack) Events() []Event {
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
