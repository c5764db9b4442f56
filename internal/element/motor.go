package element

import (
	"fmt"

	"github.com/r3e-network/pool-orchestrator/internal/elementid"
)

// Motor is a single physical axis implementing Moveable with arity 1.
type Motor struct {
	*Base
	movingThreadMixin
	ExtraAttributes
}

// NewMotor constructs a Motor bound to ctrlID/axis.
func NewMotor(id elementid.ID, name string, ctrlID elementid.ID, axis int) *Motor {
	m := &Motor{Base: NewBase(id, name, TypeMotor)}
	m.SetControllerID(ctrlID)
	m.SetAxis(axis)
	return m
}

// Size is always 1 for a plain motor.
func (m *Motor) Size() int { return 1 }

// CalcMove for a bare motor is a straight pass-through: the single target
// maps to this motor's own controller/axis.
func (m *Motor) CalcMove(src []float64) (MoveTargets, error) {
	if len(src) != 1 {
		return nil, fmt.Errorf("motor %q: calc_move expects 1 target, got %d", m.ElementName(), len(src))
	}
	return MoveTargets{
		m.ControllerID(): {m.ElementID(): src[0]},
	}, nil
}
