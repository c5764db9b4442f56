package element

import (
	"fmt"

	"github.com/r3e-network/pool-orchestrator/internal/elementid"
)

// PseudoMotor is a synthetic Moveable backed by a hidden MotorGroup over
// its motor roles, plus sibling references to the other pseudo-motors of
// the same controller session.
type PseudoMotor struct {
	*Base
	movingThreadMixin

	motorRoles []elementid.ID // ordered physical motor ids, role 0..M-1
	roleIndex  int            // this motor's pseudo-role index, 0..N-1
	siblings   []elementid.ID // the other pseudo-motor ids sharing motorRoles
	hiddenID   elementid.ID   // ghost MotorGroup id backing this pseudo-motor

	composer PseudoComposer
}

// NewPseudoMotor constructs a PseudoMotor bound to the given motor roles.
// roleIndex identifies this motor's position within its pseudo-motor class
// (0-based) so the composer knows which slot of CalcPseudo/CalcPhysical it
// occupies.
func NewPseudoMotor(id elementid.ID, name string, ctrlID elementid.ID, motorRoles []elementid.ID, roleIndex int) *PseudoMotor {
	p := &PseudoMotor{
		Base:       NewBase(id, name, TypePseudoMotor),
		motorRoles: append([]elementid.ID(nil), motorRoles...),
		roleIndex:  roleIndex,
	}
	p.SetControllerID(ctrlID)
	return p
}

// SetComposer wires the pseudo composition layer in after construction,
// once the controller session hosting CalcPhysical/CalcPseudo exists.
func (p *PseudoMotor) SetComposer(c PseudoComposer) { p.composer = c }

// SetSiblings records the other pseudo-motor ids of the same role family, so
// CalcMove can fill their targets from current position when only this
// motor is being moved directly.
func (p *PseudoMotor) SetSiblings(ids []elementid.ID) {
	p.siblings = append([]elementid.ID(nil), ids...)
}

// SetHiddenGroupID records the id of the internal MotorGroup backing this
// pseudo-motor's physical decomposition.
func (p *PseudoMotor) SetHiddenGroupID(id elementid.ID) { p.hiddenID = id }

func (p *PseudoMotor) MotorRoles() []elementid.ID { return append([]elementid.ID(nil), p.motorRoles...) }
func (p *PseudoMotor) RoleIndex() int             { return p.roleIndex }
func (p *PseudoMotor) Siblings() []elementid.ID   { return append([]elementid.ID(nil), p.siblings...) }
func (p *PseudoMotor) HiddenGroupID() elementid.ID { return p.hiddenID }

// Size is always 1: a pseudo-motor is moved with a single target value.
func (p *PseudoMotor) Size() int { return 1 }

// CalcMove delegates to the injected composer, which resolves sibling
// pseudo-motor current positions, fills the uncontrolled roles, and runs
// CalcAllPhysical to produce per-controller physical targets.
func (p *PseudoMotor) CalcMove(src []float64) (MoveTargets, error) {
	if len(src) != 1 {
		return nil, fmt.Errorf("pseudo motor %q: calc_move expects 1 target, got %d", p.ElementName(), len(src))
	}
	if p.composer == nil {
		return nil, fmt.Errorf("pseudo motor %q: no composer wired", p.ElementName())
	}
	return p.composer.CalcPseudoMove(p, src)
}
