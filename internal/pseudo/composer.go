// Package pseudo implements the Pseudo Composition Layer: the
// physical<->pseudo transform that backs every PseudoMotor/PseudoCounter
// and the general motor-group-with-pseudo-members calc_move algorithm.
// It depends on the registry and session manager, which is exactly why
// the transform-invocation interfaces (element.PseudoComposer,
// element.GroupComposer, element.CounterComposer) are defined in the
// element package and implemented here rather than the reverse.
package pseudo

import (
	"context"
	"fmt"
	"sort"

	"github.com/r3e-network/pool-orchestrator/internal/element"
	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/poolerrors"
	"github.com/r3e-network/pool-orchestrator/internal/registry"
	"github.com/r3e-network/pool-orchestrator/internal/session"
)

// Composer implements element.PseudoComposer, element.GroupComposer, and
// element.CounterComposer against a live registry and session manager.
type Composer struct {
	reg      *registry.Registry
	sessions *session.Manager
}

func New(reg *registry.Registry, sessions *session.Manager) *Composer {
	return &Composer{reg: reg, sessions: sessions}
}

func (c *Composer) ctx() context.Context { return context.Background() }

// readPhysical reads the current value of every motor in roles, in role
// order, via each motor's own controller session.
func (c *Composer) readPhysical(roles []elementid.ID) ([]float64, error) {
	ctx := c.ctx()
	out := make([]float64, len(roles))
	for i, id := range roles {
		motor, err := c.reg.GetMotor(ctx, id)
		if err != nil {
			return nil, err
		}
		sess, ok := c.sessions.Get(motor.ControllerID())
		if !ok {
			return nil, poolerrors.NotFound("session", motor.ElementName())
		}
		v, err := sess.ReadOne(ctx, motor.Axis())
		if err != nil {
			return nil, err
		}
		out[i] = toFloat(v)
	}
	return out, nil
}

// currentPseudo resolves pm's current pseudo value by reading its motor
// roles' physical positions and running them through CalcPseudo.
func (c *Composer) currentPseudo(ctx context.Context, pm *element.PseudoMotor) (float64, error) {
	sess, ok := c.sessions.Get(pm.ControllerID())
	if !ok {
		return 0, poolerrors.NotFound("session", pm.ElementName())
	}
	physical, err := c.readPhysical(pm.MotorRoles())
	if err != nil {
		return 0, err
	}
	result, err := sess.Call(ctx, "CalcPseudo", pm.RoleIndex(), toAny(physical))
	if err != nil {
		return 0, err
	}
	return toFloat(result), nil
}

// calcAllPhysical runs the pseudo-motor family's forward transform: given
// the full N-length pseudo position vector, returns the M physical motor
// targets, preferring CalcAllPhysical when the plug-in implements it and
// falling back to one CalcPhysical call per motor role.
func (c *Composer) calcAllPhysical(ctx context.Context, pm *element.PseudoMotor, pseudoPositions []float64) ([]float64, error) {
	sess, ok := c.sessions.Get(pm.ControllerID())
	if !ok {
		return nil, poolerrors.NotFound("session", pm.ElementName())
	}

	if sess.HasMethod("CalcAllPhysical") {
		result, err := sess.Call(ctx, "CalcAllPhysical", toAny(pseudoPositions))
		if err != nil {
			return nil, err
		}
		return toFloatSlice(result), nil
	}

	motorRoles := pm.MotorRoles()
	out := make([]float64, len(motorRoles))
	for i := range motorRoles {
		result, err := sess.Call(ctx, "CalcPhysical", i, toAny(pseudoPositions))
		if err != nil {
			return nil, err
		}
		out[i] = toFloat(result)
	}
	return out, nil
}

// CalcPseudoMove implements element.PseudoComposer for a single
// pseudo-motor move: fill sibling pseudo positions from their current
// value, run the forward transform, and map the resulting physical
// targets to per-controller motor targets.
func (c *Composer) CalcPseudoMove(pm *element.PseudoMotor, src []float64) (element.MoveTargets, error) {
	ctx := c.ctx()

	roleCount := pm.RoleIndex() + 1
	for _, sib := range pm.Siblings() {
		sibling, err := c.reg.GetPseudoMotor(ctx, sib)
		if err != nil {
			return nil, err
		}
		if sibling.RoleIndex()+1 > roleCount {
			roleCount = sibling.RoleIndex() + 1
		}
	}

	pseudoPositions := make([]float64, roleCount)
	pseudoPositions[pm.RoleIndex()] = src[0]
	for _, sib := range pm.Siblings() {
		sibling, err := c.reg.GetPseudoMotor(ctx, sib)
		if err != nil {
			return nil, err
		}
		v, err := c.currentPseudo(ctx, sibling)
		if err != nil {
			return nil, err
		}
		pseudoPositions[sibling.RoleIndex()] = v
	}

	physical, err := c.calcAllPhysical(ctx, pm, pseudoPositions)
	if err != nil {
		return nil, err
	}

	targets := element.MoveTargets{}
	for i, motorID := range pm.MotorRoles() {
		motor, err := c.reg.GetMotor(ctx, motorID)
		if err != nil {
			return nil, err
		}
		addTarget(targets, motor.ControllerID(), motorID, physical[i])
	}
	return targets, nil
}

// CalcGroupMove implements element.GroupComposer for a motor group whose
// members may mix physical motors and pseudo-motors. Physical members
// assign straight through and their assignments are authoritative: a
// pseudo member whose decomposition touches a directly assigned motor
// defers to the direct target (the unconstrained roles act as
// pass-throughs). Two pseudo members producing conflicting targets for
// the same physical motor are reported as AmbiguousMove; pseudo members
// are processed in ascending controller id order so the conflict is
// detected deterministically.
func (c *Composer) CalcGroupMove(g *element.MotorGroup, src []float64) (element.MoveTargets, error) {
	ctx := c.ctx()
	members := g.Members()

	type pseudoMove struct {
		pm     *element.PseudoMotor
		target float64
	}

	direct := make(map[elementid.ID]bool)
	out := element.MoveTargets{}
	var pseudos []pseudoMove

	for i, id := range members {
		if pm, err := c.reg.GetPseudoMotor(ctx, id); err == nil {
			pseudos = append(pseudos, pseudoMove{pm: pm, target: src[i]})
			continue
		}
		motor, err := c.reg.GetMotor(ctx, id)
		if err != nil {
			return nil, err
		}
		direct[id] = true
		addTarget(out, motor.ControllerID(), id, src[i])
	}

	sort.SliceStable(pseudos, func(i, j int) bool {
		return pseudos[i].pm.ControllerID() < pseudos[j].pm.ControllerID()
	})

	for _, p := range pseudos {
		sub, err := c.CalcPseudoMove(p.pm, []float64{p.target})
		if err != nil {
			return nil, err
		}
		for ctrl, axes := range sub {
			for motorID, target := range axes {
				if direct[motorID] {
					continue
				}
				if err := addTargetChecked(out, ctrl, motorID, target); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

// ReadOne implements element.CounterComposer: Calc(role, channel values).
func (c *Composer) ReadOne(pc *element.PseudoCounter) (float64, error) {
	ctx := c.ctx()
	sess, ok := c.sessions.Get(pc.ControllerID())
	if !ok {
		return 0, poolerrors.NotFound("session", pc.ElementName())
	}

	values := make([]float64, len(pc.ChannelRoles()))
	for i, chID := range pc.ChannelRoles() {
		ct, err := c.reg.GetCounterTimer(ctx, chID)
		if err != nil {
			return 0, err
		}
		chSess, ok := c.sessions.Get(ct.ControllerID())
		if !ok {
			return 0, poolerrors.NotFound("session", ct.ElementName())
		}
		v, err := chSess.ReadOne(ctx, ct.Axis())
		if err != nil {
			return 0, err
		}
		values[i] = toFloat(v)
	}

	result, err := sess.Call(ctx, "Calc", pc.RoleIndex(), toAny(values))
	if err != nil {
		return 0, err
	}
	return toFloat(result), nil
}

func addTarget(m element.MoveTargets, ctrl, motor elementid.ID, target float64) {
	if m[ctrl] == nil {
		m[ctrl] = make(map[elementid.ID]float64)
	}
	m[ctrl][motor] = target
}

func addTargetChecked(m element.MoveTargets, ctrl, motor elementid.ID, target float64) error {
	if existing, ok := m[ctrl][motor]; ok && existing != target {
		return poolerrors.AmbiguousMove(fmt.Sprintf("%d", motor))
	}
	addTarget(m, ctrl, motor, target)
	return nil
}

// toFloat coerces the numeric shapes a hosted plug-in can return (goja
// exports integral JS numbers as int64) onto float64.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func toAny(vs []float64) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func toFloatSlice(v any) []float64 {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, len(raw))
	for i, r := range raw {
		out[i] = toFloat(r)
	}
	return out
}
