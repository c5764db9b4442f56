package pool

import (
	"context"
	"fmt"

	"github.com/r3e-network/pool-orchestrator/internal/element"
	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/eventbus"
	"github.com/r3e-network/pool-orchestrator/internal/persistence"
	"github.com/r3e-network/pool-orchestrator/internal/poolerrors"
)

// attachGroupListener registers a group as listener on each of its member
// elements so member state/position events aggregate through the group's
// OnPoolElementChanged re-publication path.
func (p *Pool) attachGroupListener(ctx context.Context, g eventbus.Listener, memberIDs []elementid.ID) {
	for _, id := range memberIDs {
		e, err := p.reg.Get(ctx, id)
		if err != nil {
			continue
		}
		if hl, ok := e.(eventbus.HasListeners); ok {
			hl.AddListener(g)
		}
	}
}

// detachGroupListener is the inverse, used when a group is deleted.
func (p *Pool) detachGroupListener(ctx context.Context, g eventbus.Listener, memberIDs []elementid.ID) {
	for _, id := range memberIDs {
		e, err := p.reg.Get(ctx, id)
		if err != nil {
			continue
		}
		if hl, ok := e.(eventbus.HasListeners); ok {
			hl.RemoveListener(g)
		}
	}
}

// CreatePseudoMotors creates every pseudo-motor of a pseudo controller in
// one operation: the class declares N pseudo roles and M motor roles;
// pseudoNames fills the N roles in order and motorNames the M roles. A
// hidden ghost MotorGroup over the M motors backs the family, and each
// created pseudo-motor carries sibling references to the others.
func (p *Pool) CreatePseudoMotors(ctx context.Context, controllerName string, pseudoNames, motorNames []string) ([]*element.PseudoMotor, error) {
	ctrlElem, err := p.reg.GetByName(ctx, controllerName)
	if err != nil {
		return nil, err
	}
	sess, ok := p.sessions.Get(ctrlElem.ElementID())
	if !ok {
		return nil, poolerrors.NotFound("session", controllerName)
	}

	rec, ok := p.loader.FileRecordFor(sess.FileName())
	if !ok {
		return nil, poolerrors.ControllerFileNotFound(sess.FileName())
	}
	meta, ok := rec.Classes()[sess.ClassName()]
	if !ok {
		return nil, poolerrors.New(poolerrors.CodeClassMissingRequiredSymbol, sess.ClassName())
	}
	if len(pseudoNames) != len(meta.Roles.PseudoMotorRoles) {
		return nil, poolerrors.New(poolerrors.CodeOperationNotSupported,
			fmt.Sprintf("class %q declares %d pseudo roles, got %d names", sess.ClassName(), len(meta.Roles.PseudoMotorRoles), len(pseudoNames)))
	}
	if len(motorNames) != len(meta.Roles.MotorRoles) {
		return nil, poolerrors.New(poolerrors.CodeOperationNotSupported,
			fmt.Sprintf("class %q declares %d motor roles, got %d names", sess.ClassName(), len(meta.Roles.MotorRoles), len(motorNames)))
	}

	motorIDs := make([]elementid.ID, len(motorNames))
	for i, name := range motorNames {
		e, err := p.reg.GetByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if _, err := p.reg.GetMotor(ctx, e.ElementID()); err != nil {
			return nil, err
		}
		motorIDs[i] = e.ElementID()
	}

	// The hidden backing group lives in the ghost id space: external
	// callers can never address it, but the composition layer resolves
	// through it like any other group.
	groupID := p.reg.Allocator().Next(elementid.SpaceGhost)
	group := element.NewMotorGroup(groupID, fmt.Sprintf("_%s_grp", sess.InstanceName()), motorIDs)
	group.SetHidden(true)
	group.SetComposer(p.composer)
	group.SetPhysicalMotors(motorIDs)
	group.BindEventBus(p.bus)
	if err := p.reg.Add(ctx, group); err != nil {
		return nil, err
	}

	created := make([]*element.PseudoMotor, 0, len(pseudoNames))
	ids := make([]elementid.ID, len(pseudoNames))
	for i := range pseudoNames {
		ids[i] = p.reg.Allocator().Next(elementid.SpacePublic)
	}

	rollback := func() {
		for _, pm := range created {
			p.reg.Remove(ctx, pm.ElementID())
		}
		p.reg.Remove(ctx, groupID)
	}

	for i, name := range pseudoNames {
		pm := element.NewPseudoMotor(ids[i], name, ctrlElem.ElementID(), motorIDs, i)
		pm.SetComposer(p.composer)
		pm.SetHiddenGroupID(groupID)
		siblings := make([]elementid.ID, 0, len(ids)-1)
		for j, sid := range ids {
			if j != i {
				siblings = append(siblings, sid)
			}
		}
		pm.SetSiblings(siblings)

		axis := i + 1
		pm.SetAxis(axis)
		fullName := axisFullName(element.TypePseudoMotor, sess.InstanceName(), axis)
		pm.SetFullName(fullName)
		pm.SetUserFullName(userFullName(name, fullName))

		if err := sess.AddDevice(ctx, axis, ids[i]); err != nil {
			rollback()
			return nil, err
		}
		if err := p.reg.Add(ctx, pm); err != nil {
			rollback()
			return nil, err
		}
		created = append(created, pm)

		motorList := make([]int64, len(motorIDs))
		for j, mid := range motorIDs {
			motorList[j] = int64(mid)
		}
		p.saveRecord(ctx, persistence.ElementRecord{
			ID: ids[i], CtrlID: ctrlElem.ElementID(), Axis: axis,
			MotorGroupID: groupID, MotorList: motorList,
		})
	}

	p.attachGroupListener(ctx, group, motorIDs)
	p.fireListChange()
	return created, nil
}

// CreatePseudoCounters is the acquisition analogue: channelNames fill the
// class's counter roles, and one PseudoCounter is created per declared
// pseudo-counter role.
func (p *Pool) CreatePseudoCounters(ctx context.Context, controllerName string, pseudoNames, channelNames []string) ([]*element.PseudoCounter, error) {
	ctrlElem, err := p.reg.GetByName(ctx, controllerName)
	if err != nil {
		return nil, err
	}
	sess, ok := p.sessions.Get(ctrlElem.ElementID())
	if !ok {
		return nil, poolerrors.NotFound("session", controllerName)
	}

	rec, ok := p.loader.FileRecordFor(sess.FileName())
	if !ok {
		return nil, poolerrors.ControllerFileNotFound(sess.FileName())
	}
	meta, ok := rec.Classes()[sess.ClassName()]
	if !ok {
		return nil, poolerrors.New(poolerrors.CodeClassMissingRequiredSymbol, sess.ClassName())
	}
	if len(pseudoNames) != len(meta.Roles.PseudoCounterRoles) {
		return nil, poolerrors.New(poolerrors.CodeOperationNotSupported,
			fmt.Sprintf("class %q declares %d pseudo-counter roles, got %d names", sess.ClassName(), len(meta.Roles.PseudoCounterRoles), len(pseudoNames)))
	}
	if len(channelNames) != len(meta.Roles.CounterRoles) {
		return nil, poolerrors.New(poolerrors.CodeOperationNotSupported,
			fmt.Sprintf("class %q declares %d counter roles, got %d names", sess.ClassName(), len(meta.Roles.CounterRoles), len(channelNames)))
	}

	channelIDs := make([]elementid.ID, len(channelNames))
	for i, name := range channelNames {
		e, err := p.reg.GetByName(ctx, name)
		if err != nil {
			return nil, err
		}
		channelIDs[i] = e.ElementID()
	}

	created := make([]*element.PseudoCounter, 0, len(pseudoNames))
	for i, name := range pseudoNames {
		id := p.reg.Allocator().Next(elementid.SpacePublic)
		pc := element.NewPseudoCounter(id, name, ctrlElem.ElementID(), channelIDs, i)
		pc.SetComposer(p.composer)

		axis := i + 1
		pc.SetAxis(axis)
		fullName := axisFullName(element.TypePseudoCounter, sess.InstanceName(), axis)
		pc.SetFullName(fullName)
		pc.SetUserFullName(userFullName(name, fullName))

		if err := sess.AddDevice(ctx, axis, id); err != nil {
			for _, c := range created {
				p.reg.Remove(ctx, c.ElementID())
			}
			return nil, err
		}
		if err := p.reg.Add(ctx, pc); err != nil {
			for _, c := range created {
				p.reg.Remove(ctx, c.ElementID())
			}
			return nil, err
		}
		created = append(created, pc)

		channelList := make([]int64, len(channelIDs))
		for j, cid := range channelIDs {
			channelList[j] = int64(cid)
		}
		p.saveRecord(ctx, persistence.ElementRecord{ID: id, CtrlID: ctrlElem.ElementID(), Axis: axis, ChannelList: channelList})
	}

	p.fireListChange()
	return created, nil
}

// CreateMotorGroup builds a user-level motor group over memberNames
// (motors, pseudo-motors, or other motor groups), deriving the physical
// closure the group invariant requires.
func (p *Pool) CreateMotorGroup(ctx context.Context, name string, memberNames []string) (*element.MotorGroup, error) {
	memberIDs := make([]elementid.ID, len(memberNames))
	for i, mn := range memberNames {
		e, err := p.reg.GetByName(ctx, mn)
		if err != nil {
			return nil, err
		}
		switch e.Type() {
		case element.TypeMotor, element.TypePseudoMotor, element.TypeMotorGroup:
		default:
			return nil, poolerrors.WrongType(mn, "Motor|PseudoMotor|MotorGroup", string(e.Type()))
		}
		memberIDs[i] = e.ElementID()
	}

	closure, err := p.physicalMotorClosure(ctx, memberIDs)
	if err != nil {
		return nil, err
	}

	id := p.reg.Allocator().Next(elementid.SpacePublic)
	g := element.NewMotorGroup(id, name, memberIDs)
	g.SetComposer(p.composer)
	g.SetPhysicalMotors(closure)
	g.BindEventBus(p.bus)
	fullName := syntheticFullName(element.TypeMotorGroup, name)
	g.SetFullName(fullName)
	g.SetUserFullName(userFullName(name, fullName))

	if err := p.reg.Add(ctx, g); err != nil {
		return nil, err
	}
	p.attachGroupListener(ctx, g, memberIDs)
	p.fireListChange()
	return g, nil
}

// CreateMeasurementGroup builds a measurement group over channel member
// names; masterName selects the master channel (defaulting to the first
// member when empty).
func (p *Pool) CreateMeasurementGroup(ctx context.Context, name string, memberNames []string, masterName string) (*element.MeasurementGroup, error) {
	memberIDs := make([]elementid.ID, len(memberNames))
	for i, mn := range memberNames {
		e, err := p.reg.GetByName(ctx, mn)
		if err != nil {
			return nil, err
		}
		memberIDs[i] = e.ElementID()
	}

	closure, err := p.physicalChannelClosure(ctx, memberIDs)
	if err != nil {
		return nil, err
	}

	id := p.reg.Allocator().Next(elementid.SpacePublic)
	g := element.NewMeasurementGroup(id, name, memberIDs)
	g.SetPhysicalChannels(closure)
	g.BindEventBus(p.bus)
	fullName := syntheticFullName(element.TypeMeasurementGroup, name)
	g.SetFullName(fullName)
	g.SetUserFullName(userFullName(name, fullName))

	if masterName != "" {
		m, err := p.reg.GetByName(ctx, masterName)
		if err != nil {
			return nil, err
		}
		isMember := false
		for _, mid := range memberIDs {
			if mid == m.ElementID() {
				isMember = true
			}
		}
		if !isMember {
			return nil, poolerrors.New(poolerrors.CodeOperationNotSupported,
				fmt.Sprintf("master %q is not a member of group %q", masterName, name))
		}
		g.SetMaster(m.ElementID())
	}

	if err := p.reg.Add(ctx, g); err != nil {
		return nil, err
	}
	p.attachGroupListener(ctx, g, memberIDs)
	p.fireListChange()
	return g, nil
}

// physicalMotorClosure expands ids transitively: motors pass through,
// pseudo-motors expand to their motor roles, motor groups recurse over
// members. Order of first appearance is preserved, duplicates collapse.
func (p *Pool) physicalMotorClosure(ctx context.Context, ids []elementid.ID) ([]elementid.ID, error) {
	var out []elementid.ID
	seen := make(map[elementid.ID]bool)

	var walk func(id elementid.ID) error
	walk = func(id elementid.ID) error {
		e, err := p.reg.Get(ctx, id)
		if err != nil {
			return err
		}
		switch e.Type() {
		case element.TypeMotor:
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		case element.TypePseudoMotor:
			pm, err := p.reg.GetPseudoMotor(ctx, id)
			if err != nil {
				return err
			}
			for _, mid := range pm.MotorRoles() {
				if err := walk(mid); err != nil {
					return err
				}
			}
		case element.TypeMotorGroup:
			g, err := p.reg.GetMotorGroup(ctx, id)
			if err != nil {
				return err
			}
			for _, mid := range g.Members() {
				if err := walk(mid); err != nil {
					return err
				}
			}
		default:
			return poolerrors.WrongType(fmt.Sprintf("%d", id), "Moveable", string(e.Type()))
		}
		return nil
	}

	for _, id := range ids {
		if err := walk(id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// physicalChannelClosure is the acquisition-side analogue over
// counter/timer, 0D/1D/2D channels, pseudo-counters, and nested
// measurement groups.
func (p *Pool) physicalChannelClosure(ctx context.Context, ids []elementid.ID) ([]elementid.ID, error) {
	var out []elementid.ID
	seen := make(map[elementid.ID]bool)

	var walk func(id elementid.ID) error
	walk = func(id elementid.ID) error {
		e, err := p.reg.Get(ctx, id)
		if err != nil {
			return err
		}
		switch e.Type() {
		case element.TypeCounterTimer, element.TypeZeroD, element.TypeOneD, element.TypeTwoD:
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		case element.TypePseudoCounter:
			pc, err := p.reg.GetPseudoCounter(ctx, id)
			if err != nil {
				return err
			}
			for _, cid := range pc.ChannelRoles() {
				if err := walk(cid); err != nil {
					return err
				}
			}
		case element.TypeMeasurementGroup:
			g, err := p.reg.GetMeasurementGroup(ctx, id)
			if err != nil {
				return err
			}
			for _, cid := range g.Channels() {
				if err := walk(cid); err != nil {
					return err
				}
			}
		default:
			return poolerrors.WrongType(fmt.Sprintf("%d", id), "acquisition channel", string(e.Type()))
		}
		return nil
	}

	for _, id := range ids {
		if err := walk(id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MotorGroupsContaining returns every motor group whose membership,
// expanded transitively through pseudo-motors and sub-groups, includes
// id. Linear scan over the type slice, per the registry design.
func (p *Pool) MotorGroupsContaining(ctx context.Context, id elementid.ID) []*element.MotorGroup {
	var out []*element.MotorGroup
	for _, gid := range p.reg.ByType(ctx, element.TypeMotorGroup) {
		g, err := p.reg.GetMotorGroup(ctx, gid)
		if err != nil {
			continue
		}
		if p.reg.IsMember(id, gid, p.resolveMembers(ctx)) {
			out = append(out, g)
		}
	}
	return out
}

// resolveMembers adapts the heterogeneous member lists to the registry's
// generic IsMember walk.
func (p *Pool) resolveMembers(ctx context.Context) func(elementid.ID) []elementid.ID {
	return func(id elementid.ID) []elementid.ID {
		e, err := p.reg.Get(ctx, id)
		if err != nil {
			return nil
		}
		switch e.Type() {
		case element.TypeMotorGroup:
			g, err := p.reg.GetMotorGroup(ctx, id)
			if err != nil {
				return nil
			}
			return g.Members()
		case element.TypePseudoMotor:
			pm, err := p.reg.GetPseudoMotor(ctx, id)
			if err != nil {
				return nil
			}
			return pm.MotorRoles()
		case element.TypeMeasurementGroup:
			g, err := p.reg.GetMeasurementGroup(ctx, id)
			if err != nil {
				return nil
			}
			return g.Channels()
		case element.TypePseudoCounter:
			pc, err := p.reg.GetPseudoCounter(ctx, id)
			if err != nil {
				return nil
			}
			return pc.ChannelRoles()
		}
		return nil
	}
}

// DeleteElement removes an element by name, refusing while dependents
// still reference it (a motor referenced by any pseudo-motor or group) or
// while it is Moving. Axis-bound elements release their controller slot.
func (p *Pool) DeleteElement(ctx context.Context, name string) error {
	e, err := p.reg.GetByName(ctx, name)
	if err != nil {
		return err
	}
	id := e.ElementID()

	if hs, ok := e.(interface{ State() element.State }); ok && hs.State() == element.StateMoving {
		return poolerrors.BusyMoving(name)
	}

	if dep := p.dependentOf(ctx, id); dep != "" {
		return poolerrors.New(poolerrors.CodeReferencedByDependents,
			fmt.Sprintf("element %q is referenced by %q", name, dep)).
			WithDetail("dependent", dep)
	}

	// A group stops listening to its members before it disappears.
	switch e.Type() {
	case element.TypeMotorGroup:
		if g, err := p.reg.GetMotorGroup(ctx, id); err == nil {
			p.detachGroupListener(ctx, g, g.Members())
		}
	case element.TypeMeasurementGroup:
		if g, err := p.reg.GetMeasurementGroup(ctx, id); err == nil {
			p.detachGroupListener(ctx, g, g.Channels())
		}
	}

	if hc, ok := e.(interface{ ControllerID() elementid.ID }); ok && hc.ControllerID() != elementid.InvalidID {
		if ha, ok := e.(interface{ Axis() int }); ok && ha.Axis() != elementid.InvalidAxis {
			if sess, ok := p.sessions.Get(hc.ControllerID()); ok {
				if err := sess.DeleteDevice(ctx, ha.Axis()); err != nil {
					return err
				}
			}
		}
	}

	p.reg.Remove(ctx, id)
	p.deleteRecord(ctx, id)
	p.fireListChange()
	return nil
}

// dependentOf returns the name of the first element still referencing id,
// or "" when id is free of dependents.
func (p *Pool) dependentOf(ctx context.Context, id elementid.ID) string {
	for _, t := range []element.Type{element.TypePseudoMotor, element.TypeMotorGroup, element.TypeMeasurementGroup, element.TypePseudoCounter} {
		for _, candidate := range p.reg.ByType(ctx, t) {
			for _, ref := range p.resolveMembers(ctx)(candidate) {
				if ref == id {
					if e, err := p.reg.Get(ctx, candidate); err == nil {
						return e.ElementName()
					}
					return fmt.Sprintf("%d", candidate)
				}
			}
		}
	}
	return ""
}
