package pool

import (
	"context"
	"fmt"

	"github.com/r3e-network/pool-orchestrator/internal/element"
	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/pluginloader"
	"github.com/r3e-network/pool-orchestrator/internal/poolerrors"
	"github.com/r3e-network/pool-orchestrator/internal/property"
	"github.com/r3e-network/pool-orchestrator/internal/session"
)

// CreateControllerRequest carries everything a create-controller operation
// needs: the plug-in file to search pool_path for, the declared category,
// the class to instantiate, the unique instance name, and any property
// overrides to write into the config store before binding.
type CreateControllerRequest struct {
	FileName     string
	Category     pluginloader.Category
	ClassName    string
	InstanceName string
	Overrides    map[string]any
}

// CreateController implements the config-time flow: discover the file,
// bind properties (overrides written to the store first), construct and
// instantiate the Controller Session, and register the controller
// element. Config errors roll back all partial state.
func (p *Pool) CreateController(ctx context.Context, req CreateControllerRequest) (*element.Controller, error) {
	rec, err := p.loader.Discover(req.FileName, req.Category)
	if err != nil {
		return nil, err
	}

	meta, ok := rec.Classes()[req.ClassName]
	if !ok {
		return nil, poolerrors.New(poolerrors.CodeClassMissingRequiredSymbol,
			fmt.Sprintf("class %q not found in %q", req.ClassName, req.FileName))
	}

	resolved, err := p.binder.BuildPropertyData(ctx, req.InstanceName, meta.Properties, req.Overrides)
	if err != nil {
		return nil, err
	}

	id := p.reg.Allocator().Next(elementid.SpacePublic)
	ctrl := element.NewController(id, req.InstanceName, req.ClassName, req.FileName, req.InstanceName, meta.MaxDevice)
	ctrl.SetFullName(syntheticFullName(element.TypeController, req.ClassName+"/"+req.InstanceName))
	ctrl.SetUserFullName(userFullName(req.InstanceName, ctrl.FullName()))

	if err := p.reg.Add(ctx, ctrl); err != nil {
		return nil, err
	}

	sess := p.newSession(id, req, rec, meta)
	if err := sess.Instantiate(ctx, property.AsMap(resolved)); err != nil {
		p.reg.Remove(ctx, id)
		return nil, err
	}
	p.sessions.Add(sess)

	if p.log != nil {
		p.log.WithField("instance", req.InstanceName).WithField("class", req.ClassName).Info("controller created")
	}
	p.fireListChange()
	return ctrl, nil
}

func (p *Pool) newSession(id elementid.ID, req CreateControllerRequest, rec *pluginloader.FileRecord, meta pluginloader.ClassMetadata) *session.Session {
	return session.New(id, req.InstanceName, req.ClassName, req.FileName, rec, p.loader.ClassLock(req.ClassName), meta.MaxDevice)
}

// DeleteController destroys a Controller Session, refusing while any axis
// is still bound: a session is destroyed only when empty of axes.
func (p *Pool) DeleteController(ctx context.Context, name string) error {
	e, err := p.reg.GetByName(ctx, name)
	if err != nil {
		return err
	}
	ctrl, err := p.reg.GetController(ctx, e.ElementID())
	if err != nil {
		return err
	}

	sess, ok := p.sessions.Get(ctrl.ElementID())
	if ok && sess.AxisCount() > 0 {
		return poolerrors.New(poolerrors.CodeReferencedByDependents,
			fmt.Sprintf("controller %q still owns %d axes", name, sess.AxisCount())).
			WithDetail("axes", sess.AxisCount())
	}

	p.sessions.Remove(ctrl.ElementID())
	p.reg.Remove(ctx, ctrl.ElementID())
	p.fireListChange()
	return nil
}
