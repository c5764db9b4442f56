// Package reload implements the Hot-Reload Orchestrator: the
// quiesce/swap/restore control flow, the hardest path in the core because
// a single file record can back several Controller Sessions that must all
// be quiesced, reloaded, and brought back online together.
package reload

import (
	"context"
	"fmt"

	"github.com/r3e-network/pool-orchestrator/internal/element"
	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/eventbus"
	"github.com/r3e-network/pool-orchestrator/internal/pluginloader"
	"github.com/r3e-network/pool-orchestrator/internal/poolerrors"
	"github.com/r3e-network/pool-orchestrator/internal/property"
	"github.com/r3e-network/pool-orchestrator/internal/registry"
	"github.com/r3e-network/pool-orchestrator/internal/session"
	"github.com/r3e-network/pool-orchestrator/pkg/logging"
)

// hasController is satisfied by every axis-bearing element record; the
// orchestrator uses it to find the elements owned by a reloading
// controller without the registry needing to know about axis elements
// specifically.
type hasController interface {
	ControllerID() elementid.ID
}

// hasState is satisfied by element.Base (embedded by every concrete
// element), used for the "any element Moving aborts the reload" check.
type hasState interface {
	State() element.State
}

// resettableAttrs is satisfied by elements embedding
// element.ExtraAttributes, whose dynamic knobs must be rebuilt after a
// class swap.
type resettableAttrs interface {
	ResetExtraAttributes()
}

// Orchestrator drives reload_controller_code against the live registry,
// session manager, and plug-in loader.
type Orchestrator struct {
	reg      *registry.Registry
	sessions *session.Manager
	loader   *pluginloader.Loader
	binder   *property.Binder
	bus      *eventbus.Bus
	log      *logging.Component

	onComplete func()
}

// SetOnComplete installs a callback invoked after every successful
// reload, used by the embedding process to count reloads.
func (o *Orchestrator) SetOnComplete(fn func()) { o.onComplete = fn }

// New constructs an Orchestrator.
func New(reg *registry.Registry, sessions *session.Manager, loader *pluginloader.Loader, binder *property.Binder, bus *eventbus.Bus, log *logging.Logger) *Orchestrator {
	var comp *logging.Component
	if log != nil {
		comp = log.Named("reload")
	}
	return &Orchestrator{reg: reg, sessions: sessions, loader: loader, binder: binder, bus: bus, log: comp}
}

// ReloadControllers reloads the plug-in code behind the given controller
// ids. It aborts with CodeBusyMoving and makes no change whatsoever if
// any affected element is Moving.
func (o *Orchestrator) ReloadControllers(ctx context.Context, ctrlIDs []elementid.ID) error {
	ctrlSet := make(map[elementid.ID]bool, len(ctrlIDs))
	for _, id := range ctrlIDs {
		ctrlSet[id] = true
	}

	elems := o.elementsForControllers(ctx, ctrlSet)

	for _, e := range elems {
		if hs, ok := e.(hasState); ok && hs.State() == element.StateMoving {
			return poolerrors.BusyMoving(fmt.Sprintf("%d", e.ElementID()))
		}
	}

	sessions := o.sessions.Ordered(ctrlIDs)
	if len(sessions) == 0 {
		return nil
	}

	oldRecs := make(map[string]*pluginloader.FileRecord, len(sessions))
	for _, sess := range sessions {
		if _, ok := oldRecs[sess.FileName()]; ok {
			continue
		}
		rec, ok := o.loader.FileRecordFor(sess.FileName())
		if !ok {
			return poolerrors.ControllerFileNotFound(sess.FileName())
		}
		oldRecs[sess.FileName()] = rec
	}

	// Step 3: quiesce every affected session. Axis slots are untouched;
	// only the live plug-in pointer goes away.
	for _, sess := range sessions {
		sess.GoOffline()
	}

	// Step 4: reload every affected file record, one file at a time;
	// several sessions may share one file.
	newRecs := make(map[string]*pluginloader.FileRecord, len(oldRecs))
	for fileName := range oldRecs {
		rec, err := o.loader.Reload(fileName)
		if err != nil {
			o.rollback(ctx, sessions, oldRecs)
			return err
		}
		newRecs[fileName] = rec
	}

	// Steps 5-6: re-instantiate every session against the new class table
	// and restore per-axis bindings and extra attributes.
	for _, sess := range sessions {
		props, err := o.propertiesFor(ctx, sess, newRecs[sess.FileName()])
		if err != nil {
			o.rollback(ctx, sessions, oldRecs)
			return err
		}
		if err := sess.ReOnline(ctx, newRecs[sess.FileName()], props); err != nil {
			o.rollback(ctx, sessions, oldRecs)
			return err
		}
	}

	// Step 7: one ElementStructureChange per restored element. Listener
	// lists were never touched (they live on element.Base's
	// eventbus.Registry, independent of the plug-in pointer), so "restore
	// the listener list" is a no-op here; rebuilding extra attributes is
	// not.
	for _, e := range elems {
		if ra, ok := e.(resettableAttrs); ok {
			ra.ResetExtraAttributes()
		}
		if hl, ok := e.(eventbus.HasListeners); ok {
			o.bus.Fire(hl, eventbus.Event{Kind: eventbus.KindElementStructureChange, Source: e}, nil, true)
		}
	}

	if o.onComplete != nil {
		o.onComplete()
	}
	if o.log != nil {
		o.log.WithField("controllers", len(ctrlIDs)).Info("reload complete")
	}
	return nil
}

// rollback re-instantiates every affected session against its untouched
// old file record, so a failed reload leaves plug-in pointers
// valid again rather than stuck Offline.
func (o *Orchestrator) rollback(ctx context.Context, sessions []*session.Session, oldRecs map[string]*pluginloader.FileRecord) {
	for _, sess := range sessions {
		rec := oldRecs[sess.FileName()]
		props, err := o.propertiesFor(ctx, sess, rec)
		if err != nil {
			if o.log != nil {
				o.log.WithError(err).Error("reload rollback: could not resolve properties")
			}
			continue
		}
		if err := sess.ReOnline(ctx, rec, props); err != nil && o.log != nil {
			o.log.WithError(err).Error("reload rollback: could not re-instantiate session")
		}
	}
}

func (o *Orchestrator) propertiesFor(ctx context.Context, sess *session.Session, rec *pluginloader.FileRecord) (map[string]any, error) {
	meta, ok := rec.Classes()[sess.ClassName()]
	if !ok {
		return nil, poolerrors.New(poolerrors.CodeClassMissingRequiredSymbol, fmt.Sprintf("class %q missing from %q", sess.ClassName(), rec.FileName))
	}
	resolved, err := o.binder.Resolve(ctx, sess.InstanceName(), meta.Properties)
	if err != nil {
		return nil, err
	}
	return property.AsMap(resolved), nil
}

// elementsForControllers returns every registered element (of any type)
// bound to one of ctrlSet's controllers.
func (o *Orchestrator) elementsForControllers(ctx context.Context, ctrlSet map[elementid.ID]bool) []registry.Element {
	var out []registry.Element
	for _, e := range o.reg.Snapshot(ctx) {
		hc, ok := e.(hasController)
		if !ok {
			continue
		}
		if ctrlSet[hc.ControllerID()] {
			out = append(out, e)
		}
	}
	return out
}
