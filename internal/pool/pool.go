// Package pool is the operations facade tying the element engine's
// components together: create-controller resolves a plug-in file, binds
// properties, instantiates a Controller Session, and registers the
// controller element; create-element claims an axis slot and wires the
// element's read/write closures to its session; composite creation derives
// the physical closures the group invariants require. Every other
// component stays independently constructible; this package is the only
// one that knows the whole wiring order.
package pool

import (
	"context"
	"sync"

	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/eventbus"
	"github.com/r3e-network/pool-orchestrator/internal/persistence"
	"github.com/r3e-network/pool-orchestrator/internal/pluginloader"
	"github.com/r3e-network/pool-orchestrator/internal/property"
	"github.com/r3e-network/pool-orchestrator/internal/pseudo"
	"github.com/r3e-network/pool-orchestrator/internal/registry"
	"github.com/r3e-network/pool-orchestrator/internal/session"
	"github.com/r3e-network/pool-orchestrator/pkg/logging"
)

// Pool is the facade. It is itself an event source: ElementListChange and
// the post-init ElementStructureChange fire on the Pool's own listener
// set, which is what an external publisher watches to learn the element
// population changed.
type Pool struct {
	eventbus.Registry

	reg      *registry.Registry
	sessions *session.Manager
	loader   *pluginloader.Loader
	binder   *property.Binder
	bus      *eventbus.Bus
	composer *pseudo.Composer
	persist  persistence.Store
	log      *logging.Component

	id elementid.ID

	initMu sync.Mutex
	init   bool
}

// New wires a Pool. persist may be nil when no external identity store is
// configured (development deployments); log may be nil in tests.
func New(reg *registry.Registry, sessions *session.Manager, loader *pluginloader.Loader, binder *property.Binder, bus *eventbus.Bus, persist persistence.Store, log *logging.Logger) *Pool {
	var comp *logging.Component
	if log != nil {
		comp = log.Named("pool")
	}
	return &Pool{
		reg:      reg,
		sessions: sessions,
		loader:   loader,
		binder:   binder,
		bus:      bus,
		composer: pseudo.New(reg, sessions),
		persist:  persist,
		log:      comp,
		id:       reg.Allocator().Next(elementid.SpaceInternal),
	}
}

func (p *Pool) ElementID() elementid.ID { return p.id }
func (p *Pool) ElementName() string     { return "pool" }

// ElementRegistry exposes the underlying element registry for read paths that
// don't go through the facade.
func (p *Pool) ElementRegistry() *registry.Registry { return p.reg }

// Sessions exposes the session manager, which the Scheduler and Reload
// Orchestrator are constructed against.
func (p *Pool) Sessions() *session.Manager { return p.sessions }

// Composer exposes the pseudo composition layer, which the Scheduler's
// temporary-group path needs to wire ad-hoc groups.
func (p *Pool) Composer() *pseudo.Composer { return p.composer }

// BeginInit raises the global init-in-progress flag: element/list change
// events are suppressed until EndInit (bulk startup creates hundreds of
// elements; per-element fan-out during that window is pure noise).
func (p *Pool) BeginInit() {
	p.initMu.Lock()
	defer p.initMu.Unlock()
	p.init = true
}

// EndInit drops the flag and refires a single ElementStructureChange on
// the Pool's listeners covering everything created during the window.
func (p *Pool) EndInit() {
	p.initMu.Lock()
	p.init = false
	p.initMu.Unlock()
	p.bus.Fire(p, eventbus.Event{Kind: eventbus.KindElementStructureChange, Source: p}, nil, true)
}

func (p *Pool) initInProgress() bool {
	p.initMu.Lock()
	defer p.initMu.Unlock()
	return p.init
}

// fireListChange publishes ElementListChange on the Pool's listeners
// unless bulk init is in progress.
func (p *Pool) fireListChange() {
	if p.initInProgress() {
		return
	}
	p.bus.Fire(p, eventbus.Event{Kind: eventbus.KindElementListChange, Source: p}, nil, true)
}

func (p *Pool) saveRecord(ctx context.Context, rec persistence.ElementRecord) {
	if p.persist == nil {
		return
	}
	if err := p.persist.Save(ctx, rec); err != nil && p.log != nil {
		p.log.WithError(err).WithField("id", rec.ID).Warn("could not persist element identity")
	}
}

func (p *Pool) deleteRecord(ctx context.Context, id elementid.ID) {
	if p.persist == nil {
		return
	}
	if err := p.persist.Delete(ctx, id); err != nil && p.log != nil {
		p.log.WithError(err).WithField("id", id).Warn("could not delete persisted element identity")
	}
}
