// Package registry implements the Element Registry: the pool's single
// authoritative id->element map, a case-insensitive name index, and a
// per-type multi-index preserving insertion order, guarded by a
// process-wide reentrant monitor so registry reads/writes nest safely
// under whatever element or session locks a caller already holds.
package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/r3e-network/pool-orchestrator/internal/element"
	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/poolerrors"
	"github.com/r3e-network/pool-orchestrator/internal/poollock"
)

// Element is the minimal surface the registry needs from any stored
// element, satisfied by element.Base (and thus by every concrete type).
type Element interface {
	ElementID() elementid.ID
	ElementName() string
	Type() element.Type
	NameMatches(name string) bool
}

// Registry is the process-wide element directory.
type Registry struct {
	mon poollock.RMutex

	alloc *elementid.Allocator

	byID   map[elementid.ID]Element
	byName map[string]elementid.ID // lower-cased name -> id
	byType map[element.Type][]elementid.ID
}

// New creates an empty Registry backed by alloc for id minting.
func New(alloc *elementid.Allocator) *Registry {
	return &Registry{
		alloc:  alloc,
		byID:   make(map[elementid.ID]Element),
		byName: make(map[string]elementid.ID),
		byType: make(map[element.Type][]elementid.ID),
	}
}

// Allocator exposes the id allocator so callers constructing new elements
// can mint ids through the same pool the registry validates against.
func (r *Registry) Allocator() *elementid.Allocator { return r.alloc }

// ReserveID re-adopts a persisted id at startup, before the element backing
// it has been constructed.
func (r *Registry) ReserveID(space elementid.Space, id elementid.ID) {
	r.alloc.Reserve(space, id)
}

// Add inserts e into the registry under the reentrant monitor, rejecting a
// duplicate id or a name collision (case-insensitive).
func (r *Registry) Add(ctx context.Context, e Element) error {
	_, unlock := r.mon.Lock(ctx)
	defer unlock()

	if _, exists := r.byID[e.ElementID()]; exists {
		return poolerrors.New(poolerrors.CodeElementIDExists, "element id already registered").
			WithDetail("id", e.ElementID())
	}
	key := strings.ToLower(e.ElementName())
	if _, exists := r.byName[key]; exists {
		return poolerrors.New(poolerrors.CodeElementExists, "element name already registered").
			WithDetail("name", e.ElementName())
	}

	r.byID[e.ElementID()] = e
	r.byName[key] = e.ElementID()
	r.byType[e.Type()] = append(r.byType[e.Type()], e.ElementID())
	return nil
}

// Remove deletes e by id, if present. It does not check for dependents;
// callers (the pool facade's delete operations) must
// run the CodeReferencedByDependents check themselves before calling this.
func (r *Registry) Remove(ctx context.Context, id elementid.ID) {
	_, unlock := r.mon.Lock(ctx)
	defer unlock()

	e, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	delete(r.byName, strings.ToLower(e.ElementName()))
	ids := r.byType[e.Type()]
	for i, existing := range ids {
		if existing == id {
			r.byType[e.Type()] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// Rename updates the name index for an already-registered element whose
// name field the caller has just changed.
func (r *Registry) Rename(ctx context.Context, id elementid.ID, oldName, newName string) error {
	_, unlock := r.mon.Lock(ctx)
	defer unlock()

	newKey := strings.ToLower(newName)
	if existing, exists := r.byName[newKey]; exists && existing != id {
		return poolerrors.New(poolerrors.CodeElementExists, "element name already registered").
			WithDetail("name", newName)
	}
	delete(r.byName, strings.ToLower(oldName))
	r.byName[newKey] = id
	return nil
}

// Get returns the element with id, or CodeNotFound.
func (r *Registry) Get(ctx context.Context, id elementid.ID) (Element, error) {
	_, unlock := r.mon.Lock(ctx)
	defer unlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, poolerrors.NotFound("element", fmt.Sprintf("%d", id))
	}
	return e, nil
}

// GetByName resolves name case-insensitively, or CodeNotFound.
func (r *Registry) GetByName(ctx context.Context, name string) (Element, error) {
	_, unlock := r.mon.Lock(ctx)
	defer unlock()
	id, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, poolerrors.NotFound("element", name)
	}
	return r.byID[id], nil
}

// ByType returns the ids of every element of the given type, in
// registration order.
func (r *Registry) ByType(ctx context.Context, t element.Type) []elementid.ID {
	_, unlock := r.mon.Lock(ctx)
	defer unlock()
	ids := r.byType[t]
	out := make([]elementid.ID, len(ids))
	copy(out, ids)
	return out
}

// Snapshot returns every registered element, in no particular order,
// intended for iteration that doesn't need to hold the monitor (e.g. the
// Hot-Reload Orchestrator's per-controller element lookup).
func (r *Registry) Snapshot(ctx context.Context) []Element {
	_, unlock := r.mon.Lock(ctx)
	defer unlock()
	out := make([]Element, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, e)
	}
	return out
}

// IsMember reports whether candidate appears, directly or transitively,
// among memberOf's group members, per resolve. resolve maps a group id to
// its immediate member ids and is supplied by the caller (registry doesn't
// know about MotorGroup/MeasurementGroup member lists directly, keeping
// the coupling one-directional: registry -> element, not element ->
// registry).
func (r *Registry) IsMember(candidate, memberOf elementid.ID, resolve func(elementid.ID) []elementid.ID) bool {
	seen := map[elementid.ID]bool{}
	var walk func(id elementid.ID) bool
	walk = func(id elementid.ID) bool {
		if seen[id] {
			return false
		}
		seen[id] = true
		for _, m := range resolve(id) {
			if m == candidate {
				return true
			}
			if walk(m) {
				return true
			}
		}
		return false
	}
	return walk(memberOf)
}
