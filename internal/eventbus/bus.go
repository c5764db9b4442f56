package eventbus

import (
	"sync"

	"github.com/r3e-network/pool-orchestrator/pkg/logging"
)

// Listener receives event stacks. Groups implement Listener over their own
// membership so they can republish a derived event.
type Listener interface {
	OnPoolElementChanged(stack *Stack)
}

// HasListeners is the capability trait the bus depends on: any element that can be watched exposes this, nothing more.
type HasListeners interface {
	AddListener(l Listener)
	RemoveListener(l Listener)
	Listeners() []Listener
}

// ListenerFunc adapts a plain function to Listener. The returned value is
// a fresh pointer, so it stays comparable for the bus's exclusion check
// and for RemoveListener (a bare func value would not be).
func ListenerFunc(fn func(stack *Stack)) Listener { return &funcListener{fn: fn} }

type funcListener struct{ fn func(stack *Stack) }

func (f *funcListener) OnPoolElementChanged(stack *Stack) { f.fn(stack) }

// Registry is the listener-storage mixin elements embed to satisfy
// HasListeners. Removal during delivery is deferred to the next Fire call,
// by snapshotting the listener slice
// before delivery and only applying queued removals once delivery
// completes.
type Registry struct {
	mu        sync.Mutex
	listeners []Listener
	removing  map[int]bool
	delivering int
}

// AddListener appends a listener in registration order.
func (r *Registry) AddListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// RemoveListener removes the first match. If delivery is in progress the
// removal is deferred until delivery completes.
func (r *Registry) RemoveListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.listeners {
		if existing == l {
			if r.delivering > 0 {
				if r.removing == nil {
					r.removing = make(map[int]bool)
				}
				r.removing[i] = true
				return
			}
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return
		}
	}
}

// Listeners returns a snapshot of currently registered listeners, in
// registration order.
func (r *Registry) Listeners() []Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Listener, len(r.listeners))
	copy(out, r.listeners)
	return out
}

func (r *Registry) beginDelivery() []Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivering++
	out := make([]Listener, len(r.listeners))
	copy(out, r.listeners)
	return out
}

func (r *Registry) endDelivery() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivering--
	if r.delivering == 0 && len(r.removing) > 0 {
		kept := r.listeners[:0:0]
		for i, l := range r.listeners {
			if !r.removing[i] {
				kept = append(kept, l)
			}
		}
		r.listeners = kept
		r.removing = nil
	}
}

// Bus delivers events to an element's listeners. It holds only a logger
// and an optional observer; all listener storage lives on the per-element Registry so that
// elements not yet attached to any Bus can still accumulate listeners.
type Bus struct {
	log      *logging.Component
	observer func(Event)
}

// SetObserver installs a callback invoked once per fired event, before
// delivery. The embedding process uses it to count bus traffic; it must
// not block.
func (b *Bus) SetObserver(fn func(Event)) { b.observer = fn }

// New creates a Bus.
func New(log *logging.Logger) *Bus {
	var comp *logging.Component
	if log != nil {
		comp = log.Named("eventbus")
	}
	return &Bus{log: comp}
}

// Fire delivers evt to every listener of source except exclude.
// handleExceptions controls whether a
// listener panic/error is swallowed (true, the default) or left to
// propagate to the caller.
func (b *Bus) Fire(source HasListeners, evt Event, exclude Listener, handleExceptions bool) {
	if b.observer != nil {
		b.observer(evt)
	}
	stack := NewStack(evt)
	b.deliver(source, stack, exclude, handleExceptions)
}

// Redeliver is used by a group listener that has pushed a derived event
// onto an existing stack and now wants to propagate it to its own
// listeners, skipping exclude (group listeners pass themselves) to prevent
// cycles.
func (b *Bus) Redeliver(source HasListeners, stack *Stack, exclude Listener, handleExceptions bool) {
	b.deliver(source, stack, exclude, handleExceptions)
}

// deliveryTracker is satisfied by Registry (and by everything embedding
// it, which is how every element gets it): it lets deliver defer listener
// removal until the in-flight snapshot has fully drained.
type deliveryTracker interface {
	beginDelivery() []Listener
	endDelivery()
}

func (b *Bus) deliver(source HasListeners, stack *Stack, exclude Listener, handleExceptions bool) {
	var listeners []Listener
	if reg, ok := source.(deliveryTracker); ok {
		listeners = reg.beginDelivery()
		defer reg.endDelivery()
	} else {
		listeners = source.Listeners()
	}

	for _, l := range listeners {
		if l == exclude {
			continue
		}
		b.invoke(l, stack, handleExceptions)
	}
}

func (b *Bus) invoke(l Listener, stack *Stack, handleExceptions bool) {
	if !handleExceptions {
		l.OnPoolElementChanged(stack)
		return
	}
	defer func() {
		if r := recover(); r != nil && b.log != nil {
			b.log.WithField("panic", r).Error("listener panicked, event swallowed")
		}
	}()
	l.OnPoolElementChanged(stack)
}
