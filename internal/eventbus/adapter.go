package eventbus

import (
	"github.com/PaesslerAG/jsonpath"
)

// GroupAdapter is the group's external-publisher collaborator: when a group
// re-emits an event it asks the adapter to construct the derived event
// from the stack observed so far, letting an external publisher rewrite
// the event before the bus continues propagation.
type GroupAdapter interface {
	DeriveEvent(stack *Stack, group ElementRef) Event
}

// DefaultAdapter derives an event by copying the head event and
// re-stamping its Source to the group, which is the behavior every group
// needs at minimum (aggregation without any field rewriting).
type DefaultAdapter struct{}

func (DefaultAdapter) DeriveEvent(stack *Stack, group ElementRef) Event {
	head := stack.Head()
	derived := head
	derived.Source = group
	return derived
}

// JSONPathAdapter additionally extracts a field out of the head event's
// Current/Old payload (when it is a JSON-shaped map) via a JSONPath
// expression, and stores it under Current/Old for the derived event. This
// lets an external publisher project a specific sub-field instead of the
// raw value, e.g. a measurement group publishing only a channel's
// "value" field out of a richer per-channel map.
type JSONPathAdapter struct {
	CurrentPath string
	OldPath     string
}

func (a JSONPathAdapter) DeriveEvent(stack *Stack, group ElementRef) Event {
	head := stack.Head()
	derived := head
	derived.Source = group

	if a.CurrentPath != "" {
		if v, err := jsonpath.Get(a.CurrentPath, head.Current); err == nil {
			derived.Current = v
		}
	}
	if a.OldPath != "" {
		if v, err := jsonpath.Get(a.OldPath, head.Old); err == nil {
			derived.Old = v
		}
	}
	return derived
}
