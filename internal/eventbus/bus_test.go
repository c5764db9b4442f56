package eventbus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/pool-orchestrator/internal/element"
	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/eventbus"
)

// source is a bare event source: listener storage plus identity.
type source struct {
	eventbus.Registry
	id   elementid.ID
	name string
}

func (s *source) ElementID() elementid.ID { return s.id }
func (s *source) ElementName() string     { return s.name }

func TestFireDeliversInRegistrationOrder(t *testing.T) {
	bus := eventbus.New(nil)
	src := &source{id: 1, name: "mot01"}

	var order []string
	src.AddListener(eventbus.ListenerFunc(func(*eventbus.Stack) { order = append(order, "a") }))
	src.AddListener(eventbus.ListenerFunc(func(*eventbus.Stack) { order = append(order, "b") }))
	src.AddListener(eventbus.ListenerFunc(func(*eventbus.Stack) { order = append(order, "c") }))

	bus.Fire(src, eventbus.Event{Kind: eventbus.KindStateChange, Source: src}, nil, true)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestFireExcludesListener(t *testing.T) {
	bus := eventbus.New(nil)
	src := &source{id: 1, name: "mot01"}

	var hits int
	excluded := eventbus.ListenerFunc(func(*eventbus.Stack) { hits += 100 })
	src.AddListener(excluded)
	src.AddListener(eventbus.ListenerFunc(func(*eventbus.Stack) { hits++ }))

	bus.Fire(src, eventbus.Event{Kind: eventbus.KindStateChange, Source: src}, excluded, true)
	assert.Equal(t, 1, hits)
}

func TestStackDisciplineLIFO(t *testing.T) {
	// A motor group registered as listener on its member pushes a derived
	// event, redelivers to its own listeners, and pops: every delivery
	// sees a non-empty stack and the depth is restored once the group
	// returns to the member's delivery loop.
	bus := eventbus.New(nil)
	motor := element.NewMotor(1, "mot01", 1, 1)
	group := element.NewMotorGroup(2, "mg01", []elementid.ID{motor.ElementID()})
	group.BindEventBus(bus)
	motor.AddListener(group)

	var depths []int
	group.AddListener(eventbus.ListenerFunc(func(stack *eventbus.Stack) {
		depths = append(depths, stack.Len())
		assert.Equal(t, "mg01", stack.Head().Source.ElementName())
		assert.Equal(t, "mot01", stack.Origin().Source.ElementName())
	}))

	// Registered after the group, so it runs once the group has popped.
	var depthAfterGroup int
	motor.AddListener(eventbus.ListenerFunc(func(stack *eventbus.Stack) {
		depthAfterGroup = stack.Len()
	}))

	bus.Fire(motor, eventbus.Event{Kind: eventbus.KindPositionChange, Source: motor, Current: 1.5}, nil, true)

	assert.Equal(t, []int{2}, depths)
	assert.Equal(t, 1, depthAfterGroup)
}

func TestGroupNeverSeesOwnReemission(t *testing.T) {
	bus := eventbus.New(nil)
	motor := element.NewMotor(1, "mot01", 1, 1)
	group := element.NewMotorGroup(2, "mg01", []elementid.ID{motor.ElementID()})
	group.BindEventBus(bus)
	motor.AddListener(group)
	// A nested membership loop would make the group a listener of itself;
	// the redelivery exclusion must keep its re-emission from coming back
	// (unbounded recursion here would blow the stack).
	group.AddListener(group)

	var leafDeliveries int
	group.AddListener(eventbus.ListenerFunc(func(stack *eventbus.Stack) {
		leafDeliveries++
		require.Less(t, leafDeliveries, 5, "propagation cycled")
	}))

	bus.Fire(motor, eventbus.Event{Kind: eventbus.KindPositionChange, Source: motor}, nil, true)
	assert.Equal(t, 1, leafDeliveries)
}

func TestMeasurementGroupAggregatesChannelEvents(t *testing.T) {
	bus := eventbus.New(nil)
	ch := element.NewCounterTimer(1, "ct01", 1, 1)
	group := element.NewMeasurementGroup(2, "mntgrp01", []elementid.ID{ch.ElementID()})
	group.BindEventBus(bus)
	ch.AddListener(group)

	var derived []eventbus.Event
	group.AddListener(eventbus.ListenerFunc(func(stack *eventbus.Stack) {
		derived = append(derived, stack.Head())
	}))

	bus.Fire(ch, eventbus.Event{Kind: eventbus.KindCTValueChange, Source: ch, Current: 2.5}, nil, true)

	require.Len(t, derived, 1)
	assert.Equal(t, "mntgrp01", derived[0].Source.ElementName())
	assert.Equal(t, 2.5, derived[0].Current)
}

func TestListenerPanicSwallowed(t *testing.T) {
	bus := eventbus.New(nil)
	src := &source{id: 1, name: "mot01"}

	var after bool
	src.AddListener(eventbus.ListenerFunc(func(*eventbus.Stack) { panic("boom") }))
	src.AddListener(eventbus.ListenerFunc(func(*eventbus.Stack) { after = true }))

	require.NotPanics(t, func() {
		bus.Fire(src, eventbus.Event{Kind: eventbus.KindStateChange, Source: src}, nil, true)
	})
	assert.True(t, after)
}

func TestListenerPanicPropagatesWhenRequested(t *testing.T) {
	bus := eventbus.New(nil)
	src := &source{id: 1, name: "mot01"}
	src.AddListener(eventbus.ListenerFunc(func(*eventbus.Stack) { panic("boom") }))

	require.Panics(t, func() {
		bus.Fire(src, eventbus.Event{Kind: eventbus.KindStateChange, Source: src}, nil, false)
	})
}

func TestRemoveDuringDeliveryDeferred(t *testing.T) {
	bus := eventbus.New(nil)
	src := &source{id: 1, name: "mot01"}

	var secondHits int
	second := eventbus.ListenerFunc(func(*eventbus.Stack) { secondHits++ })
	first := eventbus.ListenerFunc(func(*eventbus.Stack) {
		src.RemoveListener(second)
	})
	src.AddListener(first)
	src.AddListener(second)

	// Removal requested mid-delivery still delivers this event to second.
	bus.Fire(src, eventbus.Event{Kind: eventbus.KindStateChange, Source: src}, nil, true)
	assert.Equal(t, 1, secondHits)

	// The next fire no longer reaches it.
	bus.Fire(src, eventbus.Event{Kind: eventbus.KindStateChange, Source: src}, nil, true)
	assert.Equal(t, 1, secondHits)
}

func TestJSONPathAdapterProjectsField(t *testing.T) {
	group := &source{id: 2, name: "mg01"}
	head := eventbus.Event{
		Kind:    eventbus.KindCTValueChange,
		Current: map[string]any{"value": 2.5, "quality": "valid"},
	}
	stack := eventbus.NewStack(head)

	derived := eventbus.JSONPathAdapter{CurrentPath: "$.value"}.DeriveEvent(stack, group)
	assert.Equal(t, 2.5, derived.Current)
	assert.Equal(t, group.ElementName(), derived.Source.ElementName())
}
