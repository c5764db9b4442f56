package registry

import (
	"context"
	"fmt"

	"github.com/r3e-network/pool-orchestrator/internal/element"
	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/poolerrors"
)

// typed resolves id, asserting its concrete Go type matches T (e.g.
// *element.Motor), and returns CodeWrongType if the element exists but is a
// different type than requested.
func typed[T any](r *Registry, ctx context.Context, id elementid.ID, wantType element.Type) (T, error) {
	var zero T
	e, err := r.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	t, ok := any(e).(T)
	if !ok {
		return zero, poolerrors.WrongType(fmt.Sprintf("%d", id), string(wantType), string(e.Type()))
	}
	return t, nil
}

func (r *Registry) GetMotor(ctx context.Context, id elementid.ID) (*element.Motor, error) {
	return typed[*element.Motor](r, ctx, id, element.TypeMotor)
}

func (r *Registry) GetPseudoMotor(ctx context.Context, id elementid.ID) (*element.PseudoMotor, error) {
	return typed[*element.PseudoMotor](r, ctx, id, element.TypePseudoMotor)
}

func (r *Registry) GetMotorGroup(ctx context.Context, id elementid.ID) (*element.MotorGroup, error) {
	return typed[*element.MotorGroup](r, ctx, id, element.TypeMotorGroup)
}

func (r *Registry) GetMeasurementGroup(ctx context.Context, id elementid.ID) (*element.MeasurementGroup, error) {
	return typed[*element.MeasurementGroup](r, ctx, id, element.TypeMeasurementGroup)
}

func (r *Registry) GetCounterTimer(ctx context.Context, id elementid.ID) (*element.CounterTimer, error) {
	return typed[*element.CounterTimer](r, ctx, id, element.TypeCounterTimer)
}

func (r *Registry) GetPseudoCounter(ctx context.Context, id elementid.ID) (*element.PseudoCounter, error) {
	return typed[*element.PseudoCounter](r, ctx, id, element.TypePseudoCounter)
}

func (r *Registry) GetZeroD(ctx context.Context, id elementid.ID) (*element.ZeroD, error) {
	return typed[*element.ZeroD](r, ctx, id, element.TypeZeroD)
}

func (r *Registry) GetOneD(ctx context.Context, id elementid.ID) (*element.OneD, error) {
	return typed[*element.OneD](r, ctx, id, element.TypeOneD)
}

func (r *Registry) GetTwoD(ctx context.Context, id elementid.ID) (*element.TwoD, error) {
	return typed[*element.TwoD](r, ctx, id, element.TypeTwoD)
}

func (r *Registry) GetCommunication(ctx context.Context, id elementid.ID) (*element.Communication, error) {
	return typed[*element.Communication](r, ctx, id, element.TypeCommunication)
}

func (r *Registry) GetIORegister(ctx context.Context, id elementid.ID) (*element.IORegister, error) {
	return typed[*element.IORegister](r, ctx, id, element.TypeIORegister)
}

func (r *Registry) GetInstrument(ctx context.Context, id elementid.ID) (*element.Instrument, error) {
	return typed[*element.Instrument](r, ctx, id, element.TypeInstrument)
}

func (r *Registry) GetController(ctx context.Context, id elementid.ID) (*element.Controller, error) {
	return typed[*element.Controller](r, ctx, id, element.TypeController)
}

// Moveable resolves id as any element.Moveable, the capability-trait
// accessor the Scheduler uses instead of switching on concrete type.
func (r *Registry) Moveable(ctx context.Context, id elementid.ID) (element.Moveable, error) {
	e, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	m, ok := e.(element.Moveable)
	if !ok {
		return nil, poolerrors.WrongType(fmt.Sprintf("%d", id), "Moveable", string(e.Type()))
	}
	return m, nil
}
