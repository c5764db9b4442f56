package pool

import (
	"context"
	"fmt"

	"github.com/r3e-network/pool-orchestrator/internal/element"
	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/persistence"
	"github.com/r3e-network/pool-orchestrator/internal/poolerrors"
	"github.com/r3e-network/pool-orchestrator/internal/session"
)

// CreateElementRequest names a physical element to create on an existing
// controller's axis.
type CreateElementRequest struct {
	Type           element.Type
	Name           string
	ControllerName string
	Axis           int
}

// CreateElement claims an axis slot on the named controller, constructs
// the typed record, wires its read/write closures to the session, and
// registers it. The plug-in's AddDevice runs before registration so a
// rejecting controller never leaves a half-created element behind.
func (p *Pool) CreateElement(ctx context.Context, req CreateElementRequest) (registryElement, error) {
	if !req.Type.IsPhysical() {
		return nil, poolerrors.New(poolerrors.CodeOperationNotSupported,
			fmt.Sprintf("CreateElement only creates physical elements, not %s", req.Type))
	}

	ctrlElem, err := p.reg.GetByName(ctx, req.ControllerName)
	if err != nil {
		return nil, err
	}
	sess, ok := p.sessions.Get(ctrlElem.ElementID())
	if !ok {
		return nil, poolerrors.NotFound("session", req.ControllerName)
	}

	id := p.reg.Allocator().Next(elementid.SpacePublic)
	e := p.buildPhysical(req.Type, id, req.Name, ctrlElem.ElementID(), req.Axis, sess)
	if e == nil {
		return nil, poolerrors.New(poolerrors.CodeOperationNotSupported, fmt.Sprintf("unsupported element type %s", req.Type))
	}

	if err := sess.AddDevice(ctx, req.Axis, id); err != nil {
		return nil, err
	}
	if err := p.reg.Add(ctx, e); err != nil {
		_ = sess.DeleteDevice(ctx, req.Axis)
		return nil, err
	}

	p.saveRecord(ctx, persistence.ElementRecord{ID: id, CtrlID: ctrlElem.ElementID(), Axis: req.Axis})
	p.fireListChange()
	return e, nil
}

// registryElement is the facade's return surface for heterogeneous
// creation: identity plus naming, nothing type-specific.
type registryElement interface {
	ElementID() elementid.ID
	ElementName() string
	Type() element.Type
	NameMatches(name string) bool
}

func (p *Pool) buildPhysical(t element.Type, id elementid.ID, name string, ctrlID elementid.ID, axis int, sess *session.Session) registryElement {
	fullName := axisFullName(t, sess.InstanceName(), axis)
	ctx := context.Background()

	switch t {
	case element.TypeMotor:
		m := element.NewMotor(id, name, ctrlID, axis)
		m.SetFullName(fullName)
		m.SetUserFullName(userFullName(name, fullName))
		return m
	case element.TypeCounterTimer:
		c := element.NewCounterTimer(id, name, ctrlID, axis)
		c.SetFullName(fullName)
		c.SetUserFullName(userFullName(name, fullName))
		c.SetReader(func() (float64, error) {
			v, err := sess.ReadOne(ctx, axis)
			if err != nil {
				return 0, err
			}
			return toFloat64(v), nil
		})
		return c
	case element.TypeZeroD:
		z := element.NewZeroD(id, name, ctrlID, axis)
		z.SetFullName(fullName)
		z.SetUserFullName(userFullName(name, fullName))
		z.SetReader(func() (float64, error) {
			v, err := sess.ReadOne(ctx, axis)
			if err != nil {
				return 0, err
			}
			return toFloat64(v), nil
		})
		return z
	case element.TypeOneD:
		o := element.NewOneD(id, name, ctrlID, axis)
		o.SetFullName(fullName)
		o.SetUserFullName(userFullName(name, fullName))
		o.SetReader(func() ([]float64, error) {
			v, err := sess.ReadOne(ctx, axis)
			if err != nil {
				return nil, err
			}
			return toFloat64s(v), nil
		})
		return o
	case element.TypeTwoD:
		d := element.NewTwoD(id, name, ctrlID, axis)
		d.SetFullName(fullName)
		d.SetUserFullName(userFullName(name, fullName))
		d.SetReader(func() ([][]float64, error) {
			v, err := sess.ReadOne(ctx, axis)
			if err != nil {
				return nil, err
			}
			rows, _ := v.([]any)
			out := make([][]float64, len(rows))
			for i, r := range rows {
				out[i] = toFloat64s(r)
			}
			return out, nil
		})
		return d
	case element.TypeCommunication:
		c := element.NewCommunication(id, name, ctrlID, axis)
		c.SetFullName(fullName)
		c.SetUserFullName(userFullName(name, fullName))
		c.Bind(
			func() (string, error) {
				v, err := sess.ReadOne(ctx, axis)
				if err != nil {
					return "", err
				}
				s, _ := v.(string)
				return s, nil
			},
			func() (string, error) {
				v, err := sess.Call(ctx, "ReadLineOne", axis)
				if err != nil {
					return "", err
				}
				s, _ := v.(string)
				return s, nil
			},
			func(data string) error { return sess.WriteOne(ctx, axis, data) },
			func(data string) (string, error) {
				v, err := sess.Call(ctx, "WriteReadOne", axis, data)
				if err != nil {
					return "", err
				}
				s, _ := v.(string)
				return s, nil
			},
		)
		return c
	case element.TypeIORegister:
		r := element.NewIORegister(id, name, ctrlID, axis)
		r.SetFullName(fullName)
		r.SetUserFullName(userFullName(name, fullName))
		r.Bind(
			func() (int64, error) {
				v, err := sess.ReadOne(ctx, axis)
				if err != nil {
					return 0, err
				}
				return toInt64(v), nil
			},
			func(value int64) error { return sess.WriteOne(ctx, axis, value) },
		)
		if rec, ok := p.loader.FileRecordFor(sess.FileName()); ok {
			if meta, ok := rec.Classes()[sess.ClassName()]; ok && meta.PredefinedValues != nil {
				r.SetPredefinedValues(meta.PredefinedValues)
			}
		}
		return r
	}
	return nil
}

func toFloat64(v any) float64 {
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

func toFloat64s(v any) []float64 {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, len(raw))
	for i, r := range raw {
		switch n := r.(type) {
		case float64:
			out[i] = n
		case int64:
			out[i] = float64(n)
		}
	}
	return out
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	}
	return 0
}
