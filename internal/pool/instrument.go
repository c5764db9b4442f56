package pool

import (
	"context"
	"strings"

	"github.com/r3e-network/pool-orchestrator/internal/element"
	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/persistence"
	"github.com/r3e-network/pool-orchestrator/internal/poolerrors"
)

// CreateInstrument adds one node to the `/`-rooted instrument hierarchy.
// path is the instrument's own full path (e.g. "/slit/blades"); its parent
// ("/slit") must already exist unless path is root-level.
func (p *Pool) CreateInstrument(ctx context.Context, path, instrType string) (*element.Instrument, error) {
	if !strings.HasPrefix(path, "/") || path == "/" || strings.HasSuffix(path, "/") {
		return nil, poolerrors.New(poolerrors.CodeInvalidInstrumentName,
			"instrument name must be a /-rooted path with a non-empty leaf").WithDetail("name", path)
	}
	if strings.TrimSpace(instrType) == "" {
		return nil, poolerrors.New(poolerrors.CodeInvalidInstrumentType, "instrument type must not be empty")
	}

	parentID := elementid.InvalidID
	if parent := parentPath(path); parent != "" {
		pe, err := p.reg.GetByName(ctx, parent)
		if err != nil {
			return nil, poolerrors.New(poolerrors.CodeParentInstrumentMissing,
				"parent instrument does not exist").WithDetail("parent", parent)
		}
		if pe.Type() != element.TypeInstrument {
			return nil, poolerrors.WrongType(parent, string(element.TypeInstrument), string(pe.Type()))
		}
		parentID = pe.ElementID()
	}

	id := p.reg.Allocator().Next(elementid.SpacePublic)
	inst := element.NewInstrument(id, path, parentID)
	inst.SetFullName(instrumentFullName(path, instrType))
	inst.SetUserFullName(userFullName(path, inst.FullName()))

	if err := p.reg.Add(ctx, inst); err != nil {
		return nil, err
	}
	p.saveRecord(ctx, persistence.ElementRecord{ID: id, InstrumentType: instrType})
	p.fireListChange()
	return inst, nil
}

// AssignInstrument attaches an element to an instrument node.
func (p *Pool) AssignInstrument(ctx context.Context, elementName, instrumentPath string) error {
	e, err := p.reg.GetByName(ctx, elementName)
	if err != nil {
		return err
	}
	inst, err := p.reg.GetByName(ctx, instrumentPath)
	if err != nil {
		return err
	}
	if inst.Type() != element.TypeInstrument {
		return poolerrors.WrongType(instrumentPath, string(element.TypeInstrument), string(inst.Type()))
	}

	setter, ok := e.(interface{ SetInstrumentID(elementid.ID) })
	if !ok {
		return poolerrors.New(poolerrors.CodeOperationNotSupported, "element cannot belong to an instrument")
	}
	setter.SetInstrumentID(inst.ElementID())
	return nil
}
