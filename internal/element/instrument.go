package element

import (
	"strings"

	"github.com/r3e-network/pool-orchestrator/internal/elementid"
)

// Instrument is a pure grouping node in the `/`-rooted instrument hierarchy
//: elements reference their owning instrument by id, and
// instruments reference their parent instrument by id, with the invariant
// that a child's parent must already exist in the registry.
type Instrument struct {
	*Base
	parentID elementid.ID
}

func NewInstrument(id elementid.ID, name string, parentID elementid.ID) *Instrument {
	i := &Instrument{Base: NewBase(id, name, TypeInstrument), parentID: parentID}
	return i
}

func (i *Instrument) ParentID() elementid.ID { return i.parentID }

// ClassName joins path segments into a `/`-rooted hierarchy path; full
// names are set by pool.CreateInstrument from the path and the type.
func ClassName(segments ...string) string {
	return "/" + strings.Join(segments, "/")
}
