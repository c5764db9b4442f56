package element

import (
	"fmt"

	"github.com/r3e-network/pool-orchestrator/internal/elementid"
)

// IORegister is a discrete-valued channel: Readable[int64] plus WriteOne,
// with an optional predefined-values table mapping labels to values.
type IORegister struct {
	*Base
	ExtraAttributes

	reader func() (int64, error)
	writer func(int64) error

	predefined map[string]int64
}

func NewIORegister(id elementid.ID, name string, ctrlID elementid.ID, axis int) *IORegister {
	r := &IORegister{Base: NewBase(id, name, TypeIORegister)}
	r.SetControllerID(ctrlID)
	r.SetAxis(axis)
	return r
}

func (r *IORegister) Bind(reader func() (int64, error), writer func(int64) error) {
	r.reader, r.writer = reader, writer
}

func (r *IORegister) SetPredefinedValues(values map[string]int64) {
	r.predefined = make(map[string]int64, len(values))
	for k, v := range values {
		r.predefined[k] = v
	}
}

func (r *IORegister) PredefinedValue(label string) (int64, bool) {
	v, ok := r.predefined[label]
	return v, ok
}

func (r *IORegister) ReadOne() (int64, error) {
	if r.reader == nil {
		return 0, errNoReader(r.ElementName())
	}
	return r.reader()
}

func (r *IORegister) WriteOne(value int64) error {
	if r.writer == nil {
		return errNoWriter(r.ElementName())
	}
	return r.writer(value)
}

// WriteLabel resolves a predefined label to its value before writing.
func (r *IORegister) WriteLabel(label string) error {
	v, ok := r.predefined[label]
	if !ok {
		return fmt.Errorf("io register %q: undefined label %q", r.ElementName(), label)
	}
	return r.WriteOne(v)
}
