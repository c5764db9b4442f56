package element

import "github.com/r3e-network/pool-orchestrator/internal/elementid"

// ZeroD is a scalar, non-timed experiment channel: Readable[float64].
type ZeroD struct {
	*Base
	ExtraAttributes
	reader func() (float64, error)
}

func NewZeroD(id elementid.ID, name string, ctrlID elementid.ID, axis int) *ZeroD {
	z := &ZeroD{Base: NewBase(id, name, TypeZeroD)}
	z.SetControllerID(ctrlID)
	z.SetAxis(axis)
	return z
}

func (z *ZeroD) SetReader(fn func() (float64, error)) { z.reader = fn }

func (z *ZeroD) ReadOne() (float64, error) {
	if z.reader == nil {
		return 0, errNoReader(z.ElementName())
	}
	return z.reader()
}

// OneD is a 1-dimensional array experiment channel: Readable[[]float64].
type OneD struct {
	*Base
	ExtraAttributes
	reader func() ([]float64, error)
}

func NewOneD(id elementid.ID, name string, ctrlID elementid.ID, axis int) *OneD {
	o := &OneD{Base: NewBase(id, name, TypeOneD)}
	o.SetControllerID(ctrlID)
	o.SetAxis(axis)
	return o
}

func (o *OneD) SetReader(fn func() ([]float64, error)) { o.reader = fn }

func (o *OneD) ReadOne() ([]float64, error) {
	if o.reader == nil {
		return nil, errNoReader(o.ElementName())
	}
	return o.reader()
}

// TwoD is a 2-dimensional array experiment channel (e.g. an image
// detector): Readable[[][]float64].
type TwoD struct {
	*Base
	ExtraAttributes
	reader func() ([][]float64, error)
}

func NewTwoD(id elementid.ID, name string, ctrlID elementid.ID, axis int) *TwoD {
	t := &TwoD{Base: NewBase(id, name, TypeTwoD)}
	t.SetControllerID(ctrlID)
	t.SetAxis(axis)
	return t
}

func (t *TwoD) SetReader(fn func() ([][]float64, error)) { t.reader = fn }

func (t *TwoD) ReadOne() ([][]float64, error) {
	if t.reader == nil {
		return nil, errNoReader(t.ElementName())
	}
	return t.reader()
}
