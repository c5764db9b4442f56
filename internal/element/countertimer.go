package element

import "github.com/r3e-network/pool-orchestrator/internal/elementid"

// CounterTimer is a scalar acquisition channel: implements
// Readable[float64] plus the Moveable-adjacent Timerable role used by the
// Scheduler's acquisition phase (StartOne/StateOne against an integration
// time rather than a position).
type CounterTimer struct {
	*Base
	ExtraAttributes

	reader func() (float64, error)
}

func NewCounterTimer(id elementid.ID, name string, ctrlID elementid.ID, axis int) *CounterTimer {
	c := &CounterTimer{Base: NewBase(id, name, TypeCounterTimer)}
	c.SetControllerID(ctrlID)
	c.SetAxis(axis)
	return c
}

// SetReader wires the controller-session-backed read function in; the
// element package has no dependency on the session/pluginloader layer, so
// the pool facade assigns this closure, which reads through the
// controller session, when it creates the element.
func (c *CounterTimer) SetReader(fn func() (float64, error)) { c.reader = fn }

func (c *CounterTimer) ReadOne() (float64, error) {
	if c.reader == nil {
		return 0, errNoReader(c.ElementName())
	}
	return c.reader()
}
