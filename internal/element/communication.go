package element

import "github.com/r3e-network/pool-orchestrator/internal/elementid"

// Communication is a raw channel element (serial line, socket, GPIB...)
// with Open/Closed substates layered on top of the common On/Disabled/Fault
// states.
type Communication struct {
	*Base
	ExtraAttributes

	readOne      func() (string, error)
	readLineOne  func() (string, error)
	writeOne     func(string) error
	writeReadOne func(string) (string, error)
}

func NewCommunication(id elementid.ID, name string, ctrlID elementid.ID, axis int) *Communication {
	c := &Communication{Base: NewBase(id, name, TypeCommunication)}
	c.SetControllerID(ctrlID)
	c.SetAxis(axis)
	c.SetState(StateClosed)
	return c
}

func (c *Communication) Bind(readOne, readLineOne func() (string, error), writeOne func(string) error, writeReadOne func(string) (string, error)) {
	c.readOne, c.readLineOne, c.writeOne, c.writeReadOne = readOne, readLineOne, writeOne, writeReadOne
}

func (c *Communication) ReadOne() (string, error) {
	if c.readOne == nil {
		return "", errNoReader(c.ElementName())
	}
	return c.readOne()
}

func (c *Communication) ReadLineOne() (string, error) {
	if c.readLineOne == nil {
		return "", errNoReader(c.ElementName())
	}
	return c.readLineOne()
}

func (c *Communication) WriteOne(data string) error {
	if c.writeOne == nil {
		return errNoWriter(c.ElementName())
	}
	return c.writeOne(data)
}

func (c *Communication) WriteReadOne(data string) (string, error) {
	if c.writeReadOne == nil {
		return "", errNoWriter(c.ElementName())
	}
	return c.writeReadOne(data)
}
