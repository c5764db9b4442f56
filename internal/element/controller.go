package element

import "github.com/r3e-network/pool-orchestrator/internal/elementid"

// Controller is the registry-visible record for a Controller Session:
// the element package only tracks its identity and bookkeeping fields so
// the registry can list/type-index it like any other element; the actual
// plug-in instance, lock, and lifecycle state live in internal/session,
// which keeps element free of the pluginloader/goja dependency chain.
type Controller struct {
	*Base

	className   string
	libraryName string
	instanceName string
	maxDevice   int
}

func NewController(id elementid.ID, name, className, libraryName, instanceName string, maxDevice int) *Controller {
	return &Controller{
		Base:         NewBase(id, name, TypeController),
		className:    className,
		libraryName:  libraryName,
		instanceName: instanceName,
		maxDevice:    maxDevice,
	}
}

func (c *Controller) ClassName() string    { return c.className }
func (c *Controller) LibraryName() string  { return c.libraryName }
func (c *Controller) InstanceName() string { return c.instanceName }
func (c *Controller) MaxDevice() int       { return c.maxDevice }
