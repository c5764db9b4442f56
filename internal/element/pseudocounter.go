package element

import "github.com/r3e-network/pool-orchestrator/internal/elementid"

// PseudoCounter is a synthetic Readable[float64] backed by channel-role
// bindings to physical counter/0D/1D/2D channels.
type PseudoCounter struct {
	*Base

	channelRoles []elementid.ID
	roleIndex    int

	composer CounterComposer
}

func NewPseudoCounter(id elementid.ID, name string, ctrlID elementid.ID, channelRoles []elementid.ID, roleIndex int) *PseudoCounter {
	p := &PseudoCounter{
		Base:         NewBase(id, name, TypePseudoCounter),
		channelRoles: append([]elementid.ID(nil), channelRoles...),
		roleIndex:    roleIndex,
	}
	p.SetControllerID(ctrlID)
	return p
}

func (p *PseudoCounter) SetComposer(c CounterComposer) { p.composer = c }

func (p *PseudoCounter) ChannelRoles() []elementid.ID { return append([]elementid.ID(nil), p.channelRoles...) }
func (p *PseudoCounter) RoleIndex() int               { return p.roleIndex }

func (p *PseudoCounter) ReadOne() (float64, error) {
	if p.composer == nil {
		return 0, errNoReader(p.ElementName())
	}
	return p.composer.ReadOne(p)
}
