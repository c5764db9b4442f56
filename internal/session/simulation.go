package session

import "sync"

// simAxis is the simulated state machine backing one axis when its element
// is in simulation mode: writes land in memory, moves complete instantly,
// and the plug-in is never touched. The hardware call is swapped for a
// bookkeeping-only path rather than loading a separate controller.
type simAxis struct {
	position float64
	value    any
}

type simulation struct {
	mu   sync.Mutex
	axes map[int]*simAxis
}

func (s *simulation) enable(axis int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.axes == nil {
		s.axes = make(map[int]*simAxis)
	}
	if _, ok := s.axes[axis]; !ok {
		s.axes[axis] = &simAxis{}
	}
}

func (s *simulation) disable(axis int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.axes, axis)
}

func (s *simulation) get(axis int) (*simAxis, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, ok := s.axes[axis]
	return sa, ok
}

// SetSimulation toggles the simulated path for one axis. While enabled,
// StartOne/ReadOne/WriteOne/StateOne/AbortOne on that axis never reach the
// plug-in.
func (s *Session) SetSimulation(axis int, on bool) {
	if on {
		s.sim.enable(axis)
	} else {
		s.sim.disable(axis)
	}
}

// Simulated reports whether axis currently runs against the simulated
// state machine.
func (s *Session) Simulated(axis int) bool {
	_, ok := s.sim.get(axis)
	return ok
}
