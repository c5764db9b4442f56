package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/r3e-network/pool-orchestrator/internal/element"
	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/eventbus"
)

// temporaryComposite tracks one ad-hoc motor group backing an
// ad-hoc move or acquire request. age is wall-clock time since
// the composite was last matched by TemporaryMotorGroup; the housekeeping
// sweep garbage-collects entries whose age exceeds cfg.MaxInactive.
type temporaryComposite struct {
	id         elementid.ID
	members    []elementid.ID
	lastActive time.Time
}

// TemporaryMotorGroup returns the existing temporary group backing
// memberIDs if one matches, per matchesUserMembers(exactOrder), or creates
// and registers a new ghost MotorGroup otherwise. The
// composer is whatever wires MotorGroup.CalcMove (the pseudo composition
// layer); callers pass it in because the scheduler has no direct
// dependency on internal/pseudo.
func (s *Scheduler) TemporaryMotorGroup(ctx context.Context, memberIDs []elementid.ID, exactOrder bool, composer element.GroupComposer) (*element.MotorGroup, error) {
	s.tmpMu.Lock()
	for id, t := range s.tmp {
		if matchesUserMembers(t.members, memberIDs, exactOrder) {
			t.lastActive = time.Now()
			s.tmpMu.Unlock()
			return s.reg.GetMotorGroup(ctx, id)
		}
	}
	s.tmpMu.Unlock()

	id := s.reg.Allocator().Next(elementid.SpaceGhost)
	name := fmt.Sprintf("__tmp_mg_%d", id)
	g := element.NewMotorGroup(id, name, memberIDs)
	g.SetHidden(true)
	g.SetComposer(composer)
	g.BindEventBus(s.bus)
	if err := s.reg.Add(ctx, g); err != nil {
		return nil, err
	}
	for _, mid := range memberIDs {
		if e, err := s.reg.Get(ctx, mid); err == nil {
			if hl, ok := e.(eventbus.HasListeners); ok {
				hl.AddListener(g)
			}
		}
	}

	s.tmpMu.Lock()
	s.tmp[id] = &temporaryComposite{id: id, members: append([]elementid.ID(nil), memberIDs...), lastActive: time.Now()}
	s.tmpMu.Unlock()

	return g, nil
}

// matchesUserMembers compares member sets either as ordered lists or as
// multisets; TemporaryMotorGroup passes its caller's explicit exactOrder
// choice through, since ordered and unordered requests want different
// semantics.
func matchesUserMembers(existing, candidate []elementid.ID, exactOrder bool) bool {
	if len(existing) != len(candidate) {
		return false
	}
	if exactOrder {
		for i := range existing {
			if existing[i] != candidate[i] {
				return false
			}
		}
		return true
	}
	seen := make(map[elementid.ID]int, len(existing))
	for _, id := range existing {
		seen[id]++
	}
	for _, id := range candidate {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}

// AgeSweep is the housekeeping thread's periodic tick: any
// temporary composite whose lastActive timestamp is older than
// cfg.MaxInactive is detached from its members and removed from the
// registry. lastActive is refreshed only when TemporaryMotorGroup resolves
// a request to the composite; a Move through the composite does not
// refresh it, and the sweep does not check whether the composite is
// moving.
func (s *Scheduler) AgeSweep(ctx context.Context) int {
	now := time.Now()
	var expired []elementid.ID

	s.tmpMu.Lock()
	for id, t := range s.tmp {
		if now.Sub(t.lastActive) >= s.cfg.MaxInactive {
			expired = append(expired, id)
			delete(s.tmp, id)
		}
	}
	s.tmpMu.Unlock()

	for _, id := range expired {
		if g, err := s.reg.GetMotorGroup(ctx, id); err == nil {
			for _, mid := range g.Members() {
				if e, err := s.reg.Get(ctx, mid); err == nil {
					if hl, ok := e.(eventbus.HasListeners); ok {
						hl.RemoveListener(g)
					}
				}
			}
		}
		s.reg.Remove(ctx, id)
		if s.log != nil {
			s.log.WithField("id", id).Info("garbage collected inactive temporary composite")
		}
	}
	return len(expired)
}
