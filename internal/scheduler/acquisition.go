package scheduler

import (
	"context"

	"github.com/r3e-network/pool-orchestrator/internal/element"
	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/eventbus"
	"github.com/r3e-network/pool-orchestrator/internal/poolerrors"
)

// channelTarget is one measurement-group member resolved to its owning
// controller session and axis.
type channelTarget struct {
	ctrlID elementid.ID
	id     elementid.ID
	axis   int
}

// Acquire drives a MeasurementGroup's counter-timer acquisition: load
// the integration time onto the master channel, start every channel, and
// poll until the master leaves Moving, at which point every other channel
// is aborted to keep data aligned.
func (s *Scheduler) Acquire(ctx context.Context, group *element.MeasurementGroup, integrationTime float64) (*Motion, error) {
	channels, err := s.resolveChannels(ctx, group.Channels())
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, poolerrors.New(poolerrors.CodeOperationNotSupported, "measurement group has no channels")
	}

	ctrlIDs := make([]elementid.ID, 0, len(channels))
	for _, c := range channels {
		ctrlIDs = append(ctrlIDs, c.ctrlID)
	}
	sessions := s.sessions.Ordered(ctrlIDs)

	lockedCtx, unlock := s.lockSessions(ctx, sessions)
	for _, sess := range sessions {
		if err := sess.PreStartAllCT(lockedCtx); err != nil {
			unlock()
			return nil, err
		}
	}
	// Only the master channel is loaded with the integration time; the
	// others free-run and stop when the master's termination aborts them.
	for _, c := range channels {
		if c.id != group.Master() {
			continue
		}
		sess, ok := s.sessions.Get(c.ctrlID)
		if !ok {
			continue
		}
		if err := sess.LoadOne(lockedCtx, c.axis, integrationTime); err != nil {
			unlock()
			return nil, err
		}
	}
	for _, c := range channels {
		sess, ok := s.sessions.Get(c.ctrlID)
		if !ok {
			continue
		}
		if err := sess.StartOneCT(lockedCtx, c.axis); err != nil {
			unlock()
			return nil, err
		}
	}
	for _, sess := range sessions {
		if err := sess.StartAllCT(lockedCtx); err != nil {
			unlock()
			return nil, err
		}
	}
	// Channels and the group are integrating from this point; cache Moving
	// before the locks drop so concurrent reload/delete refuse immediately.
	var marked []markedState
	for _, c := range channels {
		ct, err := s.reg.GetCounterTimer(lockedCtx, c.id)
		if err != nil {
			continue
		}
		if old, changed := ct.SetState(element.StateMoving); changed {
			marked = append(marked, markedState{elem: ct, old: old})
		}
	}
	if old, changed := group.SetState(element.StateMoving); changed {
		marked = append(marked, markedState{elem: group, old: old})
	}
	unlock()
	for _, m := range marked {
		s.fireStateChange(m.elem, m.old)
	}

	motion := newMotion(group.ElementID())
	if s.hooks.MotionStarted != nil {
		s.hooks.MotionStarted()
	}
	go s.pollAcquisition(group, channels, motion)
	return motion, nil
}

func (s *Scheduler) resolveChannels(ctx context.Context, ids []elementid.ID) ([]channelTarget, error) {
	out := make([]channelTarget, 0, len(ids))
	for _, id := range ids {
		ct, err := s.reg.GetCounterTimer(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, channelTarget{ctrlID: ct.ControllerID(), id: id, axis: ct.Axis()})
	}
	return out, nil
}

func (s *Scheduler) pollAcquisition(group *element.MeasurementGroup, channels []channelTarget, motion *Motion) {
	defer func() {
		motion.finish(nil)
		if s.hooks.MotionCompleted != nil {
			s.hooks.MotionCompleted()
		}
	}()

	ctx := context.Background()
	masterID := group.Master()
	masterStopped := false

	for {
		if s.shuttingDown() {
			return
		}
		anyMoving := false
		for _, c := range channels {
			sess, ok := s.sessions.Get(c.ctrlID)
			if !ok {
				continue
			}
			s.limiterFor(c.ctrlID).Wait(ctx)

			ct, err := s.reg.GetCounterTimer(ctx, c.id)
			if err != nil {
				continue
			}

			st, _, err := sess.StateOne(ctx, c.axis)
			if err != nil {
				if old, changed := ct.SetState(element.StateFault); changed {
					s.fireStateChange(ct, old)
				}
				continue
			}
			if old, changed := ct.SetState(st); changed {
				s.fireStateChange(ct, old)
			}

			if c.id == masterID && st != element.StateMoving && !masterStopped {
				masterStopped = true
				s.abortOthers(ctx, channels, masterID)
			}
			if st == element.StateMoving {
				anyMoving = true
			} else if v, err := sess.ReadOne(ctx, c.axis); err == nil {
				s.bus.Fire(ct, eventbus.Event{Kind: eventbus.KindCTValueChange, Source: ct, Current: v}, nil, true)
			}
		}
		if !anyMoving {
			break
		}
	}

	// The group leaves Moving before MotionEnded goes out.
	if old, changed := group.SetState(element.StateOn); changed {
		s.fireStateChange(group, old)
	}
	s.bus.Fire(group, eventbus.Event{Kind: eventbus.KindMotionEnded, Source: group}, nil, true)
}

// abortOthers implements the master-channel termination rule: every
// non-master channel still running is aborted immediately, even though its
// own integration time hasn't elapsed, so every channel's last sample lines
// up with the master's.
func (s *Scheduler) abortOthers(ctx context.Context, channels []channelTarget, masterID elementid.ID) {
	for _, c := range channels {
		if c.id == masterID {
			continue
		}
		sess, ok := s.sessions.Get(c.ctrlID)
		if !ok {
			continue
		}
		_ = sess.AbortOne(ctx, c.axis)
	}
}
