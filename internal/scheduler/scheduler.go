// Package scheduler implements the Motion/Acquisition Scheduler:
// decomposing a move or acquire request through calc_move, acquiring
// Controller Session locks in ascending id order, driving the plug-in
// phase sequence, and polling per-axis state until every participant
// leaves Moving. It also owns the Temporary Composite
// lifecycle, since both share the same controller-session
// bookkeeping.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/r3e-network/pool-orchestrator/internal/element"
	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/eventbus"
	"github.com/r3e-network/pool-orchestrator/internal/poolerrors"
	"github.com/r3e-network/pool-orchestrator/internal/poollock"
	"github.com/r3e-network/pool-orchestrator/internal/registry"
	"github.com/r3e-network/pool-orchestrator/internal/session"
	"github.com/r3e-network/pool-orchestrator/pkg/logging"
)

// Config controls the scheduler's polling cadence and temporary composite
// aging.
type Config struct {
	DefaultPollInterval time.Duration
	PerControllerPoll   map[elementid.ID]time.Duration
	MaxInactive         time.Duration
}

// DefaultConfig returns sane defaults: a 20Hz probe rate is fast enough
// to report smooth motion without saturating the plug-in's class lock.
func DefaultConfig() Config {
	return Config{
		DefaultPollInterval: 50 * time.Millisecond,
		PerControllerPoll:   map[elementid.ID]time.Duration{},
		MaxInactive:         5 * time.Minute,
	}
}

// Scheduler is the process-wide motion/acquisition driver.
type Scheduler struct {
	reg      *registry.Registry
	sessions *session.Manager
	bus      *eventbus.Bus
	log      *logging.Component
	cfg      Config

	threadSeq uint64

	limMu    sync.Mutex
	limiters map[elementid.ID]*rate.Limiter

	tmpMu sync.Mutex
	tmp   map[elementid.ID]*temporaryComposite

	hooks Hooks

	stopping int32
}

// Hooks let the embedding process observe scheduler activity, typically
// to drive metrics counters. Nil members are skipped.
type Hooks struct {
	MotionStarted   func()
	MotionCompleted func()
}

// SetHooks installs the observation hooks. Call before the first Move.
func (s *Scheduler) SetHooks(h Hooks) { s.hooks = h }

// New constructs a Scheduler wired against the live registry, session
// manager, and event bus.
func New(reg *registry.Registry, sessions *session.Manager, bus *eventbus.Bus, cfg Config, log *logging.Logger) *Scheduler {
	var comp *logging.Component
	if log != nil {
		comp = log.Named("scheduler")
	}
	return &Scheduler{
		reg:      reg,
		sessions: sessions,
		bus:      bus,
		log:      comp,
		cfg:      cfg,
		limiters: make(map[elementid.ID]*rate.Limiter),
		tmp:      make(map[elementid.ID]*temporaryComposite),
	}
}

// RequestShutdown sets the process-wide moving_state_requested flag: in-flight poll loops sample it and exit leaving the current motion
// as-is, rather than forcing an abort.
func (s *Scheduler) RequestShutdown() { atomic.StoreInt32(&s.stopping, 1) }

func (s *Scheduler) shuttingDown() bool { return atomic.LoadInt32(&s.stopping) != 0 }

func (s *Scheduler) nextThreadID() uint64 { return atomic.AddUint64(&s.threadSeq, 1) }

func (s *Scheduler) limiterFor(ctrlID elementid.ID) *rate.Limiter {
	s.limMu.Lock()
	defer s.limMu.Unlock()
	if l, ok := s.limiters[ctrlID]; ok {
		return l
	}
	interval := s.cfg.DefaultPollInterval
	if override, ok := s.cfg.PerControllerPoll[ctrlID]; ok {
		interval = override
	}
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	l := rate.NewLimiter(rate.Every(interval), 1)
	s.limiters[ctrlID] = l
	return l
}

// Motion is the handle returned by Move/Acquire: callers may Wait for
// termination or inspect the error once Done is closed. CorrelationID
// tags every log line the motion produces so overlapping moves can be
// told apart in aggregated logs.
type Motion struct {
	SourceID      elementid.ID
	CorrelationID string
	done          chan struct{}
	err           error
}

// Done reports completion of the motion.
func (m *Motion) Done() <-chan struct{} { return m.done }

// Wait blocks until the motion terminates or ctx is cancelled.
func (m *Motion) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newMotion(id elementid.ID) *Motion {
	return &Motion{SourceID: id, CorrelationID: uuid.NewString(), done: make(chan struct{})}
}

func (m *Motion) finish(err error) {
	m.err = err
	close(m.done)
}

// target is one controller-local axis assignment resolved from a
// element.MoveTargets map.
type target struct {
	ctrlID  elementid.ID
	motorID elementid.ID
	axis    int
	value   float64
}

// Move drives a motion for any Moveable source (motor, pseudo-motor, or
// motor group): decompose, lock in ascending controller id order, run the
// PreStartAll/PreStartOne/StartOne/StartAll phase, then hand off to a
// dedicated polling goroutine.
func (s *Scheduler) Move(ctx context.Context, source element.Moveable, sourceRef eventbus.ElementRef, positions []float64) (*Motion, error) {
	moveTargets, err := source.CalcMove(positions)
	if err != nil {
		return nil, err
	}

	targets, err := s.resolveTargets(ctx, moveTargets)
	if err != nil {
		return nil, err
	}

	ctrlIDs := make([]elementid.ID, 0, len(moveTargets))
	for ctrl := range moveTargets {
		ctrlIDs = append(ctrlIDs, ctrl)
	}
	sessions := s.sessions.Ordered(ctrlIDs)
	if len(sessions) == 0 {
		return nil, poolerrors.New(poolerrors.CodeOperationNotSupported, "move resolved no controller sessions")
	}

	threadID := s.nextThreadID()
	source.RegisterMovingThread(threadID)

	lockedCtx, unlock := s.lockSessions(ctx, sessions)
	if err := s.runMovePhase(lockedCtx, sessions, targets); err != nil {
		unlock()
		source.ClearMovingThread()
		return nil, err
	}
	// Every participant is in motion from this point. Cache Moving before
	// the locks drop so concurrent reload/delete refuse immediately instead
	// of racing the first poll tick, and so an early poll can never report
	// termination against a stale On.
	marked := s.markMoving(lockedCtx, sourceRef, targets)
	unlock()
	for _, m := range marked {
		s.fireStateChange(m.elem, m.old)
	}

	motion := newMotion(sourceRef.ElementID())
	if s.hooks.MotionStarted != nil {
		s.hooks.MotionStarted()
	}
	if s.log != nil {
		s.log.WithField("correlation_id", motion.CorrelationID).
			WithField("source", sourceRef.ElementName()).
			WithField("controllers", len(sessions)).Info("motion started")
	}
	go s.pollMotors(source, sourceRef, targets, motion)
	return motion, nil
}

// stateCache is watchable plus the cached-state setter every Base-backed
// element provides.
type stateCache interface {
	watchable
	SetState(element.State) (old element.State, changed bool)
}

// markedState is one element whose cached state was flipped to Moving at
// motion start, remembered so the StateChange fires after the locks drop.
type markedState struct {
	elem watchable
	old  element.State
}

// markMoving flips every participating motor's cached state, and the
// source element's, to Moving. Must run under the session locks.
func (s *Scheduler) markMoving(ctx context.Context, sourceRef eventbus.ElementRef, targets []target) []markedState {
	var out []markedState
	for _, t := range targets {
		motor, err := s.reg.GetMotor(ctx, t.motorID)
		if err != nil {
			continue
		}
		if old, changed := motor.SetState(element.StateMoving); changed {
			out = append(out, markedState{elem: motor, old: old})
		}
	}
	if src, ok := sourceRef.(stateCache); ok {
		if old, changed := src.SetState(element.StateMoving); changed {
			out = append(out, markedState{elem: src, old: old})
		}
	}
	return out
}

func (s *Scheduler) resolveTargets(ctx context.Context, moveTargets element.MoveTargets) ([]target, error) {
	out := make([]target, 0)
	for ctrlID, byMotor := range moveTargets {
		for motorID, value := range byMotor {
			motor, err := s.reg.GetMotor(ctx, motorID)
			if err != nil {
				return nil, err
			}
			out = append(out, target{ctrlID: ctrlID, motorID: motorID, axis: motor.Axis(), value: value})
		}
	}
	return out, nil
}

// lockSessions acquires every session's serialization monitor in the
// ascending order the caller already sorted them in, returning a context
// carrying the whole chain (so nested Session method calls reenter rather
// than deadlock) and a single unlock releasing them in reverse.
func (s *Scheduler) lockSessions(ctx context.Context, sessions []*session.Session) (context.Context, func()) {
	unlocks := make([]poollock.Unlock, 0, len(sessions))
	for _, sess := range sessions {
		var unlock poollock.Unlock
		ctx, unlock = sess.Lock(ctx)
		unlocks = append(unlocks, unlock)
	}
	return ctx, func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

func (s *Scheduler) runMovePhase(ctx context.Context, sessions []*session.Session, targets []target) error {
	for _, sess := range sessions {
		if err := sess.PreStartAll(ctx); err != nil {
			return err
		}
	}
	for _, t := range targets {
		sess, ok := s.sessions.Get(t.ctrlID)
		if !ok {
			continue
		}
		ok2, err := sess.PreStartOne(ctx, t.axis, t.value)
		if err != nil {
			return err
		}
		if !ok2 {
			return poolerrors.New(poolerrors.CodeBadState, fmt.Sprintf("controller vetoed move of axis %d", t.axis))
		}
	}
	for _, t := range targets {
		sess, ok := s.sessions.Get(t.ctrlID)
		if !ok {
			continue
		}
		if err := sess.StartOne(ctx, t.axis, t.value); err != nil {
			return err
		}
	}
	for _, sess := range sessions {
		if err := sess.StartAll(ctx); err != nil {
			return err
		}
	}
	return nil
}

// pollMotors is the dedicated polling goroutine: it reads StateOne for every participating axis until none remain Moving,
// emitting PositionChange/StateChange whenever the cached value changes,
// then fires MotionEnded and clears the moving-thread registration.
func (s *Scheduler) pollMotors(source element.Moveable, sourceRef eventbus.ElementRef, targets []target, motion *Motion) {
	defer func() {
		source.ClearMovingThread()
		motion.finish(nil)
		if s.hooks.MotionCompleted != nil {
			s.hooks.MotionCompleted()
		}
	}()

	ctx := context.Background()
	for {
		if s.shuttingDown() {
			return
		}
		anyMoving := false
		for _, t := range targets {
			sess, ok := s.sessions.Get(t.ctrlID)
			if !ok {
				continue
			}
			s.limiterFor(t.ctrlID).Wait(ctx)

			motor, err := s.reg.GetMotor(ctx, t.motorID)
			if err != nil {
				continue
			}

			st, _, err := sess.StateOne(ctx, t.axis)
			if err != nil {
				if old, changed := motor.SetState(element.StateFault); changed {
					s.fireStateChange(motor, old)
				}
				continue
			}
			if old, changed := motor.SetState(st); changed {
				s.fireStateChange(motor, old)
			}
			if st == element.StateMoving {
				anyMoving = true
				continue
			}
			if pos, err := sess.ReadOne(ctx, t.axis); err == nil {
				s.firePositionChange(motor, pos)
			}
		}
		if !anyMoving {
			break
		}
	}

	// The source leaves Moving before MotionEnded goes out, preserving the
	// ordering guarantee for group/pseudo sources whose cached state the
	// per-motor probes above never touch.
	if src, ok := sourceRef.(stateCache); ok {
		if old, changed := src.SetState(element.StateOn); changed {
			s.fireStateChange(src, old)
		}
	}
	if hl, ok := sourceRef.(eventbus.HasListeners); ok {
		s.bus.Fire(hl, eventbus.Event{Kind: eventbus.KindMotionEnded, Source: sourceRef}, nil, true)
	}
}

// watchable is what the poll loops need from a participating element:
// listener fan-out, identity for the event's Source, and the cached state
// for the event's Current value.
type watchable interface {
	eventbus.HasListeners
	eventbus.ElementRef
	State() element.State
}

func (s *Scheduler) fireStateChange(e watchable, old element.State) {
	s.bus.Fire(e, eventbus.Event{Kind: eventbus.KindStateChange, Source: e, Old: old, Current: e.State()}, nil, true)
}

func (s *Scheduler) firePositionChange(e watchable, current any) {
	s.bus.Fire(e, eventbus.Event{Kind: eventbus.KindPositionChange, Source: e, Current: current}, nil, true)
}

// Abort is the non-blocking cancellation path: AbortOne is
// issued under the controller session's locks and returns immediately; the
// poll loop observes the resulting state transition on its next tick.
func (s *Scheduler) Abort(ctx context.Context, motor *element.Motor) error {
	sess, ok := s.sessions.Get(motor.ControllerID())
	if !ok {
		return poolerrors.NotFound("session", motor.ElementName())
	}
	return sess.AbortOne(ctx, motor.Axis())
}
