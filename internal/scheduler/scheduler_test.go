package scheduler_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/pool-orchestrator/internal/element"
	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/eventbus"
	"github.com/r3e-network/pool-orchestrator/internal/pluginloader"
	"github.com/r3e-network/pool-orchestrator/internal/registry"
	"github.com/r3e-network/pool-orchestrator/internal/scheduler"
	"github.com/r3e-network/pool-orchestrator/internal/session"
)

// slowMotorSrc reports Moving for a few state polls after StartOne before
// settling at the target, which is enough to exercise the poll loop
// without wall-clock coupling.
const slowMotorSrc = `
PoolControllerClasses = [{
	name: "SlowMotor",
	category: "Motor",
	maxDevice: 16,
	construct: function(instance, props) {
		var pos = {}, countdown = {};
		return {
			AddDevice: function(a) { pos[a] = 0; countdown[a] = 0; },
			DeleteDevice: function(a) { delete pos[a]; },
			StateOne: function(a) {
				if (countdown[a] > 0) { countdown[a]--; return ["Moving", "in motion"]; }
				return ["On", ""];
			},
			ReadOne: function(a) { return pos[a]; },
			PreStartOne: function(a, t) { return true; },
			StartOne: function(a, t) { pos[a] = t; countdown[a] = 3; },
			AbortOne: function(a) { countdown[a] = 0; }
		};
	}
}];
`

const uxTimerSrc = `
PoolControllerClasses = [{
	name: "UxTimer",
	category: "CounterTimer",
	maxDevice: 16,
	construct: function(instance, props) {
		var start = {}, dur = {};
		return {
			AddDevice: function(a) {},
			DeleteDevice: function(a) { delete dur[a]; },
			LoadOne: function(a, v) { dur[a] = v * 1000; },
			StartOneCT: function(a) { start[a] = Date.now(); },
			StateOne: function(a) {
				if (start[a] === undefined) { return ["On", ""]; }
				var d = (dur[a] === undefined) ? Infinity : dur[a];
				return [(Date.now() - start[a] < d) ? "Moving" : "On", ""];
			},
			ReadOne: function(a) {
				if (start[a] === undefined) { return 0; }
				var el = (Date.now() - start[a]) / 1000;
				var max = (dur[a] === undefined) ? Infinity : dur[a] / 1000;
				return el < max ? el : max;
			},
			AbortOne: function(a) { dur[a] = 0; }
		};
	}
}];
`

type testRig struct {
	reg      *registry.Registry
	sessions *session.Manager
	bus      *eventbus.Bus
	sched    *scheduler.Scheduler
	loader   *pluginloader.Loader
}

func newRig(t *testing.T, files map[string]string) *testRig {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	loader, err := pluginloader.New([]string{dir}, 16, nil)
	require.NoError(t, err)

	reg := registry.New(elementid.NewAllocator())
	sessions := session.NewManager()
	bus := eventbus.New(nil)
	sched := scheduler.New(reg, sessions, bus, scheduler.Config{
		DefaultPollInterval: time.Millisecond,
		MaxInactive:         time.Minute,
	}, nil)
	return &testRig{reg: reg, sessions: sessions, bus: bus, sched: sched, loader: loader}
}

func (r *testRig) newSession(t *testing.T, file string, category pluginloader.Category, class, instance string) *session.Session {
	t.Helper()
	ctx := context.Background()
	rec, err := r.loader.Discover(file, category)
	require.NoError(t, err)
	id := r.reg.Allocator().Next(elementid.SpacePublic)
	s := session.New(id, instance, class, file, rec, r.loader.ClassLock(class), 16)
	require.NoError(t, s.Instantiate(ctx, nil))
	r.sessions.Add(s)
	return s
}

func (r *testRig) newMotor(t *testing.T, s *session.Session, name string, axis int) *element.Motor {
	t.Helper()
	ctx := context.Background()
	id := r.reg.Allocator().Next(elementid.SpacePublic)
	m := element.NewMotor(id, name, s.ID(), axis)
	require.NoError(t, s.AddDevice(ctx, axis, id))
	require.NoError(t, r.reg.Add(ctx, m))
	return m
}

func (r *testRig) newCounter(t *testing.T, s *session.Session, name string, axis int) *element.CounterTimer {
	t.Helper()
	ctx := context.Background()
	id := r.reg.Allocator().Next(elementid.SpacePublic)
	ct := element.NewCounterTimer(id, name, s.ID(), axis)
	ct.SetReader(func() (float64, error) {
		v, err := s.ReadOne(context.Background(), axis)
		if err != nil {
			return 0, err
		}
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		}
		return 0, nil
	})
	require.NoError(t, s.AddDevice(ctx, axis, id))
	require.NoError(t, r.reg.Add(ctx, ct))
	return ct
}

// recorder collects event kinds in delivery order.
type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recorder) listener() eventbus.Listener {
	return eventbus.ListenerFunc(func(stack *eventbus.Stack) {
		r.mu.Lock()
		r.events = append(r.events, stack.Head())
		r.mu.Unlock()
	})
}

func (r *recorder) kinds() []eventbus.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]eventbus.Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *recorder) count(kind eventbus.Kind) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func TestMoveTerminatesAndFiresMotionEndedOnce(t *testing.T) {
	rig := newRig(t, map[string]string{"slow_motor.js": slowMotorSrc})
	sess := rig.newSession(t, "slow_motor.js", pluginloader.CategoryMotor, "SlowMotor", "sm01")
	motor := rig.newMotor(t, sess, "mot01", 1)

	rec := &recorder{}
	motor.AddListener(rec.listener())

	motion, err := rig.sched.Move(context.Background(), motor, motor, []float64{5})
	require.NoError(t, err)

	// The cached state flips to Moving at motion start, not at the first
	// poll tick, so concurrent reload/delete refuse right away.
	assert.Equal(t, element.StateMoving, motor.State())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, motion.Wait(ctx))

	assert.NotEqual(t, element.StateMoving, motor.State())
	assert.Equal(t, 1, rec.count(eventbus.KindMotionEnded))

	_, active := motor.MovingThread()
	assert.False(t, active, "moving-thread registration must be cleared")

	v, err := sess.ReadOne(context.Background(), 1)
	require.NoError(t, err)
	assert.EqualValues(t, 5, v)
}

func TestStateChangeLeavingMovingPrecedesMotionEnded(t *testing.T) {
	rig := newRig(t, map[string]string{"slow_motor.js": slowMotorSrc})
	sess := rig.newSession(t, "slow_motor.js", pluginloader.CategoryMotor, "SlowMotor", "sm01")
	motor := rig.newMotor(t, sess, "mot01", 1)

	rec := &recorder{}
	motor.AddListener(rec.listener())

	motion, err := rig.sched.Move(context.Background(), motor, motor, []float64{1})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, motion.Wait(ctx))

	leftMovingAt, endedAt := -1, -1
	rec.mu.Lock()
	for i, e := range rec.events {
		if e.Kind == eventbus.KindStateChange && e.Old == element.StateMoving && e.Current != element.StateMoving && leftMovingAt < 0 {
			leftMovingAt = i
		}
		if e.Kind == eventbus.KindMotionEnded {
			endedAt = i
		}
	}
	rec.mu.Unlock()

	require.GreaterOrEqual(t, leftMovingAt, 0, "no StateChange leaving Moving observed")
	require.GreaterOrEqual(t, endedAt, 0, "no MotionEnded observed")
	assert.Less(t, leftMovingAt, endedAt)
}

func TestAbortObservedOnNextTick(t *testing.T) {
	rig := newRig(t, map[string]string{"slow_motor.js": slowMotorSrc})
	sess := rig.newSession(t, "slow_motor.js", pluginloader.CategoryMotor, "SlowMotor", "sm01")
	motor := rig.newMotor(t, sess, "mot01", 1)

	motion, err := rig.sched.Move(context.Background(), motor, motor, []float64{5})
	require.NoError(t, err)
	require.NoError(t, rig.sched.Abort(context.Background(), motor))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, motion.Wait(ctx))
}

func TestAcquisitionUnixTimerScenario(t *testing.T) {
	rig := newRig(t, map[string]string{"ux_timer.js": uxTimerSrc})
	sess := rig.newSession(t, "ux_timer.js", pluginloader.CategoryCounterTimer, "UxTimer", "t1")
	ct := rig.newCounter(t, sess, "timer01", 1)

	ctx := context.Background()
	groupID := rig.reg.Allocator().Next(elementid.SpacePublic)
	group := element.NewMeasurementGroup(groupID, "mg01", []elementid.ID{ct.ElementID()})
	require.NoError(t, rig.reg.Add(ctx, group))

	motion, err := rig.sched.Acquire(ctx, group, 0.15)
	require.NoError(t, err)

	// Group and channel are cached Moving from acquisition start.
	assert.Equal(t, element.StateMoving, group.State())
	assert.Equal(t, element.StateMoving, ct.State())

	// While integrating, the channel reports Moving and a growing value.
	time.Sleep(50 * time.Millisecond)
	st, _, err := sess.StateOne(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, element.StateMoving, st)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, motion.Wait(waitCtx))

	st, _, err = sess.StateOne(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, element.StateOn, st)

	v, err := ct.ReadOne()
	require.NoError(t, err)
	assert.InDelta(t, 0.15, v, 0.02)
}

func TestMasterChannelStopsOthers(t *testing.T) {
	rig := newRig(t, map[string]string{"ux_timer.js": uxTimerSrc})
	sess := rig.newSession(t, "ux_timer.js", pluginloader.CategoryCounterTimer, "UxTimer", "t1")
	master := rig.newCounter(t, sess, "master", 1)
	slave := rig.newCounter(t, sess, "slave", 2)

	ctx := context.Background()
	groupID := rig.reg.Allocator().Next(elementid.SpacePublic)
	group := element.NewMeasurementGroup(groupID, "mg01", []elementid.ID{master.ElementID(), slave.ElementID()})
	require.NoError(t, rig.reg.Add(ctx, group))

	// The master integrates 0.1s; the slave free-runs. The master's
	// termination must abort the slave.
	motion, err := rig.sched.Acquire(ctx, group, 0.1)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, motion.Wait(waitCtx))

	st, _, err := sess.StateOne(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, element.StateOn, st)
}
