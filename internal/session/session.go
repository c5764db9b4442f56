// Package session implements the Controller Session: one live
// plug-in instance, its axis slots, and the lock-ordered dispatch that
// every element operation funnels through.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/r3e-network/pool-orchestrator/internal/element"
	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/pluginloader"
	"github.com/r3e-network/pool-orchestrator/internal/poolerrors"
	"github.com/r3e-network/pool-orchestrator/internal/poollock"
)

// State is the Controller Session lifecycle state.
type State string

const (
	StateConstructing State = "Constructing"
	StateOnline       State = "Online"
	StateOffline      State = "Offline"
	StateDestroyed    State = "Destroyed"
)

// Session owns one controller instance and its axis slots.
type Session struct {
	id           elementid.ID
	instanceName string
	className    string
	fileName     string
	languageTag  string
	maxDevice    int

	rec  *pluginloader.FileRecord
	lock *poollock.RMutex // the shared class lock

	mon poollock.RMutex // session serialization monitor

	mu        sync.Mutex
	state     State
	inst      *pluginloader.Instance
	slots     map[int]elementid.ID
	lastError string

	sim simulation
}

// New constructs a Session in the Constructing state. Call Instantiate to
// bring the plug-in object up before accepting devices. classLock is the
// loader's shared reentrant lock for className.
func New(id elementid.ID, instanceName, className, fileName string, rec *pluginloader.FileRecord, classLock *poollock.RMutex, maxDevice int) *Session {
	return &Session{
		id:           id,
		instanceName: instanceName,
		className:    className,
		fileName:     fileName,
		languageTag:  "javascript",
		maxDevice:    maxDevice,
		rec:          rec,
		lock:         classLock,
		state:        StateConstructing,
		slots:        make(map[int]elementid.ID),
	}
}

func (s *Session) ID() elementid.ID      { return s.id }
func (s *Session) InstanceName() string  { return s.instanceName }
func (s *Session) ClassName() string     { return s.className }
func (s *Session) FileName() string      { return s.fileName }
func (s *Session) MaxDevice() int        { return s.maxDevice }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Lock acquires the session's reentrant serialization monitor.
func (s *Session) Lock(ctx context.Context) (context.Context, poollock.Unlock) {
	return s.mon.Lock(ctx)
}

// Instantiate runs the plug-in constructor against the resolved property
// map, transitioning Constructing -> Online on success.
func (s *Session) Instantiate(ctx context.Context, properties map[string]any) error {
	ctx, unlock := s.Lock(ctx)
	defer unlock()

	inst, err := pluginloader.Instantiate(ctx, s.rec, s.className, s.instanceName, properties, s.lock)
	if err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.inst = inst
	s.state = StateOnline
	s.mu.Unlock()
	return nil
}

// AddDevice binds axis to elemID and invokes the plug-in's AddDevice(axis).
func (s *Session) AddDevice(ctx context.Context, axis int, elemID elementid.ID) error {
	if s.maxDevice != pluginloader.MaxDeviceUndefined && (axis < 1 || axis > s.maxDevice) {
		return poolerrors.AxisOutOfRange(axis, s.maxDevice)
	}
	ctx, unlock := s.Lock(ctx)
	defer unlock()

	if _, err := s.instance().Call(ctx, "AddDevice", axis); err != nil {
		return err
	}

	s.mu.Lock()
	s.slots[axis] = elemID
	s.mu.Unlock()
	return nil
}

// DeleteDevice is the inverse of AddDevice.
func (s *Session) DeleteDevice(ctx context.Context, axis int) error {
	ctx, unlock := s.Lock(ctx)
	defer unlock()

	if _, err := s.instance().Call(ctx, "DeleteDevice", axis); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.slots, axis)
	empty := len(s.slots) == 0
	s.mu.Unlock()

	if empty {
		s.mu.Lock()
		s.state = StateDestroyed
		s.mu.Unlock()
	}
	return nil
}

// AxisCount returns the number of currently bound axes.
func (s *Session) AxisCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// ElementForAxis resolves the element id bound to axis.
func (s *Session) ElementForAxis(axis int) (elementid.ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.slots[axis]
	return id, ok
}

func (s *Session) instance() *pluginloader.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inst
}

// StateOne reads the plug-in's per-axis machine state, mapping its string
// result onto element.State.
func (s *Session) StateOne(ctx context.Context, axis int) (element.State, string, error) {
	if _, ok := s.sim.get(axis); ok {
		return element.StateOn, "simulated", nil
	}
	ctx, unlock := s.Lock(ctx)
	defer unlock()

	result, err := s.instance().Call(ctx, "StateOne", axis)
	if err != nil {
		return element.StateFault, "", err
	}
	pair, ok := result.([]any)
	if !ok || len(pair) < 1 {
		return element.StateUnknown, "", poolerrors.PlugInError("StateOne returned an unexpected shape", nil)
	}
	st := element.State(fmt.Sprintf("%v", pair[0]))
	status := ""
	if len(pair) > 1 {
		status = fmt.Sprintf("%v", pair[1])
	}
	return st, status, nil
}

func (s *Session) ReadOne(ctx context.Context, axis int) (any, error) {
	if sa, ok := s.sim.get(axis); ok {
		if sa.value != nil {
			return sa.value, nil
		}
		return sa.position, nil
	}
	ctx, unlock := s.Lock(ctx)
	defer unlock()
	return s.instance().Call(ctx, "ReadOne", axis)
}

func (s *Session) WriteOne(ctx context.Context, axis int, value any) error {
	if sa, ok := s.sim.get(axis); ok {
		sa.value = value
		return nil
	}
	ctx, unlock := s.Lock(ctx)
	defer unlock()
	_, err := s.instance().Call(ctx, "WriteOne", axis, value)
	return err
}

func (s *Session) StartOne(ctx context.Context, axis int, target float64) error {
	if sa, ok := s.sim.get(axis); ok {
		sa.position = target
		return nil
	}
	ctx, unlock := s.Lock(ctx)
	defer unlock()
	_, err := s.instance().Call(ctx, "StartOne", axis, target)
	return err
}

func (s *Session) StartOneCT(ctx context.Context, axis int) error {
	ctx, unlock := s.Lock(ctx)
	defer unlock()
	_, err := s.instance().Call(ctx, "StartOneCT", axis)
	return err
}

func (s *Session) LoadOne(ctx context.Context, axis int, value float64) error {
	ctx, unlock := s.Lock(ctx)
	defer unlock()
	_, err := s.instance().Call(ctx, "LoadOne", axis, value)
	return err
}

func (s *Session) AbortOne(ctx context.Context, axis int) error {
	if _, ok := s.sim.get(axis); ok {
		return nil
	}
	ctx, unlock := s.Lock(ctx)
	defer unlock()
	_, err := s.instance().Call(ctx, "AbortOne", axis)
	return err
}

// PreStartOne returns false when the plug-in vetoes the move for axis.
func (s *Session) PreStartOne(ctx context.Context, axis int, target float64) (bool, error) {
	ctx, unlock := s.Lock(ctx)
	defer unlock()
	result, err := s.instance().Call(ctx, "PreStartOne", axis, target)
	if err != nil {
		return false, err
	}
	ok, _ := result.(bool)
	return ok, nil
}

func (s *Session) callAll(ctx context.Context, method string) error {
	ctx, unlock := s.Lock(ctx)
	defer unlock()
	if !s.instance().HasMethod(method) {
		return nil
	}
	_, err := s.instance().Call(ctx, method)
	return err
}

func (s *Session) PreStartAll(ctx context.Context) error   { return s.callAll(ctx, "PreStartAll") }
func (s *Session) StartAll(ctx context.Context) error      { return s.callAll(ctx, "StartAll") }
func (s *Session) PreStartAllCT(ctx context.Context) error { return s.callAll(ctx, "PreStartAllCT") }
func (s *Session) StartAllCT(ctx context.Context) error    { return s.callAll(ctx, "StartAllCT") }
func (s *Session) PreLoadAll(ctx context.Context) error    { return s.callAll(ctx, "PreLoadAll") }
func (s *Session) LoadAll(ctx context.Context) error        { return s.callAll(ctx, "LoadAll") }

func (s *Session) GetPar(ctx context.Context, axis int, name string) (any, error) {
	ctx, unlock := s.Lock(ctx)
	defer unlock()
	return s.instance().Call(ctx, "GetPar", axis, name)
}

func (s *Session) SetPar(ctx context.Context, axis int, name string, value any) error {
	ctx, unlock := s.Lock(ctx)
	defer unlock()
	_, err := s.instance().Call(ctx, "SetPar", axis, name, value)
	return err
}

func (s *Session) GetExtraAttributePar(ctx context.Context, axis int, name string) (any, error) {
	ctx, unlock := s.Lock(ctx)
	defer unlock()
	return s.instance().Call(ctx, "GetExtraAttributePar", axis, name)
}

func (s *Session) SetExtraAttributePar(ctx context.Context, axis int, name string, value any) error {
	ctx, unlock := s.Lock(ctx)
	defer unlock()
	_, err := s.instance().Call(ctx, "SetExtraAttributePar", axis, name, value)
	return err
}

func (s *Session) SendToCtrl(ctx context.Context, data string) (string, error) {
	ctx, unlock := s.Lock(ctx)
	defer unlock()
	result, err := s.instance().Call(ctx, "SendToCtrl", data)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", result), nil
}

// GoOffline transitions the session to Offline ahead of a hot reload
//: the plug-in pointer is cleared without touching
// axis slots, which are restored in ReOnline.
func (s *Session) GoOffline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inst = nil
	s.state = StateOffline
}

// ReOnline re-instantiates the plug-in against a reloaded file record and
// re-runs AddDevice for every previously bound axis.
func (s *Session) ReOnline(ctx context.Context, rec *pluginloader.FileRecord, properties map[string]any) error {
	s.mu.Lock()
	s.rec = rec
	axes := make([]int, 0, len(s.slots))
	for axis := range s.slots {
		axes = append(axes, axis)
	}
	s.mu.Unlock()

	if err := s.Instantiate(ctx, properties); err != nil {
		return err
	}
	for _, axis := range axes {
		if _, err := s.instance().Call(ctx, "AddDevice", axis); err != nil {
			return err
		}
	}
	return nil
}

// Call invokes an arbitrary ABI operation under the session+class locks,
// for callers outside this package that need an operation with no named
// wrapper (the pseudo composition layer's CalcPhysical/CalcPseudo family).
func (s *Session) Call(ctx context.Context, method string, args ...any) (any, error) {
	ctx, unlock := s.Lock(ctx)
	defer unlock()
	return s.instance().Call(ctx, method, args...)
}

// HasMethod reports whether the live plug-in object implements method,
// used to probe for the optional CalcAllPhysical/CalcAllPseudo operations.
func (s *Session) HasMethod(method string) bool {
	return s.instance().HasMethod(method)
}

func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}
