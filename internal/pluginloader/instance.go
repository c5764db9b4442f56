package pluginloader

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/r3e-network/pool-orchestrator/internal/poolerrors"
	"github.com/r3e-network/pool-orchestrator/internal/poollock"
)

// Instance is one live controller object: a class's JS prototype bound to
// an instance name and property set via its `construct` factory. All
// calls into it go through Call, which serializes on the class's
// reentrant lock.
type Instance struct {
	ClassName    string
	InstanceName string

	vm   *goja.Runtime
	obj  *goja.Object
	lock *poollock.RMutex
}

// Instantiate constructs a new Instance of className from rec, passing
// instanceName and properties to the class's `construct(instanceName,
// properties)` factory.
// The construct call runs under lock since it touches the shared
// per-file goja runtime, same as every other ABI operation.
func Instantiate(ctx context.Context, rec *FileRecord, className, instanceName string, properties map[string]any, lock *poollock.RMutex) (*Instance, error) {
	_, unlock := lock.Lock(ctx)
	defer unlock()

	classVal, vm, ok := rec.classObject(className)
	if !ok {
		return nil, poolerrors.New(poolerrors.CodeClassMissingRequiredSymbol, fmt.Sprintf("class %q not found in %q", className, rec.FileName))
	}
	classObj, ok := classVal.(*goja.Object)
	if !ok {
		return nil, poolerrors.New(poolerrors.CodeClassMissingRequiredSymbol, fmt.Sprintf("class %q is not an object", className))
	}

	construct, ok := goja.AssertFunction(classObj.Get("construct"))
	if !ok {
		return nil, poolerrors.New(poolerrors.CodeClassMissingRequiredSymbol, fmt.Sprintf("class %q missing construct()", className))
	}

	result, err := construct(classObj, vm.ToValue(instanceName), vm.ToValue(properties))
	if err != nil {
		return nil, poolerrors.PlugInError(fmt.Sprintf("%s.construct(%s)", className, instanceName), err)
	}
	instObj, ok := result.(*goja.Object)
	if !ok {
		return nil, poolerrors.PlugInError(fmt.Sprintf("%s.construct(%s) did not return an object", className, instanceName), nil)
	}

	return &Instance{
		ClassName:    className,
		InstanceName: instanceName,
		vm:           vm,
		obj:          instObj,
		lock:         lock,
	}, nil
}

// Call invokes method on the instance under the class lock, which is
// reentrant and shared by every Instance constructed from the same
// class. A missing method is reported as CodeOperationNotSupported so
// callers can distinguish "controller doesn't implement this op" (e.g. an
// optional CalcAllPhysical) from a genuine plug-in error.
func (inst *Instance) Call(ctx context.Context, method string, args ...any) (any, error) {
	_, unlock := inst.lock.Lock(ctx)
	defer unlock()

	fn, ok := goja.AssertFunction(inst.obj.Get(method))
	if !ok {
		return nil, poolerrors.New(poolerrors.CodeOperationNotSupported, fmt.Sprintf("%s.%s not implemented", inst.ClassName, method))
	}

	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = inst.vm.ToValue(a)
	}

	result, err := fn(inst.obj, jsArgs...)
	if err != nil {
		return nil, poolerrors.PlugInError(fmt.Sprintf("%s.%s(%s)", inst.ClassName, method, inst.InstanceName), err)
	}
	if goja.IsUndefined(result) || result == nil {
		return nil, nil
	}
	return result.Export(), nil
}

// HasMethod reports whether the instance implements method, used to probe
// for optional ABI operations (CalcAllPhysical, CalcAllPseudo) without
// paying the cost of a failed Call.
func (inst *Instance) HasMethod(method string) bool {
	_, ok := goja.AssertFunction(inst.obj.Get(method))
	return ok
}
