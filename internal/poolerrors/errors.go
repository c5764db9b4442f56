// Package poolerrors implements the error taxonomy from the orchestrator
// design: every exported operation in the core returns one of these typed
// errors instead of an opaque error string, so callers can switch on Code.
package poolerrors

import "fmt"

// Code identifies one error kind from the taxonomy.
type Code string

const (
	// Lookup
	CodeNotFound      Code = "NOT_FOUND"
	CodeWrongType     Code = "WRONG_TYPE"
	CodeAmbiguousName Code = "AMBIGUOUS_NAME"

	// Configuration
	CodeMissingProperty       Code = "MISSING_PROPERTY"
	CodeTypePropertyMismatch  Code = "TYPE_PROPERTY_MISMATCH"
	CodeInvalidPropertyDefault Code = "INVALID_PROPERTY_DEFAULT"
	CodeUnknownPropertyType   Code = "UNKNOWN_PROPERTY_TYPE"
	CodeUnknownProperty       Code = "UNKNOWN_PROPERTY"

	// Loader
	CodeControllerFileNotFound     Code = "CONTROLLER_FILE_NOT_FOUND"
	CodeLoadFailure                Code = "LOAD_FAILURE"
	CodeClassMissingRequiredSymbol Code = "CLASS_MISSING_REQUIRED_SYMBOL"
	CodeInvalidExtraAttributeDecl  Code = "INVALID_EXTRA_ATTRIBUTE_DECL"

	// Lifecycle
	CodeElementExists           Code = "ELEMENT_EXISTS"
	CodeElementIDExists         Code = "ELEMENT_ID_EXISTS"
	CodeParentInstrumentMissing Code = "PARENT_INSTRUMENT_MISSING"
	CodeInvalidInstrumentName   Code = "INVALID_INSTRUMENT_NAME"
	CodeInvalidInstrumentType   Code = "INVALID_INSTRUMENT_TYPE"
	CodeReferencedByDependents  Code = "REFERENCED_BY_DEPENDENTS"

	// Operation
	CodeBusyMoving           Code = "BUSY_MOVING"
	CodeAxisOutOfRange       Code = "AXIS_OUT_OF_RANGE"
	CodeBadState             Code = "BAD_STATE"
	CodeAmbiguousMove        Code = "AMBIGUOUS_MOVE"
	CodeOperationNotSupported Code = "OPERATION_NOT_SUPPORTED"

	// Plug-in
	CodePlugInError Code = "PLUGIN_ERROR"
)

// PoolError is the structured error type returned by the core.
type PoolError struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *PoolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PoolError) Unwrap() error { return e.Err }

// WithDetail attaches one key/value of diagnostic context and returns the
// receiver for chaining.
func (e *PoolError) WithDetail(key string, value any) *PoolError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a PoolError with no wrapped cause.
func New(code Code, message string) *PoolError {
	return &PoolError{Code: code, Message: message}
}

// Wrap creates a PoolError around an existing error.
func Wrap(code Code, message string, err error) *PoolError {
	return &PoolError{Code: code, Message: message, Err: err}
}

// Is reports whether err carries the given code, unwrapping as needed.
func Is(err error, code Code) bool {
	var pe *PoolError
	for err != nil {
		if p, ok := err.(*PoolError); ok {
			pe = p
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return pe != nil && pe.Code == code
}

// Convenience constructors, one per taxonomy entry used frequently enough
// to warrant a named helper.

func NotFound(kind, id string) *PoolError {
	return New(CodeNotFound, fmt.Sprintf("%s %q not found", kind, id)).WithDetail("kind", kind).WithDetail("id", id)
}

func WrongType(id string, want, got string) *PoolError {
	return New(CodeWrongType, fmt.Sprintf("element %q is %s, not %s", id, got, want)).
		WithDetail("want", want).WithDetail("got", got)
}

func AmbiguousName(name string) *PoolError {
	return New(CodeAmbiguousName, fmt.Sprintf("name %q is ambiguous", name))
}

func MissingProperty(instance, prop string) *PoolError {
	return New(CodeMissingProperty, fmt.Sprintf("property %q missing for %q", prop, instance)).
		WithDetail("instance", instance).WithDetail("property", prop)
}

func TypePropertyMismatch(prop, wantType string) *PoolError {
	return New(CodeTypePropertyMismatch, fmt.Sprintf("property %q expects type %s", prop, wantType)).
		WithDetail("property", prop).WithDetail("type", wantType)
}

func ControllerFileNotFound(file string) *PoolError {
	return New(CodeControllerFileNotFound, fmt.Sprintf("controller file %q not found on pool_path", file)).
		WithDetail("file", file)
}

func LoadFailure(file string, cause error) *PoolError {
	return Wrap(CodeLoadFailure, fmt.Sprintf("failed to load controller file %q", file), cause).
		WithDetail("file", file)
}

func BusyMoving(id string) *PoolError {
	return New(CodeBusyMoving, fmt.Sprintf("element %q is moving", id)).WithDetail("id", id)
}

func AxisOutOfRange(axis, maxDevice int) *PoolError {
	return New(CodeAxisOutOfRange, fmt.Sprintf("axis %d exceeds MaxDevice %d", axis, maxDevice)).
		WithDetail("axis", axis).WithDetail("max_device", maxDevice)
}

func AmbiguousMove(motorID string) *PoolError {
	return New(CodeAmbiguousMove, fmt.Sprintf("conflicting targets for motor %q", motorID)).
		WithDetail("motor_id", motorID)
}

func PlugInError(description string, cause error) *PoolError {
	return Wrap(CodePlugInError, description, cause)
}
