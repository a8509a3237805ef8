// Package codes provides the adapter's typed error kinds.
package codes

import "fmt"

// Kind categorizes an AdapterError the way the debug adapter protocol
// needs to report it back to the client.
type Kind string

const (
	PathFormatUnsupported     Kind = "pathFormatUnsupported"
	MissingAttachPort         Kind = "missingAttachPort"
	StackFrameNotValid        Kind = "stackFrameNotValid"
	RuntimeNotConnected       Kind = "runtimeNotConnected"
	SourceRequestIllegalHandle Kind = "sourceRequestIllegalHandle"
	SetValueNotSupported      Kind = "setValueNotSupported"
	EvaluateFailed            Kind = "evaluateFailed"
	BreakpointIgnoredNoMapping Kind = "breakpointIgnoredNoMapping"
	BreakpointIgnoredNoTargetPath Kind = "breakpointIgnoredNoTargetPath"
	BreakpointsTimeout        Kind = "breakpointsTimeout"
	InvalidHitCondition       Kind = "invalidHitCondition"
)

// AdapterError is the typed error the core components return for the
// Kinds above; it carries the Kind the façade needs to pick a DAP error
// response and an optional wrapped cause for logging.
type AdapterError struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AdapterError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *AdapterError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match on Kind alone.
func (e *AdapterError) Is(target error) bool {
	t, ok := target.(*AdapterError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an AdapterError with no cause.
func New(kind Kind, message string) *AdapterError {
	return &AdapterError{Kind: kind, Message: message}
}

// Newf creates an AdapterError with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *AdapterError {
	return &AdapterError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an AdapterError that carries an underlying cause.
func Wrap(err error, kind Kind, message string) *AdapterError {
	return &AdapterError{Kind: kind, Message: message, Cause: err}
}

// Wrapf creates an AdapterError with a formatted message and a cause.
func Wrapf(err error, kind Kind, format string, args ...interface{}) *AdapterError {
	return &AdapterError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Is reports whether err is an AdapterError of the given Kind.
func Is(err error, kind Kind) bool {
	ae, ok := err.(*AdapterError)
	return ok && ae.Kind == kind
}

// KindOf returns the Kind of err, or the empty Kind if err is not an
// AdapterError.
func KindOf(err error) Kind {
	if ae, ok := err.(*AdapterError); ok {
		return ae.Kind
	}
	return ""
}
