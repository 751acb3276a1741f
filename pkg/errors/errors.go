// Package errors provides the structured error taxonomy used across the
// adapter, cache and traversal layers: a closed set of error codes with
// retryability and component/operation context, instead of ad hoc
// fmt.Errorf chains.
package errors

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Code identifies which of the traversal library's error kinds an Error
// represents. The set is closed: adapters and the cache/engine only ever
// construct errors with one of these codes.
type Code string

const (
	// CodeSourceUnavailable indicates a transient failure to read the
	// underlying source (permission, transport, throttling).
	CodeSourceUnavailable Code = "SOURCE_UNAVAILABLE"
	// CodeNodeGone indicates the node disappeared between discovery and
	// enumeration.
	CodeNodeGone Code = "NODE_GONE"
	// CodeCancelled indicates cooperative cancellation. Never classified
	// as a per-node error; always terminates the traversal.
	CodeCancelled Code = "CANCELLED"
	// CodeConfigurationError indicates invalid construction parameters.
	// Raised only at construction time; the adapter is never usable.
	CodeConfigurationError Code = "CONFIGURATION_ERROR"
	// CodeInternalInvariant indicates a bug: an invariant the
	// implementation guarantees was violated. Must be surfaced, never
	// swallowed.
	CodeInternalInvariant Code = "INTERNAL_INVARIANT"
)

// Error is the structured error type returned by adapters, the cache
// adapter and the traversal engine.
type Error struct {
	Code      Code
	Component string
	Operation string
	Message   string
	Context   map[string]string
	Cause     error
	Retryable bool
	Timestamp time.Time
	Stack     string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is compares error codes so errors.Is(err, New(CodeNodeGone, ...)) works
// regardless of message or context.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// WithContext returns a copy of the error with a context key/value attached.
func (e *Error) WithContext(key, value string) *Error {
	clone := *e
	clone.Context = make(map[string]string, len(e.Context)+1)
	for k, v := range e.Context {
		clone.Context[k] = v
	}
	clone.Context[key] = value
	return &clone
}

// String renders a detailed, loggable representation.
func (e *Error) String() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}
	return fmt.Sprintf("Error{%s}", strings.Join(parts, ", "))
}

// New creates an Error of the given code with default retryability.
func New(code Code, component, operation, message string) *Error {
	return &Error{
		Code:      code,
		Component: component,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]string),
		Retryable: defaultRetryable(code),
		Timestamp: time.Now(),
	}
}

// Wrap creates an Error of the given code wrapping an existing cause.
func Wrap(code Code, component, operation string, cause error) *Error {
	err := New(code, component, operation, cause.Error())
	err.Cause = cause
	return err
}

// WithStack attaches a captured stack trace, used for CodeInternalInvariant
// errors so the first occurrence is diagnosable.
func (e *Error) WithStack() *Error {
	clone := *e
	clone.Stack = CaptureStack(1)
	return &clone
}

func defaultRetryable(code Code) bool {
	return code == CodeSourceUnavailable
}

// Is reports whether err carries the given code, unwrapping through any
// wrapper chain via errors.As semantics.
func Is(err error, code Code) bool {
	var e *Error
	for err != nil {
		if as, ok := err.(*Error); ok {
			e = as
			break
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return e != nil && e.Code == code
}

// CaptureStack captures the current stack trace, skipping the given number
// of additional frames beyond this function's own caller.
func CaptureStack(skip int) string {
	const depth = 32
	pcs := make([]uintptr, depth)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&sb, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return sb.String()
}
