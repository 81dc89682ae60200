// Package errors is the error taxonomy of a reconciliation run. Every failure
// that leaves the procedure is an *Error whose Type decides the exit status.
package errors

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// ErrorType is the failure category of a run
type ErrorType int

const (
	// ErrorTypeConfig - missing or invalid configuration, bad flags
	ErrorTypeConfig ErrorType = iota
	// ErrorTypeConnectivity - the store cannot be reached
	ErrorTypeConnectivity
	// ErrorTypeConstraint - foreign key or uniqueness violation raised by the store
	ErrorTypeConstraint
	// ErrorTypeDataAssumption - the data lacks a shape a step relies on
	ErrorTypeDataAssumption
	// ErrorTypeConcurrency - another writer holds the lock or the store reported contention
	ErrorTypeConcurrency
	// ErrorTypeDatabase - any other query failure
	ErrorTypeDatabase
	// ErrorTypeValidation - post-run invariant checks that did not hold
	ErrorTypeValidation
	// ErrorTypeInternal - unexpected program state
	ErrorTypeInternal
)

var typeInfo = map[ErrorType]struct {
	label    string
	exitCode int
}{
	ErrorTypeConfig:         {"CONFIG", 2},
	ErrorTypeConnectivity:   {"CONNECTIVITY", 3},
	ErrorTypeConstraint:     {"CONSTRAINT_VIOLATION", 4},
	ErrorTypeDataAssumption: {"DATA_ASSUMPTION_VIOLATION", 5},
	ErrorTypeConcurrency:    {"CONCURRENCY", 6},
	ErrorTypeValidation:     {"VALIDATION", 7},
	ErrorTypeDatabase:       {"DATABASE", 1},
	ErrorTypeInternal:       {"INTERNAL", 1},
}

// String returns the upper-case label of the type
func (t ErrorType) String() string {
	if info, ok := typeInfo[t]; ok {
		return info.label
	}
	return "UNKNOWN"
}

// ExitCode is the process status for a failure of this type
func (t ErrorType) ExitCode() int {
	if info, ok := typeInfo[t]; ok {
		return info.exitCode
	}
	return 1
}

// Severity ranks how much of the run an error invalidates
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	// SeverityCritical aborts the run and rolls the transaction back
	SeverityCritical
)

var severityLabels = [...]string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityLabels) {
		return "UNKNOWN"
	}
	return severityLabels[s]
}

// Error is a classified failure with optional key/value context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error target of the same Type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Type == t.Type
}

// WithContext records key on the error and returns it for chaining
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Fields returns the context plus the error type, shaped for structured loggers
func (e *Error) Fields() map[string]interface{} {
	fields := make(map[string]interface{}, len(e.Context)+1)
	for k, v := range e.Context {
		fields[k] = v
	}
	fields["error_type"] = e.Type.String()
	return fields
}

// IsFatal reports whether the error aborts the run
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// DetailedString renders the error with sorted context and the capture stack
func (e *Error) DetailedString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] [%s] %s\n", e.Severity, e.Type, e.Message)

	if e.Cause != nil {
		fmt.Fprintf(&sb, "Caused by: %v\n", e.Cause)
	}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("Context:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %v\n", k, e.Context[k])
		}
	}

	if e.StackTrace != "" {
		sb.WriteString("Stack trace:\n")
		sb.WriteString(e.StackTrace)
	}
	return sb.String()
}

const maxStackDepth = 10

// callers renders up to maxStackDepth frames above the constructor that called it
func callers(skip int) string {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return ""
	}

	var sb strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		fmt.Fprintf(&sb, "  %s:%d %s\n", f.File, f.Line, f.Function)
		if !more {
			break
		}
	}
	return sb.String()
}

func build(errType ErrorType, severity Severity, message string, cause error) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      cause,
		Context:    make(map[string]interface{}),
		StackTrace: callers(3),
	}
}

// New creates an error without a cause
func New(errType ErrorType, severity Severity, message string) *Error {
	return build(errType, severity, message, nil)
}

// Wrap classifies err; a nil err stays nil
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}
	return build(errType, severity, message, err)
}

func ConfigError(message string) *Error {
	return build(ErrorTypeConfig, SeverityCritical, message, nil)
}

func ConfigErrorf(format string, args ...interface{}) *Error {
	return build(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...), nil)
}

// ConnectivityError wraps a failure to reach the store
func ConnectivityError(err error, message string) *Error {
	return build(ErrorTypeConnectivity, SeverityCritical, message, err)
}

// ConstraintViolation wraps a foreign key or uniqueness violation
func ConstraintViolation(err error, message string) *Error {
	return build(ErrorTypeConstraint, SeverityCritical, message, err)
}

// DataAssumptionErrorf reports rows that break an assumption of a step
func DataAssumptionErrorf(format string, args ...interface{}) *Error {
	return build(ErrorTypeDataAssumption, SeverityCritical, fmt.Sprintf(format, args...), nil)
}

// ConcurrencyError reports a held lock or contention; err may be nil
func ConcurrencyError(err error, message string) *Error {
	return build(ErrorTypeConcurrency, SeverityCritical, message, err)
}

func DatabaseError(err error, message string) *Error {
	return build(ErrorTypeDatabase, SeverityCritical, message, err)
}

func DatabaseErrorf(err error, format string, args ...interface{}) *Error {
	return build(ErrorTypeDatabase, SeverityCritical, fmt.Sprintf(format, args...), err)
}

// ValidationErrorf reports failed invariant checks
func ValidationErrorf(format string, args ...interface{}) *Error {
	return build(ErrorTypeValidation, SeverityHigh, fmt.Sprintf(format, args...), nil)
}

func InternalErrorf(format string, args ...interface{}) *Error {
	return build(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...), nil)
}

// As returns the first *Error in the chain of err
func As(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// IsFatal reports whether err carries a critical *Error
func IsFatal(err error) bool {
	e, ok := As(err)
	return ok && e.IsFatal()
}

// GetType returns the type of the first *Error in the chain, or Internal
func GetType(err error) ErrorType {
	if e, ok := As(err); ok {
		return e.Type
	}
	return ErrorTypeInternal
}

// IsType reports whether err carries an *Error of the given type
func IsType(err error, errType ErrorType) bool {
	e, ok := As(err)
	return ok && e.Type == errType
}

// ExitCode maps err to a process status: 0 for nil, 1 for unclassified errors
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return GetType(err).ExitCode()
}
