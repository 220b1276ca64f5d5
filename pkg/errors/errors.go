// Package errors implements the error taxonomy of the risk daemon: every
// error raised inside the core carries a Class that tells callers, without
// type-switching on the underlying cause, whether it should be retried,
// surfaced as a critical alert, or treated as a fatal startup condition.
package errors

import (
	"fmt"
	"runtime"
	"time"
)

// Class is the taxonomy from the enforcement design: each class dictates
// how the dispatcher and enforcement engine react to an error.
type Class string

const (
	// Transient errors (network/timeout/adapter 5xx-equivalents) are
	// retried with backoff.
	Transient Class = "transient"
	// Permanent errors (rejected order, unknown position) are never
	// retried; they are logged critical and escalate to an alert.
	Permanent Class = "permanent"
	// StateInconsistency covers reconciliation diffs and corrupt
	// persisted state; the caller takes a conservative corrective action.
	StateInconsistency Class = "state_inconsistency"
	// ConfigInvalid means the daemon refuses to start, or refuses to
	// apply a config reload.
	ConfigInvalid Class = "config_invalid"
	// QueueOverflow means the event queue could not accept a new event
	// and the core has entered error_state (safe mode).
	QueueOverflow Class = "queue_overflow"
)

// RiskError is the structured error type used across the daemon.
type RiskError struct {
	Class     Class
	Message   string
	Details   map[string]interface{}
	Timestamp time.Time
	File      string
	Line      int
	Function  string
	Cause     error
}

// Error implements the error interface.
func (e *RiskError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s (caused by: %v)", e.Class, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Class, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *RiskError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key/value pair of diagnostic context.
func (e *RiskError) WithDetail(key string, value interface{}) *RiskError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a RiskError of the given class.
func New(class Class, message string) *RiskError {
	pc, file, line, _ := runtime.Caller(1)
	fn := runtime.FuncForPC(pc)
	var funcName string
	if fn != nil {
		funcName = fn.Name()
	}
	return &RiskError{
		Class:     class,
		Message:   message,
		Timestamp: time.Now(),
		File:      file,
		Line:      line,
		Function:  funcName,
	}
}

// Newf creates a RiskError with a formatted message.
func Newf(class Class, format string, args ...interface{}) *RiskError {
	return New(class, fmt.Sprintf(format, args...))
}

// Wrap attaches a class to an existing error.
func Wrap(err error, class Class, message string) *RiskError {
	if err == nil {
		return nil
	}
	pc, file, line, _ := runtime.Caller(1)
	fn := runtime.FuncForPC(pc)
	var funcName string
	if fn != nil {
		funcName = fn.Name()
	}
	return &RiskError{
		Class:     class,
		Message:   message,
		Timestamp: time.Now(),
		File:      file,
		Line:      line,
		Function:  funcName,
		Cause:     err,
	}
}

// Is reports whether err's chain contains a RiskError of the given class.
func Is(err error, class Class) bool {
	var re *RiskError
	if As(err, &re) {
		return re.Class == class
	}
	return false
}

// As finds the first RiskError in err's chain and stores it in target.
func As(err error, target **RiskError) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(*RiskError); ok {
		*target = re
		return true
	}
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return As(unwrapper.Unwrap(), target)
	}
	return false
}

// ClassOf extracts the Class from an error, or "" if it isn't a RiskError.
func ClassOf(err error) Class {
	var re *RiskError
	if As(err, &re) {
		return re.Class
	}
	return ""
}

// IsRetryable reports whether an error's class is Transient.
func IsRetryable(err error) bool {
	return ClassOf(err) == Transient
}

// IsCritical reports whether an error should be logged at critical severity
// and escalate to a SendAlert action.
func IsCritical(err error) bool {
	switch ClassOf(err) {
	case Permanent, StateInconsistency, QueueOverflow:
		return true
	default:
		return false
	}
}
