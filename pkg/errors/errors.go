// Package errors augments the standard errors package with sentinel
// error values that can wrap an underlying cause without resorting to
// fmt.Errorf("%w", err) at the declaration site.
package errors

import (
	stderr "errors"
)

var _ error = New("")

// New builds a sentinel Error
func New(msg string) *Error {
	return &Error{msg: msg}
}

// Error is an error value with a message and an optional wrapped cause.
type Error struct {
	msg string
	err error
}

// Error message
func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

// Unwrap nested error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap a cause under this sentinel. The receiver is left untouched, so
// package-level sentinels remain safe to wrap concurrently.
func (e *Error) Wrap(err error) *Error {
	return &Error{msg: e.msg, err: err}
}

// Is reports whether this error matches the target sentinel
func (e *Error) Is(target error) bool {
	if o, ok := target.(*Error); ok {
		return e == o || e.msg == o.msg
	}
	return false
}

// As finds the first error in err's chain that matches target
// (a shortcut to the standard lib errors.As)
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}

// Is reports whether any error in err's chain matches target
// (a shortcut to the standard lib errors.Is)
func Is(err, target error) bool {
	return stderr.Is(err, target)
}
