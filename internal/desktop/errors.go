// Copyright 2025 Joseph Cumines
//
// Error taxonomy shared by backends, drivers and the dispatcher

package desktop

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so callers can branch on it.
type ErrorKind string

const (
	KindUnknownTool      ErrorKind = "UnknownTool"
	KindInvalidArgument  ErrorKind = "InvalidArgument"
	KindTargetNotFound   ErrorKind = "TargetNotFound"
	KindTimeout          ErrorKind = "Timeout"
	KindDialogError      ErrorKind = "DialogError"
	KindDriverError      ErrorKind = "DriverError"
	KindPermissionDenied ErrorKind = "PermissionDenied"
)

// Kinds lists every ErrorKind.
var Kinds = []ErrorKind{
	KindUnknownTool,
	KindInvalidArgument,
	KindTargetNotFound,
	KindTimeout,
	KindDialogError,
	KindDriverError,
	KindPermissionDenied,
}

// Valid reports whether k is one of Kinds.
func (k ErrorKind) Valid() bool {
	for _, v := range Kinds {
		if v == k {
			return true
		}
	}
	return false
}

// Error is a classified failure. Field names the offending argument for
// KindInvalidArgument.
type Error struct {
	Err     error
	Kind    ErrorKind
	Field   string
	Message string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Field, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf reports an unresolvable window, process or element.
func NotFoundf(format string, args ...any) *Error {
	return Errorf(KindTargetNotFound, format, args...)
}

// InvalidArgumentf reports a bad argument, naming the field.
func InvalidArgumentf(field, format string, args ...any) *Error {
	e := Errorf(KindInvalidArgument, format, args...)
	e.Field = field
	return e
}

// Timeoutf reports an expired deadline.
func Timeoutf(format string, args ...any) *Error {
	return Errorf(KindTimeout, format, args...)
}

// DialogErrorf reports a problem shown by an application dialog.
func DialogErrorf(format string, args ...any) *Error {
	return Errorf(KindDialogError, format, args...)
}

// PermissionDeniedf reports access refused by the OS, typically because the
// target belongs to an elevated process.
func PermissionDeniedf(format string, args ...any) *Error {
	return Errorf(KindPermissionDenied, format, args...)
}

// DriverErrorf reports an opaque backend failure.
func DriverErrorf(format string, args ...any) *Error {
	return Errorf(KindDriverError, format, args...)
}

// Wrap classifies err as kind, unless it is already classified.
func Wrap(kind ErrorKind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf classifies any error. Deadline expiry maps to KindTimeout, and
// anything unclassified maps to KindDriverError.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindDriverError
}

// FieldOf returns the offending field of a classified error, if any.
func FieldOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Field
	}
	return ""
}

// IsNotFound reports whether err is a KindTargetNotFound failure.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindTargetNotFound
}
