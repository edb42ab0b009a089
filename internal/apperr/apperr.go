// Package apperr defines the error kinds surfaced to callers of the
// attendance engine. Every expected failure is an *Error with a Kind; any
// other error reaching the boundary is treated as Internal.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an expected, caller-recoverable failure.
type Kind string

const (
	InvalidCredentials  Kind = "invalid_credentials"
	DeviceConflict      Kind = "device_conflict"
	DeviceMismatch      Kind = "device_mismatch"
	WindowInactive      Kind = "window_inactive"
	WindowNotFound      Kind = "window_not_found"
	OutOfRange          Kind = "out_of_range"
	DuplicateAttendance Kind = "duplicate_attendance"
	AlreadyRegistered   Kind = "already_registered"
	IdentityNotFound    Kind = "identity_not_found"
	ValidationError     Kind = "validation_error"
	Forbidden           Kind = "forbidden"
	Internal            Kind = "internal"
)

// Error is a classified failure with a user-facing message.
type Error struct {
	Kind    Kind
	Message string

	// Set only for OutOfRange.
	DistanceMeters float64
	RadiusMeters   int

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err as kind, keeping it as the cause.
func Wrap(err error, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Internalf wraps an unexpected failure. The message is not meant for end users.
func Internalf(err error, format string, args ...any) *Error {
	return &Error{Kind: Internal, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewOutOfRange reports a position outside a geofence.
func NewOutOfRange(distance float64, radius int) *Error {
	return &Error{
		Kind:           OutOfRange,
		Message:        fmt.Sprintf("you are too far away: distance %.0fm, allowed %dm", distance, radius),
		DistanceMeters: distance,
		RadiusMeters:   radius,
	}
}

// KindOf returns the kind of err, or Internal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As extracts the *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
