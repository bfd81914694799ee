package application

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrConflict is returned when a booking overlaps a confirmed booking of the same room.
	ErrConflict = errors.New("application: booking conflict")
	// ErrRoomHasFutureBookings is returned when a room change is blocked by upcoming bookings.
	ErrRoomHasFutureBookings = errors.New("application: room has future bookings")
	// ErrAlreadyExists is returned when a unique attribute such as an email is taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrInvalidCredentials is returned when an email and password pair does not match.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrInvalidToken is returned when an access or refresh token is rejected.
	ErrInvalidToken = errors.New("application: invalid token")
)

// ConflictError reports which bookings block a requested slot. It matches
// ErrConflict with errors.Is.
type ConflictError struct {
	RoomID     int64
	BookingIDs []int64
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e == nil || len(e.BookingIDs) == 0 {
		return ErrConflict.Error()
	}
	ids := make([]string, len(e.BookingIDs))
	for i, id := range e.BookingIDs {
		ids[i] = formatID(id)
	}
	return ErrConflict.Error() + ": overlaps booking " + strings.Join(ids, ", ")
}

// Is reports ErrConflict as the sentinel for this error.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, field := range fields {
		parts[i] = field + ": " + v.FieldErrors[field]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func newValidationError(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}
