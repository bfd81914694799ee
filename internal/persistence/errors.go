package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a CHECK or NOT NULL constraint rejects a write.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKey is returned when a referenced row is missing.
	ErrForeignKey = errors.New("persistence: foreign key violation")
	// ErrConflict is returned when a booking overlaps a confirmed booking of the same room.
	ErrConflict = errors.New("persistence: booking conflict")
	// ErrHasFutureBookings is returned when a room change is refused because the
	// room still has confirmed bookings starting at or after the given instant.
	ErrHasFutureBookings = errors.New("persistence: room has future bookings")
	// ErrLocked is returned when the database stayed busy past the retry budget.
	ErrLocked = errors.New("persistence: database locked")
)
