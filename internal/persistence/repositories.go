package persistence

import (
	"context"
	"time"
)

// UserRepository exposes CRUD operations for users and their refresh tokens.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) (User, error)
	UpdateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id int64) (bool, error)
	UpdateRefreshToken(ctx context.Context, userID int64, token *string, expiresAt *time.Time) error
}

// RoomRepository exposes room CRUD and the availability anti-join.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room Room) (Room, error)
	// UpdateRoom overwrites the room. When the capacity changes and bookedFrom
	// is set, it fails with ErrHasFutureBookings if a confirmed booking starts
	// at or after bookedFrom.
	UpdateRoom(ctx context.Context, room Room, bookedFrom time.Time) (Room, error)
	GetRoom(ctx context.Context, id int64) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	// DeleteRoom removes the room and its bookings in one transaction. It reports
	// false when the room does not exist and fails with ErrHasFutureBookings
	// when bookedFrom is set and a confirmed booking starts at or after it.
	DeleteRoom(ctx context.Context, id int64, bookedFrom time.Time) (bool, error)
	// GetAvailableRooms returns rooms without a confirmed booking overlapping [start, end).
	GetAvailableRooms(ctx context.Context, start, end time.Time) ([]Room, error)
}

// BookingRepository exposes booking storage plus conflict queries.
type BookingRepository interface {
	// CreateBooking inserts without an application level conflict check.
	CreateBooking(ctx context.Context, booking Booking) (Booking, error)
	// CreateBookingIfFree checks for conflicts and inserts inside one write
	// transaction, returning ErrConflict when the slot is taken.
	CreateBookingIfFree(ctx context.Context, booking Booking) (Booking, error)
	ExistsConflict(ctx context.Context, roomID int64, start, end time.Time) (bool, error)
	ListConflicts(ctx context.Context, roomID int64, start, end time.Time) ([]Booking, error)
	GetBooking(ctx context.Context, id int64) (Booking, error)
	ListBookings(ctx context.Context) ([]Booking, error)
	ListBookingsForUser(ctx context.Context, userID int64) ([]Booking, error)
	ListBookingsForRoom(ctx context.Context, roomID int64) ([]Booking, error)
	// CancelBooking deletes the booking and reports whether it existed.
	CancelBooking(ctx context.Context, id int64) (bool, error)
	HasFutureBookings(ctx context.Context, roomID int64, reference time.Time) (bool, error)
}
