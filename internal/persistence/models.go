package persistence

import "time"

// Role identifies the authorization level of a user account.
type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

// BookingStatus tracks the lifecycle of a reservation.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "Confirmed"
	BookingCanceled  BookingStatus = "Canceled"
)

// User represents an account able to authenticate and book rooms.
type User struct {
	ID                    int64
	Name                  string
	Email                 string
	PasswordHash          string
	Role                  Role
	RefreshToken          *string
	RefreshTokenExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Room represents a bookable conference room.
type Room struct {
	ID        int64
	Name      string
	Capacity  int
	Equipment []string
	InUse     bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Booking represents a reservation of one room by one user over [Start, End).
type Booking struct {
	ID        int64
	RoomID    int64
	UserID    int64
	Start     time.Time
	End       time.Time
	Status    BookingStatus
	CreatedAt time.Time
}
