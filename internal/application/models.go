package application

import "time"

// Role identifies the authorization level of an account.
type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID int64
	Name   string
	Email  string
	Role   Role
}

// IsAdmin reports whether the principal holds the Admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
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

// RoomInput captures caller provided fields for a new room.
type RoomInput struct {
	Name      string
	Capacity  int
	Equipment []string
}

// RoomUpdateInput captures a partial room update. Nil fields keep the stored value.
type RoomUpdateInput struct {
	Name      *string
	Capacity  *int
	Equipment []string
	InUse     *bool
}

// CreateRoomParams wraps the data required to create a room.
type CreateRoomParams struct {
	Principal Principal
	Input     RoomInput
}

// UpdateRoomParams wraps the data required to update a room.
type UpdateRoomParams struct {
	Principal Principal
	RoomID    int64
	Input     RoomUpdateInput
}

// AvailabilityParams wraps an availability query.
type AvailabilityParams struct {
	Principal Principal
	Start     time.Time
	End       time.Time
}

// BookingStatus tracks the lifecycle of a booking.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "Confirmed"
	BookingCanceled  BookingStatus = "Canceled"
)

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

// BookingInput captures caller provided booking fields.
type BookingInput struct {
	RoomID int64
	UserID int64
	Start  time.Time
	End    time.Time
}

// CreateBookingParams wraps the data required to create a booking.
type CreateBookingParams struct {
	Principal Principal
	Input     BookingInput
}

// User represents an account exposed by the application services.
type User struct {
	ID        int64
	Name      string
	Email     string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserCredentials models the authentication attributes persisted for a user.
type UserCredentials struct {
	User                  User
	PasswordHash          string
	RefreshToken          *string
	RefreshTokenExpiresAt *time.Time
}

// UserInput captures caller provided user attributes. An empty Password on
// update keeps the stored hash.
type UserInput struct {
	Name     string
	Email    string
	Password string
	Role     Role
}

// CreateUserParams wraps the data required to create a user.
type CreateUserParams struct {
	Principal Principal
	Input     UserInput
}

// UpdateUserParams wraps the data required to update a user.
type UpdateUserParams struct {
	Principal Principal
	UserID    int64
	Input     UserInput
}

// RegisterParams captures a self-service registration.
type RegisterParams struct {
	Name     string
	Email    string
	Password string
	Role     Role
}

// LoginParams captures the data required to authenticate a user.
type LoginParams struct {
	Email    string
	Password string
}

// RefreshParams captures an expired or live access token plus its refresh token.
type RefreshParams struct {
	AccessToken  string
	RefreshToken string
}

// TokenPair is returned by successful authentication flows.
type TokenPair struct {
	User                  User
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
}
