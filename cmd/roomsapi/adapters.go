package main

import (
	"context"
	"time"

	"github.com/example/conference-rooms/internal/application"
	"github.com/example/conference-rooms/internal/persistence"
)

// userStore serves the auth service, the user service and booking validation
// from one persistence.UserRepository.
type userStore struct {
	repo persistence.UserRepository
}

func newUserStore(repo persistence.UserRepository) *userStore {
	return &userStore{repo: repo}
}

func (a *userStore) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return toApplicationCredentials(stored), nil
}

func (a *userStore) GetUserCredentials(ctx context.Context, id int64) (application.UserCredentials, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return toApplicationCredentials(stored), nil
}

func (a *userStore) CreateUser(ctx context.Context, creds application.UserCredentials) (application.User, error) {
	stored, err := a.repo.CreateUser(ctx, toPersistenceUser(creds))
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userStore) StoreRefreshToken(ctx context.Context, userID int64, token *string, expiresAt *time.Time) error {
	return a.repo.UpdateRefreshToken(ctx, userID, token, expiresAt)
}

func (a *userStore) GetUser(ctx context.Context, id int64) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

// UpdateUser keeps the stored password hash when creds carries none.
func (a *userStore) UpdateUser(ctx context.Context, creds application.UserCredentials) (application.User, error) {
	if creds.PasswordHash == "" {
		current, err := a.repo.GetUser(ctx, creds.User.ID)
		if err != nil {
			return application.User{}, err
		}
		creds.PasswordHash = current.PasswordHash
	}
	stored, err := a.repo.UpdateUser(ctx, toPersistenceUser(creds))
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userStore) DeleteUser(ctx context.Context, id int64) (bool, error) {
	return a.repo.DeleteUser(ctx, id)
}

func (a *userStore) ListUsers(ctx context.Context) ([]application.User, error) {
	stored, err := a.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]application.User, 0, len(stored))
	for _, model := range stored {
		users = append(users, toApplicationUser(model))
	}
	return users, nil
}

type roomStore struct {
	repo persistence.RoomRepository
}

func newRoomStore(repo persistence.RoomRepository) *roomStore {
	return &roomStore{repo: repo}
}

func (a *roomStore) CreateRoom(ctx context.Context, room application.Room) (application.Room, error) {
	stored, err := a.repo.CreateRoom(ctx, toPersistenceRoom(room))
	if err != nil {
		return application.Room{}, err
	}
	return toApplicationRoom(stored), nil
}

func (a *roomStore) GetRoom(ctx context.Context, id int64) (application.Room, error) {
	stored, err := a.repo.GetRoom(ctx, id)
	if err != nil {
		return application.Room{}, err
	}
	return toApplicationRoom(stored), nil
}

func (a *roomStore) UpdateRoom(ctx context.Context, room application.Room, bookedFrom time.Time) (application.Room, error) {
	stored, err := a.repo.UpdateRoom(ctx, toPersistenceRoom(room), bookedFrom)
	if err != nil {
		return application.Room{}, err
	}
	return toApplicationRoom(stored), nil
}

func (a *roomStore) DeleteRoom(ctx context.Context, id int64, bookedFrom time.Time) (bool, error) {
	return a.repo.DeleteRoom(ctx, id, bookedFrom)
}

func (a *roomStore) ListRooms(ctx context.Context) ([]application.Room, error) {
	stored, err := a.repo.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	return toApplicationRooms(stored), nil
}

func (a *roomStore) GetAvailableRooms(ctx context.Context, start, end time.Time) ([]application.Room, error) {
	stored, err := a.repo.GetAvailableRooms(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return toApplicationRooms(stored), nil
}

// bookingStore serves the booking service.
type bookingStore struct {
	repo persistence.BookingRepository
}

func newBookingStore(repo persistence.BookingRepository) *bookingStore {
	return &bookingStore{repo: repo}
}

func (a *bookingStore) CreateBookingIfFree(ctx context.Context, booking application.Booking) (application.Booking, error) {
	stored, err := a.repo.CreateBookingIfFree(ctx, toPersistenceBooking(booking))
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(stored), nil
}

func (a *bookingStore) ListConflicts(ctx context.Context, roomID int64, start, end time.Time) ([]application.Booking, error) {
	stored, err := a.repo.ListConflicts(ctx, roomID, start, end)
	if err != nil {
		return nil, err
	}
	return toApplicationBookings(stored), nil
}

func (a *bookingStore) GetBooking(ctx context.Context, id int64) (application.Booking, error) {
	stored, err := a.repo.GetBooking(ctx, id)
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(stored), nil
}

func (a *bookingStore) ListBookings(ctx context.Context) ([]application.Booking, error) {
	stored, err := a.repo.ListBookings(ctx)
	if err != nil {
		return nil, err
	}
	return toApplicationBookings(stored), nil
}

func (a *bookingStore) ListBookingsForUser(ctx context.Context, userID int64) ([]application.Booking, error) {
	stored, err := a.repo.ListBookingsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toApplicationBookings(stored), nil
}

func (a *bookingStore) CancelBooking(ctx context.Context, id int64) (bool, error) {
	return a.repo.CancelBooking(ctx, id)
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:        model.ID,
		Name:      model.Name,
		Email:     model.Email,
		Role:      application.Role(model.Role),
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

func toApplicationCredentials(model persistence.User) application.UserCredentials {
	return application.UserCredentials{
		User:                  toApplicationUser(model),
		PasswordHash:          model.PasswordHash,
		RefreshToken:          cloneString(model.RefreshToken),
		RefreshTokenExpiresAt: cloneTime(model.RefreshTokenExpiresAt),
	}
}

func toPersistenceUser(creds application.UserCredentials) persistence.User {
	return persistence.User{
		ID:                    creds.User.ID,
		Name:                  creds.User.Name,
		Email:                 creds.User.Email,
		PasswordHash:          creds.PasswordHash,
		Role:                  persistence.Role(creds.User.Role),
		RefreshToken:          cloneString(creds.RefreshToken),
		RefreshTokenExpiresAt: cloneTime(creds.RefreshTokenExpiresAt),
		CreatedAt:             creds.User.CreatedAt,
		UpdatedAt:             creds.User.UpdatedAt,
	}
}

func toApplicationRoom(model persistence.Room) application.Room {
	return application.Room{
		ID:        model.ID,
		Name:      model.Name,
		Capacity:  model.Capacity,
		Equipment: append([]string(nil), model.Equipment...),
		InUse:     model.InUse,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

func toApplicationRooms(models []persistence.Room) []application.Room {
	rooms := make([]application.Room, 0, len(models))
	for _, model := range models {
		rooms = append(rooms, toApplicationRoom(model))
	}
	return rooms
}

func toPersistenceRoom(room application.Room) persistence.Room {
	return persistence.Room{
		ID:        room.ID,
		Name:      room.Name,
		Capacity:  room.Capacity,
		Equipment: append([]string(nil), room.Equipment...),
		InUse:     room.InUse,
		CreatedAt: room.CreatedAt,
		UpdatedAt: room.UpdatedAt,
	}
}

func toApplicationBooking(model persistence.Booking) application.Booking {
	return application.Booking{
		ID:        model.ID,
		RoomID:    model.RoomID,
		UserID:    model.UserID,
		Start:     model.Start,
		End:       model.End,
		Status:    application.BookingStatus(model.Status),
		CreatedAt: model.CreatedAt,
	}
}

func toApplicationBookings(models []persistence.Booking) []application.Booking {
	bookings := make([]application.Booking, 0, len(models))
	for _, model := range models {
		bookings = append(bookings, toApplicationBooking(model))
	}
	return bookings
}

func toPersistenceBooking(booking application.Booking) persistence.Booking {
	return persistence.Booking{
		ID:        booking.ID,
		RoomID:    booking.RoomID,
		UserID:    booking.UserID,
		Start:     booking.Start,
		End:       booking.End,
		Status:    persistence.BookingStatus(booking.Status),
		CreatedAt: booking.CreatedAt,
	}
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
