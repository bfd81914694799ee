package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/conference-rooms/internal/persistence"
)

const (
	maxRoomNameLength = 50
	maxRoomCapacity   = 100
	// availabilitySkew tolerates clients whose "now" lags the server a little.
	availabilitySkew = 5 * time.Minute
)

// RoomRepository captures the persistence operations needed by the service.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room Room) (Room, error)
	GetRoom(ctx context.Context, id int64) (Room, error)
	// UpdateRoom fails with persistence.ErrHasFutureBookings when the capacity
	// changes while a confirmed booking starts at or after bookedFrom.
	UpdateRoom(ctx context.Context, room Room, bookedFrom time.Time) (Room, error)
	// DeleteRoom fails with persistence.ErrHasFutureBookings while a confirmed
	// booking starts at or after bookedFrom.
	DeleteRoom(ctx context.Context, id int64, bookedFrom time.Time) (bool, error)
	ListRooms(ctx context.Context) ([]Room, error)
	GetAvailableRooms(ctx context.Context, start, end time.Time) ([]Room, error)
}

// RoomService orchestrates validation, authorization, and persistence for rooms.
type RoomService struct {
	rooms     RoomRepository
	equipment EquipmentCatalog
	now       func() time.Time
	logger    *slog.Logger
}

// NewRoomService constructs a room service with the provided dependencies.
func NewRoomService(rooms RoomRepository, equipment []string, now func() time.Time) *RoomService {
	return NewRoomServiceWithLogger(rooms, equipment, now, nil)
}

// NewRoomServiceWithLogger constructs a room service with a specified logger.
func NewRoomServiceWithLogger(rooms RoomRepository, equipment []string, now func() time.Time, logger *slog.Logger) *RoomService {
	if now == nil {
		now = time.Now
	}
	return &RoomService{
		rooms:     rooms,
		equipment: NewEquipmentCatalog(equipment),
		now:       now,
		logger:    defaultLogger(logger),
	}
}

func (s *RoomService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RoomService", operation, attrs...)
}

// Equipment returns the configured allow-list.
func (s *RoomService) Equipment() []string {
	if s == nil {
		return nil
	}
	return s.equipment.Items()
}

// CreateRoom validates input and persists a new room for administrators.
func (s *RoomService) CreateRoom(ctx context.Context, params CreateRoomParams) (room Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateRoom",
		"principal_id", params.Principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("room_id", room.ID).InfoContext(ctx, "room created")
	}()

	if !params.Principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}

	vErr := &ValidationError{}
	name := validateRoomName(params.Input.Name, vErr)
	validateRoomCapacity(params.Input.Capacity, vErr)
	equipment := s.equipment.validate(params.Input.Equipment, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if s.rooms == nil {
		err = fmt.Errorf("room repository not configured")
		return
	}

	now := s.now()
	room, err = s.rooms.CreateRoom(ctx, Room{
		Name:      name,
		Capacity:  params.Input.Capacity,
		Equipment: equipment,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		err = mapRoomRepoError(err)
	}
	return
}

// UpdateRoom applies a partial update for administrators. A capacity change is
// refused while the room has bookings starting now or later.
func (s *RoomService) UpdateRoom(ctx context.Context, params UpdateRoomParams) (room Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateRoom",
		"principal_id", params.Principal.UserID,
		"room_id", params.RoomID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "room updated")
	}()

	if !params.Principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}
	if s.rooms == nil {
		err = fmt.Errorf("room repository not configured")
		return
	}

	var existing Room
	existing, err = s.rooms.GetRoom(ctx, params.RoomID)
	if err != nil {
		err = mapRoomRepoError(err)
		return
	}

	input := params.Input
	updated := existing
	vErr := &ValidationError{}

	if input.Name != nil && strings.TrimSpace(*input.Name) != "" {
		updated.Name = validateRoomName(*input.Name, vErr)
	}
	if input.Capacity != nil {
		validateRoomCapacity(*input.Capacity, vErr)
		updated.Capacity = *input.Capacity
	}
	if input.Equipment != nil {
		updated.Equipment = s.equipment.validate(input.Equipment, vErr)
	}
	if input.InUse != nil {
		updated.InUse = *input.InUse
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	updated.UpdatedAt = now
	room, err = s.rooms.UpdateRoom(ctx, updated, now)
	if err != nil {
		err = mapRoomRepoError(err)
	}
	return
}

// DeleteRoom removes a room and its past bookings for administrators. Rooms
// with bookings starting now or later cannot be deleted.
func (s *RoomService) DeleteRoom(ctx context.Context, principal Principal, roomID int64) (err error) {
	if s == nil {
		return fmt.Errorf("RoomService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteRoom",
		"principal_id", principal.UserID,
		"room_id", roomID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "room deleted")
	}()

	if !principal.IsAdmin() {
		return ErrUnauthorized
	}
	if s.rooms == nil {
		return fmt.Errorf("room repository not configured")
	}

	found, err := s.rooms.DeleteRoom(ctx, roomID, s.now())
	if err != nil {
		return mapRoomRepoError(err)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// GetRoom returns a single room for any authenticated user.
func (s *RoomService) GetRoom(ctx context.Context, principal Principal, roomID int64) (Room, error) {
	if s == nil {
		return Room{}, fmt.Errorf("RoomService is nil")
	}
	if s.rooms == nil {
		return Room{}, fmt.Errorf("room repository not configured")
	}

	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		err = mapRoomRepoError(err)
		if !errors.Is(err, ErrNotFound) {
			s.loggerWith(ctx, "GetRoom", "principal_id", principal.UserID, "room_id", roomID).
				ErrorContext(ctx, "failed to load room", "error", err, "error_kind", ErrorKind(err))
		}
		return Room{}, err
	}
	return room, nil
}

// ListRooms returns the catalog of rooms for any authenticated user.
func (s *RoomService) ListRooms(ctx context.Context, principal Principal) (rooms []Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}
	if s.rooms == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListRooms",
		"principal_id", principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list rooms", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(rooms)).InfoContext(ctx, "rooms listed")
	}()

	rooms, err = s.rooms.ListRooms(ctx)
	if err != nil {
		err = mapRoomRepoError(err)
	}
	return
}

// GetAvailableRooms returns the rooms free for the whole of [start, end).
// The range may not start more than a few minutes in the past.
func (s *RoomService) GetAvailableRooms(ctx context.Context, params AvailabilityParams) (rooms []Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}

	logger := s.loggerWith(ctx, "GetAvailableRooms",
		"principal_id", params.Principal.UserID,
		"start", params.Start,
		"end", params.End,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to query availability", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(rooms)).InfoContext(ctx, "availability queried")
	}()

	if vErr := validateAvailabilityRange(params.Start, params.End, s.now()); vErr.HasErrors() {
		err = vErr
		return
	}
	if s.rooms == nil {
		err = fmt.Errorf("room repository not configured")
		return
	}

	rooms, err = s.rooms.GetAvailableRooms(ctx, params.Start.UTC(), params.End.UTC())
	if err != nil {
		err = mapRoomRepoError(err)
	}
	return
}

func validateRoomName(raw string, vErr *ValidationError) string {
	name := strings.TrimSpace(raw)
	switch {
	case name == "":
		vErr.add("name", "name is required")
	case utf8.RuneCountInString(name) > maxRoomNameLength:
		vErr.add("name", fmt.Sprintf("name must be at most %d characters", maxRoomNameLength))
	}
	return name
}

func validateRoomCapacity(capacity int, vErr *ValidationError) {
	if capacity < 0 || capacity > maxRoomCapacity {
		vErr.add("capacity", fmt.Sprintf("capacity must be between 0 and %d", maxRoomCapacity))
	}
}

func validateAvailabilityRange(start, end, now time.Time) *ValidationError {
	vErr := &ValidationError{}
	switch {
	case start.IsZero() || end.IsZero():
		vErr.add("range", "start and end are required")
	case start.After(end):
		vErr.add("range", "start must not be after end")
	case start.Before(now.Add(-availabilitySkew)):
		vErr.add("start", "start must not be in the past")
	}
	return vErr
}

func mapRoomRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrHasFutureBookings):
		return ErrRoomHasFutureBookings
	case errors.Is(err, persistence.ErrConstraintViolation):
		return newValidationError("room", "room violates a storage constraint")
	}
	return err
}
