package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/conference-rooms/internal/events"
	"github.com/example/conference-rooms/internal/lock"
	"github.com/example/conference-rooms/internal/persistence"
	"github.com/example/conference-rooms/internal/scheduler"
)

// BookingRepository captures the persistence operations needed by the booking service.
type BookingRepository interface {
	CreateBookingIfFree(ctx context.Context, booking Booking) (Booking, error)
	ListConflicts(ctx context.Context, roomID int64, start, end time.Time) ([]Booking, error)
	GetBooking(ctx context.Context, id int64) (Booking, error)
	ListBookings(ctx context.Context) ([]Booking, error)
	ListBookingsForUser(ctx context.Context, userID int64) ([]Booking, error)
	CancelBooking(ctx context.Context, id int64) (bool, error)
}

// RoomCatalog exposes room lookup for booking validation.
type RoomCatalog interface {
	GetRoom(ctx context.Context, id int64) (Room, error)
}

// UserDirectory exposes user lookup for booking validation.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (User, error)
}

// BookingService arbitrates reservations so that confirmed bookings of one
// room never overlap.
type BookingService struct {
	bookings  BookingRepository
	rooms     RoomCatalog
	users     UserDirectory
	locker    lock.Locker
	publisher events.Publisher
	now       func() time.Time
	logger    *slog.Logger
}

// BookingServiceDeps groups the collaborators of BookingService. Locker and
// Publisher default to an in-process lock and a no-op publisher.
type BookingServiceDeps struct {
	Bookings  BookingRepository
	Rooms     RoomCatalog
	Users     UserDirectory
	Locker    lock.Locker
	Publisher events.Publisher
	Now       func() time.Time
	Logger    *slog.Logger
}

// NewBookingService constructs a booking service.
func NewBookingService(deps BookingServiceDeps) *BookingService {
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &BookingService{
		bookings:  deps.Bookings,
		rooms:     deps.Rooms,
		users:     deps.Users,
		locker:    deps.Locker,
		publisher: deps.Publisher,
		now:       deps.Now,
		logger:    defaultLogger(deps.Logger),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

// CreateBooking validates the request, serializes creators of the same room
// and inserts the booking only when the slot is free.
func (s *BookingService) CreateBooking(ctx context.Context, params CreateBookingParams) (booking Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	input := params.Input
	logger := s.loggerWith(ctx, "CreateBooking",
		"principal_id", params.Principal.UserID,
		"room_id", input.RoomID,
		"user_id", input.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("booking_id", booking.ID).InfoContext(ctx, "booking created")
	}()

	if vErr := validateBookingInput(input); vErr.HasErrors() {
		err = vErr
		return
	}
	if !params.Principal.IsAdmin() && params.Principal.UserID != input.UserID {
		err = ErrUnauthorized
		return
	}
	if s.bookings == nil {
		err = fmt.Errorf("booking repository not configured")
		return
	}

	if s.rooms != nil {
		if _, err = s.rooms.GetRoom(ctx, input.RoomID); err != nil {
			err = mapBookingRepoError(err)
			return
		}
	}
	if s.users != nil {
		if _, err = s.users.GetUser(ctx, input.UserID); err != nil {
			err = mapBookingRepoError(err)
			return
		}
	}

	var unlock lock.Unlock
	unlock, err = s.locker.Lock(ctx, lock.RoomKey(input.RoomID))
	if err != nil {
		err = fmt.Errorf("acquire room lock: %w", err)
		return
	}
	defer unlock()

	candidate := Booking{
		RoomID:    input.RoomID,
		UserID:    input.UserID,
		Start:     input.Start.UTC(),
		End:       input.End.UTC(),
		Status:    BookingConfirmed,
		CreatedAt: s.now().UTC(),
	}

	booking, err = s.bookings.CreateBookingIfFree(ctx, candidate)
	if err != nil {
		if errors.Is(err, persistence.ErrConflict) || errors.Is(err, ErrConflict) {
			err = s.describeConflict(ctx, candidate)
			return
		}
		err = mapBookingRepoError(err)
		return
	}

	s.publish(ctx, logger, events.TypeBookingCreated, booking)
	return
}

// describeConflict reports the bookings that block candidate. Lookup failures
// fall back to the bare sentinel.
func (s *BookingService) describeConflict(ctx context.Context, candidate Booking) error {
	existing, err := s.bookings.ListConflicts(ctx, candidate.RoomID, candidate.Start, candidate.End)
	if err != nil {
		return ErrConflict
	}

	reservations := make([]scheduler.Reservation, 0, len(existing))
	for _, b := range existing {
		reservations = append(reservations, scheduler.Reservation{
			ID:       b.ID,
			RoomID:   b.RoomID,
			Interval: scheduler.Interval{Start: b.Start, End: b.End},
		})
	}
	conflicts := scheduler.DetectConflicts(scheduler.Reservation{
		RoomID:   candidate.RoomID,
		Interval: scheduler.Interval{Start: candidate.Start, End: candidate.End},
	}, reservations)

	ids := make([]int64, 0, len(conflicts))
	for _, c := range conflicts {
		ids = append(ids, c.WithReservationID)
	}
	return &ConflictError{RoomID: candidate.RoomID, BookingIDs: ids}
}

// CancelBooking deletes a booking owned by the principal, or any booking for
// administrators. A booking that is already gone yields ErrNotFound.
func (s *BookingService) CancelBooking(ctx context.Context, principal Principal, bookingID int64) (err error) {
	if s == nil {
		return fmt.Errorf("BookingService is nil")
	}
	if s.bookings == nil {
		return fmt.Errorf("booking repository not configured")
	}

	logger := s.loggerWith(ctx, "CancelBooking",
		"principal_id", principal.UserID,
		"booking_id", bookingID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking canceled")
	}()

	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return mapBookingRepoError(err)
	}
	// Foreign bookings read as missing, matching GetBooking.
	if !principal.IsAdmin() && booking.UserID != principal.UserID {
		return ErrNotFound
	}

	found, err := s.bookings.CancelBooking(ctx, bookingID)
	if err != nil {
		return mapBookingRepoError(err)
	}
	if !found {
		return ErrNotFound
	}

	booking.Status = BookingCanceled
	s.publish(ctx, logger, events.TypeBookingCanceled, booking)
	return nil
}

// GetBooking returns a booking visible to the principal. Bookings of other
// users are reported as not found to non-admins.
func (s *BookingService) GetBooking(ctx context.Context, principal Principal, bookingID int64) (Booking, error) {
	if s == nil {
		return Booking{}, fmt.Errorf("BookingService is nil")
	}
	if s.bookings == nil {
		return Booking{}, fmt.Errorf("booking repository not configured")
	}

	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, mapBookingRepoError(err)
	}
	if !principal.IsAdmin() && booking.UserID != principal.UserID {
		return Booking{}, ErrNotFound
	}
	return booking, nil
}

// ListBookings returns every booking to administrators and the caller's own
// bookings to everyone else.
func (s *BookingService) ListBookings(ctx context.Context, principal Principal) (bookings []Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.bookings == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListBookings", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list bookings", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(bookings)).InfoContext(ctx, "bookings listed")
	}()

	if principal.IsAdmin() {
		bookings, err = s.bookings.ListBookings(ctx)
	} else {
		bookings, err = s.bookings.ListBookingsForUser(ctx, principal.UserID)
	}
	if err != nil {
		err = mapBookingRepoError(err)
	}
	return
}

// ListBookingsForUser returns the bookings of userID. Non-admins may only
// list their own.
func (s *BookingService) ListBookingsForUser(ctx context.Context, principal Principal, userID int64) ([]Booking, error) {
	if s == nil {
		return nil, fmt.Errorf("BookingService is nil")
	}
	if !principal.IsAdmin() && principal.UserID != userID {
		return nil, ErrUnauthorized
	}
	if s.bookings == nil {
		return nil, nil
	}

	bookings, err := s.bookings.ListBookingsForUser(ctx, userID)
	if err != nil {
		return nil, mapBookingRepoError(err)
	}
	return bookings, nil
}

func (s *BookingService) publish(ctx context.Context, logger *slog.Logger, eventType string, booking Booking) {
	event := events.BookingEvent{
		Type:       eventType,
		BookingID:  booking.ID,
		RoomID:     booking.RoomID,
		UserID:     booking.UserID,
		Start:      booking.Start,
		End:        booking.End,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.WarnContext(ctx, "failed to publish booking event", "event_type", eventType, "error", err)
	}
}

func validateBookingInput(input BookingInput) *ValidationError {
	vErr := &ValidationError{}
	if input.RoomID <= 0 {
		vErr.add("roomId", "room id is required")
	}
	if input.UserID <= 0 {
		vErr.add("userId", "user id is required")
	}
	if input.Start.IsZero() {
		vErr.add("start", "start is required")
	}
	if input.End.IsZero() {
		vErr.add("end", "end is required")
	}
	if !input.Start.IsZero() && !input.End.IsZero() && !input.Start.Before(input.End) {
		vErr.add("end", "end must be after start")
	}
	return vErr
}

func mapBookingRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrConflict):
		return ErrConflict
	case errors.Is(err, persistence.ErrForeignKey):
		return ErrNotFound
	case errors.Is(err, persistence.ErrConstraintViolation):
		return newValidationError("booking", "booking violates a storage constraint")
	}
	return err
}
