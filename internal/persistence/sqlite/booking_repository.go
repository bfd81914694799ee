package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/conference-rooms/internal/persistence"
)

const bookingColumns = `b.id, b.room_id, b.user_id, b.start_at, b.end_at, b.status, b.created_at`

// overlapPredicate matches confirmed bookings of a room that overlap a
// half-open range. Arguments: room id, status, range end, range start.
const overlapPredicate = `b.room_id = ? AND b.status = ? AND b.start_at < ? AND b.end_at > ?`

// BookingRepository implements persistence.BookingRepository using SQLite.
type BookingRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	logger *slog.Logger
}

// NewBookingRepository creates a new SQLite booking repository.
func NewBookingRepository(pool *ConnectionPool, logger *slog.Logger) *BookingRepository {
	return &BookingRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		logger: logger,
	}
}

// CreateBooking inserts a booking. The overlap triggers still reject a
// conflicting confirmed booking with persistence.ErrConflict.
func (r *BookingRepository) CreateBooking(ctx context.Context, booking persistence.Booking) (persistence.Booking, error) {
	booking = normalizeBooking(booking)

	id, err := r.insert(ctx, r.helper.On(nil), booking)
	if err != nil {
		return persistence.Booking{}, r.fail(ctx, "CreateBooking", err, "room_id", booking.RoomID)
	}
	booking.ID = id
	return booking, nil
}

// CreateBookingIfFree runs the conflict check and the insert in one IMMEDIATE
// transaction so no other writer can claim the slot in between.
func (r *BookingRepository) CreateBookingIfFree(ctx context.Context, booking persistence.Booking) (persistence.Booking, error) {
	booking = normalizeBooking(booking)

	err := r.pool.WithRetriedTransaction(ctx, func(tx *sql.Tx) error {
		taken, err := r.helper.Exists(ctx, tx,
			`SELECT EXISTS (SELECT 1 FROM bookings b WHERE `+overlapPredicate+`)`,
			booking.RoomID, string(persistence.BookingConfirmed), formatTime(booking.End), formatTime(booking.Start))
		if err != nil {
			return err
		}
		if taken {
			return persistence.ErrConflict
		}

		id, err := r.insert(ctx, tx, booking)
		if err != nil {
			return err
		}
		booking.ID = id
		return nil
	})
	if err != nil {
		if errors.Is(err, persistence.ErrConflict) {
			repositoryLogger(ctx, r.logger, "BookingRepository", "CreateBookingIfFree",
				"room_id", booking.RoomID).DebugContext(ctx, "slot already taken")
		}
		return persistence.Booking{}, r.fail(ctx, "CreateBookingIfFree", err, "room_id", booking.RoomID)
	}
	return booking, nil
}

func (r *BookingRepository) insert(ctx context.Context, q queryer, booking persistence.Booking) (int64, error) {
	result, err := q.ExecContext(ctx, `
		INSERT INTO bookings (room_id, user_id, start_at, end_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, booking.RoomID, booking.UserID, formatTime(booking.Start), formatTime(booking.End),
		string(booking.Status), formatTime(booking.CreatedAt))
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read booking id: %w", err)
	}
	return id, nil
}

// ExistsConflict reports whether a confirmed booking of the room overlaps [start, end).
func (r *BookingRepository) ExistsConflict(ctx context.Context, roomID int64, start, end time.Time) (bool, error) {
	exists, err := r.helper.Exists(ctx, r.helper.On(nil),
		`SELECT EXISTS (SELECT 1 FROM bookings b WHERE `+overlapPredicate+`)`,
		roomID, string(persistence.BookingConfirmed), formatTime(end), formatTime(start))
	if err != nil {
		return false, r.fail(ctx, "ExistsConflict", err, "room_id", roomID)
	}
	return exists, nil
}

// ListConflicts returns the confirmed bookings of the room overlapping [start, end).
func (r *BookingRepository) ListConflicts(ctx context.Context, roomID int64, start, end time.Time) ([]persistence.Booking, error) {
	bookings, err := r.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings b WHERE `+overlapPredicate+` ORDER BY b.start_at, b.id`,
		roomID, string(persistence.BookingConfirmed), formatTime(end), formatTime(start))
	if err != nil {
		return nil, r.fail(ctx, "ListConflicts", err, "room_id", roomID)
	}
	return bookings, nil
}

// GetBooking retrieves a booking by id.
func (r *BookingRepository) GetBooking(ctx context.Context, id int64) (persistence.Booking, error) {
	row := r.helper.On(nil).QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ?`, id)
	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Booking{}, persistence.ErrNotFound
		}
		return persistence.Booking{}, r.fail(ctx, "GetBooking", err, "booking_id", id)
	}
	return booking, nil
}

// ListBookings returns every booking ordered by start time.
func (r *BookingRepository) ListBookings(ctx context.Context) ([]persistence.Booking, error) {
	bookings, err := r.queryBookings(ctx, `SELECT `+bookingColumns+` FROM bookings b ORDER BY b.start_at, b.id`)
	if err != nil {
		return nil, r.fail(ctx, "ListBookings", err)
	}
	return bookings, nil
}

// ListBookingsForUser returns the bookings made by a user ordered by start time.
func (r *BookingRepository) ListBookingsForUser(ctx context.Context, userID int64) ([]persistence.Booking, error) {
	bookings, err := r.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings b WHERE b.user_id = ? ORDER BY b.start_at, b.id`, userID)
	if err != nil {
		return nil, r.fail(ctx, "ListBookingsForUser", err, "user_id", userID)
	}
	return bookings, nil
}

// ListBookingsForRoom returns the bookings of a room ordered by start time.
func (r *BookingRepository) ListBookingsForRoom(ctx context.Context, roomID int64) ([]persistence.Booking, error) {
	bookings, err := r.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings b WHERE b.room_id = ? ORDER BY b.start_at, b.id`, roomID)
	if err != nil {
		return nil, r.fail(ctx, "ListBookingsForRoom", err, "room_id", roomID)
	}
	return bookings, nil
}

// CancelBooking deletes the booking. A missing booking is reported as false
// and logged at warn level.
func (r *BookingRepository) CancelBooking(ctx context.Context, id int64) (bool, error) {
	result, err := r.helper.On(nil).ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return false, r.fail(ctx, "CancelBooking", err, "booking_id", id)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		repositoryLogger(ctx, r.logger, "BookingRepository", "CancelBooking", "booking_id", id).
			WarnContext(ctx, "booking to cancel was not found")
		return false, nil
	}
	return true, nil
}

// HasFutureBookings reports whether the room has a confirmed booking starting
// at or after reference.
func (r *BookingRepository) HasFutureBookings(ctx context.Context, roomID int64, reference time.Time) (bool, error) {
	exists, err := r.helper.Exists(ctx, r.helper.On(nil), `
		SELECT EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.room_id = ? AND b.status = ? AND b.start_at >= ?
		)
	`, roomID, string(persistence.BookingConfirmed), formatTime(reference))
	if err != nil {
		return false, r.fail(ctx, "HasFutureBookings", err, "room_id", roomID)
	}
	return exists, nil
}

func (r *BookingRepository) queryBookings(ctx context.Context, query string, args ...any) ([]persistence.Booking, error) {
	rows, err := r.helper.On(nil).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []persistence.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *BookingRepository) fail(ctx context.Context, operation string, err error, attrs ...any) error {
	mapped := r.mapper.MapError(err)
	if !isExpected(mapped) {
		repositoryLogger(ctx, r.logger, "BookingRepository", operation, attrs...).
			ErrorContext(ctx, "booking query failed", "error", err)
	}
	return mapped
}

func normalizeBooking(booking persistence.Booking) persistence.Booking {
	if booking.Status == "" {
		booking.Status = persistence.BookingConfirmed
	}
	booking.Start = booking.Start.UTC()
	booking.End = booking.End.UTC()
	booking.CreatedAt = nowOr(booking.CreatedAt)
	return booking
}

func scanBooking(row rowScanner) (persistence.Booking, error) {
	var (
		booking                   persistence.Booking
		status                    string
		startAt, endAt, createdAt string
	)
	if err := row.Scan(&booking.ID, &booking.RoomID, &booking.UserID, &startAt, &endAt, &status, &createdAt); err != nil {
		return persistence.Booking{}, err
	}
	booking.Status = persistence.BookingStatus(status)

	var err error
	if booking.Start, err = parseTime(startAt); err != nil {
		return persistence.Booking{}, err
	}
	if booking.End, err = parseTime(endAt); err != nil {
		return persistence.Booking{}, err
	}
	if booking.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Booking{}, err
	}
	return booking, nil
}
