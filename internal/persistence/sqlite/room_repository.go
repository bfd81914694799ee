package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/conference-rooms/internal/persistence"
)

const roomColumns = `r.id, r.name, r.capacity, r.equipment, r.in_use, r.created_at, r.updated_at`

// RoomRepository implements persistence.RoomRepository using SQLite.
type RoomRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	logger *slog.Logger
}

// NewRoomRepository creates a new SQLite room repository.
func NewRoomRepository(pool *ConnectionPool, logger *slog.Logger) *RoomRepository {
	return &RoomRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		logger: logger,
	}
}

// CreateRoom inserts a new room and returns it with its assigned id.
func (r *RoomRepository) CreateRoom(ctx context.Context, room persistence.Room) (persistence.Room, error) {
	room.CreatedAt = nowOr(room.CreatedAt)
	if room.UpdatedAt.IsZero() {
		room.UpdatedAt = room.CreatedAt
	}

	equipment, err := encodeEquipment(room.Equipment)
	if err != nil {
		return persistence.Room{}, err
	}

	result, err := r.helper.On(nil).ExecContext(ctx, `
		INSERT INTO rooms (name, capacity, equipment, in_use, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, room.Name, room.Capacity, equipment, room.InUse, formatTime(room.CreatedAt), formatTime(room.UpdatedAt))
	if err != nil {
		return persistence.Room{}, r.fail(ctx, "CreateRoom", err, "room_name", room.Name)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return persistence.Room{}, fmt.Errorf("failed to read room id: %w", err)
	}

	return r.GetRoom(ctx, id)
}

// UpdateRoom overwrites an existing room inside a transaction. A missing id is
// reported as persistence.ErrNotFound before anything is written. A capacity
// change is refused with persistence.ErrHasFutureBookings while a confirmed
// booking starts at or after bookedFrom; a zero bookedFrom skips that check.
func (r *RoomRepository) UpdateRoom(ctx context.Context, room persistence.Room, bookedFrom time.Time) (persistence.Room, error) {
	equipment, err := encodeEquipment(room.Equipment)
	if err != nil {
		return persistence.Room{}, err
	}

	var updated persistence.Room
	err = r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var capacity int
		err := tx.QueryRowContext(ctx, `SELECT capacity FROM rooms WHERE id = ?`, room.ID).Scan(&capacity)
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ErrNotFound
		}
		if err != nil {
			return err
		}
		if capacity != room.Capacity {
			if err := r.ensureNoFutureBookings(ctx, tx, room.ID, bookedFrom); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE rooms
			SET name = ?, capacity = ?, equipment = ?, in_use = ?, updated_at = ?
			WHERE id = ?
		`, room.Name, room.Capacity, equipment, room.InUse, formatTime(nowOr(room.UpdatedAt)), room.ID)
		if err != nil {
			return err
		}

		updated, err = r.getRoom(ctx, tx, room.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) || errors.Is(err, persistence.ErrHasFutureBookings) {
			return persistence.Room{}, err
		}
		return persistence.Room{}, r.fail(ctx, "UpdateRoom", err, "room_id", room.ID)
	}
	return updated, nil
}

// GetRoom retrieves a room by id.
func (r *RoomRepository) GetRoom(ctx context.Context, id int64) (persistence.Room, error) {
	room, err := r.getRoom(ctx, r.helper.On(nil), id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return persistence.Room{}, err
		}
		return persistence.Room{}, r.fail(ctx, "GetRoom", err, "room_id", id)
	}
	return room, nil
}

func (r *RoomRepository) getRoom(ctx context.Context, q queryer, id int64) (persistence.Room, error) {
	row := q.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms r WHERE r.id = ?`, id)
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Room{}, persistence.ErrNotFound
		}
		return persistence.Room{}, err
	}
	return room, nil
}

// ListRooms returns all rooms ordered by name.
func (r *RoomRepository) ListRooms(ctx context.Context) ([]persistence.Room, error) {
	rooms, err := r.queryRooms(ctx, `SELECT `+roomColumns+` FROM rooms r ORDER BY r.name COLLATE NOCASE, r.id`)
	if err != nil {
		return nil, r.fail(ctx, "ListRooms", err)
	}
	return rooms, nil
}

// GetAvailableRooms returns every room that has no confirmed booking
// overlapping [start, end). Bookings touching the range at an endpoint do not
// make a room unavailable.
func (r *RoomRepository) GetAvailableRooms(ctx context.Context, start, end time.Time) ([]persistence.Room, error) {
	rooms, err := r.queryRooms(ctx, `
		SELECT `+roomColumns+`
		FROM rooms r
		WHERE NOT EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.room_id = r.id
			  AND b.status = ?
			  AND b.start_at < ?
			  AND b.end_at > ?
		)
		ORDER BY r.name COLLATE NOCASE, r.id
	`, string(persistence.BookingConfirmed), formatTime(end), formatTime(start))
	if err != nil {
		return nil, r.fail(ctx, "GetAvailableRooms", err, "start", start, "end", end)
	}
	return rooms, nil
}

// DeleteRoom removes the room's bookings and then the room in one transaction.
// It returns false without error when the room does not exist, and
// persistence.ErrHasFutureBookings when a confirmed booking starts at or after
// bookedFrom. The check and the delete run in the same write transaction.
func (r *RoomRepository) DeleteRoom(ctx context.Context, id int64, bookedFrom time.Time) (bool, error) {
	found := false
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		exists, err := r.helper.Exists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE id = ?)`, id)
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}
		if err := r.ensureNoFutureBookings(ctx, tx, id, bookedFrom); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE room_id = ?`, id); err != nil {
			return fmt.Errorf("delete room bookings: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete room: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		if errors.Is(err, persistence.ErrHasFutureBookings) {
			return false, err
		}
		return false, r.fail(ctx, "DeleteRoom", err, "room_id", id)
	}
	return found, nil
}

func (r *RoomRepository) ensureNoFutureBookings(ctx context.Context, tx *sql.Tx, roomID int64, bookedFrom time.Time) error {
	if bookedFrom.IsZero() {
		return nil
	}
	future, err := r.helper.Exists(ctx, tx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.room_id = ? AND b.status = ? AND b.start_at >= ?
		)
	`, roomID, string(persistence.BookingConfirmed), formatTime(bookedFrom))
	if err != nil {
		return err
	}
	if future {
		return persistence.ErrHasFutureBookings
	}
	return nil
}

func (r *RoomRepository) queryRooms(ctx context.Context, query string, args ...any) ([]persistence.Room, error) {
	rows, err := r.helper.On(nil).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []persistence.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rooms, nil
}

// fail maps err to a persistence sentinel and logs it when it is unexpected.
func (r *RoomRepository) fail(ctx context.Context, operation string, err error, attrs ...any) error {
	mapped := r.mapper.MapError(err)
	if !isExpected(mapped) {
		repositoryLogger(ctx, r.logger, "RoomRepository", operation, attrs...).
			ErrorContext(ctx, "room query failed", "error", err)
	}
	return mapped
}

func scanRoom(row rowScanner) (persistence.Room, error) {
	var (
		room                 persistence.Room
		equipment            string
		createdAt, updatedAt string
	)
	if err := row.Scan(&room.ID, &room.Name, &room.Capacity, &equipment, &room.InUse, &createdAt, &updatedAt); err != nil {
		return persistence.Room{}, err
	}

	var err error
	if room.Equipment, err = decodeEquipment(equipment); err != nil {
		return persistence.Room{}, err
	}
	if room.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Room{}, err
	}
	if room.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Room{}, err
	}
	return room, nil
}

func encodeEquipment(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode equipment: %w", err)
	}
	return string(encoded), nil
}

func decodeEquipment(value string) ([]string, error) {
	if value == "" {
		return nil, nil
	}
	var items []string
	if err := json.Unmarshal([]byte(value), &items); err != nil {
		return nil, fmt.Errorf("decode equipment %q: %w", value, err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items, nil
}

// isExpected reports whether err is a sentinel callers handle as a normal outcome.
func isExpected(err error) bool {
	return errors.Is(err, persistence.ErrNotFound) ||
		errors.Is(err, persistence.ErrDuplicate) ||
		errors.Is(err, persistence.ErrConflict) ||
		errors.Is(err, persistence.ErrConstraintViolation) ||
		errors.Is(err, persistence.ErrForeignKey)
}
