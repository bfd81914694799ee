package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/conference-rooms/internal/persistence"
)

const userColumns = `id, name, email, password_hash, role, refresh_token, refresh_token_expires_at, created_at, updated_at`

// UserRepository implements persistence.UserRepository using SQLite
type UserRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	logger *slog.Logger
}

// NewUserRepository creates a new SQLite user repository
func NewUserRepository(pool *ConnectionPool, logger *slog.Logger) *UserRepository {
	return &UserRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		logger: logger,
	}
}

// CreateUser inserts a new user. Emails are stored lower-cased and must be unique.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) (persistence.User, error) {
	if user.PasswordHash == "" {
		return persistence.User{}, persistence.ErrConstraintViolation
	}
	if user.Role == "" {
		user.Role = persistence.RoleUser
	}
	user.Email = normalizeEmail(user.Email)
	user.CreatedAt = nowOr(user.CreatedAt)
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	result, err := r.helper.On(nil).ExecContext(ctx, `
		INSERT INTO users (name, email, password_hash, role, refresh_token, refresh_token_expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		user.Name,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		nullableString(user.RefreshToken),
		formatNullableTime(user.RefreshTokenExpiresAt),
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if err != nil {
		return persistence.User{}, r.fail(ctx, "CreateUser", err, "email", user.Email)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return persistence.User{}, fmt.Errorf("failed to read user id: %w", err)
	}
	return r.GetUser(ctx, id)
}

// UpdateUser overwrites the profile fields of an existing user.
func (r *UserRepository) UpdateUser(ctx context.Context, user persistence.User) (persistence.User, error) {
	if user.PasswordHash == "" {
		return persistence.User{}, persistence.ErrConstraintViolation
	}

	result, err := r.helper.On(nil).ExecContext(ctx, `
		UPDATE users
		SET name = ?, email = ?, password_hash = ?, role = ?, updated_at = ?
		WHERE id = ?
	`,
		user.Name,
		normalizeEmail(user.Email),
		user.PasswordHash,
		string(user.Role),
		formatTime(nowOr(user.UpdatedAt)),
		user.ID,
	)
	if err != nil {
		return persistence.User{}, r.fail(ctx, "UpdateUser", err, "user_id", user.ID)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.User{}, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return persistence.User{}, persistence.ErrNotFound
	}
	return r.GetUser(ctx, user.ID)
}

// GetUser retrieves a user by id.
func (r *UserRepository) GetUser(ctx context.Context, id int64) (persistence.User, error) {
	return r.getOne(ctx, "GetUser", `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	return r.getOne(ctx, "GetUserByEmail", `SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email))
}

func (r *UserRepository) getOne(ctx context.Context, operation, query string, arg any) (persistence.User, error) {
	user, err := scanUser(r.helper.On(nil).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.User{}, persistence.ErrNotFound
		}
		return persistence.User{}, r.fail(ctx, operation, err)
	}
	return user, nil
}

// ListUsers returns all users ordered by id.
func (r *UserRepository) ListUsers(ctx context.Context) ([]persistence.User, error) {
	rows, err := r.helper.On(nil).QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, r.fail(ctx, "ListUsers", err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, r.fail(ctx, "ListUsers", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, r.fail(ctx, "ListUsers", err)
	}
	return users, nil
}

// DeleteUser removes the user's bookings and then the user in one
// transaction. It returns false without error when the user does not exist.
func (r *UserRepository) DeleteUser(ctx context.Context, id int64) (bool, error) {
	found := false
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("delete user bookings: %w", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		found = affected > 0
		return nil
	})
	if err != nil {
		return false, r.fail(ctx, "DeleteUser", err, "user_id", id)
	}
	return found, nil
}

// UpdateRefreshToken stores or clears the user's refresh token.
func (r *UserRepository) UpdateRefreshToken(ctx context.Context, userID int64, token *string, expiresAt *time.Time) error {
	result, err := r.helper.On(nil).ExecContext(ctx, `
		UPDATE users
		SET refresh_token = ?, refresh_token_expires_at = ?, updated_at = ?
		WHERE id = ?
	`, nullableString(token), formatNullableTime(expiresAt), formatTime(time.Now()), userID)
	if err != nil {
		return r.fail(ctx, "UpdateRefreshToken", err, "user_id", userID)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (r *UserRepository) fail(ctx context.Context, operation string, err error, attrs ...any) error {
	mapped := r.mapper.MapError(err)
	if !isExpected(mapped) {
		repositoryLogger(ctx, r.logger, "UserRepository", operation, attrs...).
			ErrorContext(ctx, "user query failed", "error", err)
	}
	return mapped
}

func scanUser(row rowScanner) (persistence.User, error) {
	var (
		user                 persistence.User
		role                 string
		refreshToken         sql.NullString
		refreshExpiresAt     sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&role,
		&refreshToken,
		&refreshExpiresAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.User{}, err
	}

	user.Role = persistence.Role(role)
	if refreshToken.Valid {
		token := refreshToken.String
		user.RefreshToken = &token
	}

	var err error
	if user.RefreshTokenExpiresAt, err = parseNullableTime(refreshExpiresAt); err != nil {
		return persistence.User{}, err
	}
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.User{}, err
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullableString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
