package application

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/conference-rooms/internal/persistence"
)

// CredentialStore exposes the user credential operations required by the auth service.
type CredentialStore interface {
	GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error)
	GetUserCredentials(ctx context.Context, id int64) (UserCredentials, error)
	CreateUser(ctx context.Context, creds UserCredentials) (User, error)
	StoreRefreshToken(ctx context.Context, userID int64, token *string, expiresAt *time.Time) error
}

// PasswordHasher derives a storable hash from a password.
type PasswordHasher func(password string) (string, error)

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// AuthService coordinates registration, login and token rotation.
type AuthService struct {
	credentials    CredentialStore
	tokens         *TokenIssuer
	hashPassword   PasswordHasher
	verifyPassword PasswordVerifier
	now            func() time.Time
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(credentials CredentialStore, tokens *TokenIssuer, hash PasswordHasher, verify PasswordVerifier, now func() time.Time) *AuthService {
	return NewAuthServiceWithLogger(credentials, tokens, hash, verify, now, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(credentials CredentialStore, tokens *TokenIssuer, hash PasswordHasher, verify PasswordVerifier, now func() time.Time, logger *slog.Logger) *AuthService {
	if hash == nil {
		hash = HashPassword
	}
	if verify == nil {
		verify = VerifyPassword
	}
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		credentials:    credentials,
		tokens:         tokens,
		hashPassword:   hash,
		verifyPassword: verify,
		now:            now,
		logger:         defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

func (s *AuthService) ready() error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	if s.credentials == nil {
		return fmt.Errorf("credential store not configured")
	}
	if s.tokens == nil {
		return fmt.Errorf("token issuer not configured")
	}
	return nil
}

// Register creates an account and signs it in.
func (s *AuthService) Register(ctx context.Context, params RegisterParams) (pair TokenPair, err error) {
	if err = s.ready(); err != nil {
		return
	}

	input := normalizeUserInput(UserInput{
		Name:     params.Name,
		Email:    params.Email,
		Password: params.Password,
		Role:     params.Role,
	})

	logger := s.loggerWith(ctx, "Register", "email", input.Email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "registration failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", pair.User.ID).InfoContext(ctx, "user registered")
	}()

	if vErr := validateUserInput(input, true); vErr.HasErrors() {
		err = vErr
		return
	}

	_, lookupErr := s.credentials.GetUserCredentialsByEmail(ctx, input.Email)
	switch {
	case lookupErr == nil:
		err = ErrAlreadyExists
		return
	case !isNotFound(lookupErr):
		err = lookupErr
		return
	}

	var hash string
	hash, err = s.hashPassword(input.Password)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	now := s.now()
	var user User
	user, err = s.credentials.CreateUser(ctx, UserCredentials{
		User: User{
			Name:      input.Name,
			Email:     input.Email,
			Role:      input.Role,
			CreatedAt: now,
			UpdatedAt: now,
		},
		PasswordHash: hash,
	})
	if err != nil {
		err = mapUserRepoError(err)
		return
	}

	pair, err = s.issuePair(ctx, user)
	return
}

// Login verifies credentials and issues a token pair.
func (s *AuthService) Login(ctx context.Context, params LoginParams) (pair TokenPair, err error) {
	if err = s.ready(); err != nil {
		return
	}

	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "Login", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "authentication failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", pair.User.ID).InfoContext(ctx, "authentication succeeded")
	}()

	if email == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var creds UserCredentials
	creds, err = s.credentials.GetUserCredentialsByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			err = ErrInvalidCredentials
		}
		return
	}

	if verifyErr := s.verifyPassword(creds.PasswordHash, params.Password); verifyErr != nil {
		err = ErrInvalidCredentials
		return
	}

	pair, err = s.issuePair(ctx, creds.User)
	return
}

// Refresh rotates a token pair. The access token may be expired but must carry
// a valid signature; the refresh token must match the stored one and be live.
func (s *AuthService) Refresh(ctx context.Context, params RefreshParams) (pair TokenPair, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Refresh")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "token refresh failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", pair.User.ID).InfoContext(ctx, "token pair rotated")
	}()

	if params.AccessToken == "" || params.RefreshToken == "" {
		err = ErrInvalidToken
		return
	}

	var principal Principal
	principal, err = s.tokens.ParseExpiredAccessToken(params.AccessToken)
	if err != nil {
		return
	}

	var creds UserCredentials
	creds, err = s.credentials.GetUserCredentials(ctx, principal.UserID)
	if err != nil {
		if isNotFound(err) {
			err = ErrInvalidToken
		}
		return
	}

	if creds.RefreshToken == nil || creds.RefreshTokenExpiresAt == nil {
		err = ErrInvalidToken
		return
	}
	if subtle.ConstantTimeCompare([]byte(*creds.RefreshToken), []byte(params.RefreshToken)) != 1 {
		err = ErrInvalidToken
		return
	}
	if !s.now().Before(*creds.RefreshTokenExpiresAt) {
		err = fmt.Errorf("%w: refresh token expired", ErrInvalidToken)
		return
	}

	pair, err = s.issuePair(ctx, creds.User)
	return
}

// ValidateAccessToken returns the principal carried by a live access token.
func (s *AuthService) ValidateAccessToken(ctx context.Context, token string) (Principal, error) {
	if s == nil || s.tokens == nil {
		return Principal{}, fmt.Errorf("AuthService is not configured")
	}
	principal, err := s.tokens.ParseAccessToken(token)
	if err != nil {
		s.loggerWith(ctx, "ValidateAccessToken").DebugContext(ctx, "access token rejected", "error", err)
		return Principal{}, err
	}
	return principal, nil
}

func (s *AuthService) issuePair(ctx context.Context, user User) (TokenPair, error) {
	access, accessExpires, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExpires, err := s.tokens.NewRefreshToken()
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.credentials.StoreRefreshToken(ctx, user.ID, &refresh, &refreshExpires); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", mapUserRepoError(err))
	}
	return TokenPair{
		User:                  user,
		AccessToken:           access,
		AccessTokenExpiresAt:  accessExpires,
		RefreshToken:          refresh,
		RefreshTokenExpiresAt: refreshExpires,
	}, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}
