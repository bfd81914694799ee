package application

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const refreshTokenBytes = 64

// TokenConfig configures a TokenIssuer.
type TokenConfig struct {
	Secret          []byte
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// AccessClaims are the JWT claims carried by access tokens.
type AccessClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and parses HS256 access tokens and mints opaque refresh tokens.
type TokenIssuer struct {
	config TokenConfig
	now    func() time.Time
}

// NewTokenIssuer validates cfg and returns an issuer. The secret must be at
// least 32 bytes.
func NewTokenIssuer(cfg TokenConfig, now func() time.Time) (*TokenIssuer, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("token secret must be at least 32 bytes")
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{config: cfg, now: now}, nil
}

// RefreshTokenTTL returns the configured refresh token lifetime.
func (t *TokenIssuer) RefreshTokenTTL() time.Duration {
	return t.config.RefreshTokenTTL
}

// IssueAccessToken signs an access token for user.
func (t *TokenIssuer) IssueAccessToken(user User) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.config.AccessTokenTTL)

	claims := AccessClaims{
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    t.config.Issuer,
			Audience:  jwt.ClaimStrings{t.config.Audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.config.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseAccessToken validates signature, issuer, audience and expiry and
// returns the principal the token was issued to.
func (t *TokenIssuer) ParseAccessToken(token string) (Principal, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, t.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.config.Issuer),
		jwt.WithAudience(t.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.principal()
}

// ParseExpiredAccessToken validates signature, issuer and audience but
// accepts an expired token. It backs the refresh flow.
func (t *TokenIssuer) ParseExpiredAccessToken(token string) (Principal, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, t.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Issuer != t.config.Issuer || !slices.Contains(claims.Audience, t.config.Audience) {
		return Principal{}, fmt.Errorf("%w: unexpected issuer or audience", ErrInvalidToken)
	}
	return claims.principal()
}

// NewRefreshToken returns 64 random bytes encoded as base64url together with
// its expiry.
func (t *TokenIssuer) NewRefreshToken() (string, time.Time, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), t.now().Add(t.config.RefreshTokenTTL), nil
}

func (t *TokenIssuer) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, jwt.ErrSignatureInvalid
	}
	return t.config.Secret, nil
}

func (c *AccessClaims) principal() (Principal, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Principal{}, fmt.Errorf("%w: invalid subject", ErrInvalidToken)
	}
	if !c.Role.Valid() {
		return Principal{}, fmt.Errorf("%w: invalid role", ErrInvalidToken)
	}
	return Principal{UserID: id, Name: c.Name, Email: c.Email, Role: c.Role}, nil
}
