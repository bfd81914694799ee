package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/conference-rooms/internal/application"
)

type capturingUserRepo struct {
	created application.UserCredentials
}

func (c *capturingUserRepo) CreateUser(ctx context.Context, creds application.UserCredentials) (application.User, error) {
	creds.User.ID = 41
	c.created = creds
	return creds.User, nil
}

func (c *capturingUserRepo) GetUser(ctx context.Context, id int64) (application.User, error) {
	return application.User{}, application.ErrNotFound
}

func (c *capturingUserRepo) UpdateUser(ctx context.Context, creds application.UserCredentials) (application.User, error) {
	return creds.User, nil
}

func (c *capturingUserRepo) DeleteUser(ctx context.Context, id int64) (bool, error) {
	return false, nil
}

func (c *capturingUserRepo) ListUsers(ctx context.Context) ([]application.User, error) {
	return nil, nil
}

type memoryCredentials struct {
	byID map[int64]application.UserCredentials
}

func (m *memoryCredentials) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	for _, creds := range m.byID {
		if creds.User.Email == email {
			return creds, nil
		}
	}
	return application.UserCredentials{}, application.ErrNotFound
}

func (m *memoryCredentials) GetUserCredentials(ctx context.Context, id int64) (application.UserCredentials, error) {
	creds, ok := m.byID[id]
	if !ok {
		return application.UserCredentials{}, application.ErrNotFound
	}
	return creds, nil
}

func (m *memoryCredentials) CreateUser(ctx context.Context, creds application.UserCredentials) (application.User, error) {
	creds.User.ID = int64(len(m.byID) + 1)
	m.byID[creds.User.ID] = creds
	return creds.User, nil
}

func (m *memoryCredentials) StoreRefreshToken(ctx context.Context, userID int64, token *string, expiresAt *time.Time) error {
	creds := m.byID[userID]
	creds.RefreshToken = token
	creds.RefreshTokenExpiresAt = expiresAt
	m.byID[userID] = creds
	return nil
}

func TestServiceFactoryNewUserService(t *testing.T) {
	factory := NewServiceFactory()
	repo := &capturingUserRepo{}

	svc := factory.NewUserService(UserServiceDeps{
		Users: repo,
		Hash:  func(pw string) (string, error) { return "hashed:" + pw, nil },
	})
	admin := NewUserFixture(WithUserID(1), WithUserRole(application.RoleAdmin)).Principal()
	input := NewUserFixture(WithUserEmail("user@example.com")).Input("secret1")

	user, err := svc.CreateUser(context.Background(), application.CreateUserParams{Principal: admin, Input: input})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	if user.ID != 41 {
		t.Fatalf("expected repository assigned ID 41, got %d", user.ID)
	}
	if repo.created.PasswordHash != "hashed:secret1" {
		t.Fatalf("unexpected password hash %q", repo.created.PasswordHash)
	}
	if !user.CreatedAt.Equal(factory.Clock.Now()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Now(), user.CreatedAt)
	}
}

func TestServiceFactoryNewAuthService(t *testing.T) {
	factory := NewServiceFactory()
	store := &memoryCredentials{byID: map[int64]application.UserCredentials{}}

	svc, err := factory.NewAuthService(AuthServiceDeps{
		Credentials: store,
		Hash:        func(pw string) (string, error) { return "hashed:" + pw, nil },
		Verify: func(hashed, pw string) error {
			if hashed != "hashed:"+pw {
				return application.ErrInvalidCredentials
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewAuthService returned error: %v", err)
	}

	pair, err := svc.Register(context.Background(), application.RegisterParams{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: "secret1",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	principal, err := svc.ValidateAccessToken(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken returned error: %v", err)
	}
	if principal.UserID != pair.User.ID || principal.Role != application.RoleUser {
		t.Fatalf("unexpected principal %+v", principal)
	}

	factory.Clock.Advance(16 * time.Minute)
	if _, err := svc.ValidateAccessToken(context.Background(), pair.AccessToken); err == nil {
		t.Fatalf("expected access token to expire with the factory clock")
	}
}
