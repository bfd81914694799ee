package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/conference-rooms/internal/persistence"
)

type userRepoStub struct {
	users map[int64]UserCredentials

	createErr error
	created   UserCredentials
	updated   UserCredentials
	deleted   []int64
}

func newUserRepoStub(users ...User) *userRepoStub {
	repo := &userRepoStub{users: make(map[int64]UserCredentials)}
	for _, u := range users {
		repo.users[u.ID] = UserCredentials{User: u, PasswordHash: "hashed:original"}
	}
	return repo
}

func (r *userRepoStub) CreateUser(ctx context.Context, creds UserCredentials) (User, error) {
	if r.createErr != nil {
		return User{}, r.createErr
	}
	creds.User.ID = int64(len(r.users) + 100)
	r.created = creds
	r.users[creds.User.ID] = creds
	return creds.User, nil
}

func (r *userRepoStub) GetUser(ctx context.Context, id int64) (User, error) {
	creds, ok := r.users[id]
	if !ok {
		return User{}, persistence.ErrNotFound
	}
	return creds.User, nil
}

func (r *userRepoStub) UpdateUser(ctx context.Context, creds UserCredentials) (User, error) {
	if _, ok := r.users[creds.User.ID]; !ok {
		return User{}, persistence.ErrNotFound
	}
	r.updated = creds
	return creds.User, nil
}

func (r *userRepoStub) DeleteUser(ctx context.Context, id int64) (bool, error) {
	if _, ok := r.users[id]; !ok {
		return false, nil
	}
	delete(r.users, id)
	r.deleted = append(r.deleted, id)
	return true, nil
}

func (r *userRepoStub) ListUsers(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(r.users))
	for _, creds := range r.users {
		out = append(out, creds.User)
	}
	return out, nil
}

func TestUserService_CreateUser(t *testing.T) {
	t.Run("requires administrator privileges", func(t *testing.T) {
		svc := NewUserService(newUserRepoStub(), plainHash, fixedNow)

		_, err := svc.CreateUser(context.Background(), CreateUserParams{
			Principal: plainUser,
			Input:     UserInput{Name: "Grace", Email: "grace@example.com", Password: "secret1"},
		})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("validates input fields including email format", func(t *testing.T) {
		svc := NewUserService(newUserRepoStub(), plainHash, fixedNow)

		_, err := svc.CreateUser(context.Background(), CreateUserParams{
			Principal: adminUser,
			Input:     UserInput{Name: "Grace", Email: "grace at example", Password: ""},
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if vErr.FieldErrors["email"] == "" || vErr.FieldErrors["password"] == "" {
			t.Fatalf("expected email and password errors, got %v", vErr.FieldErrors)
		}
	})

	t.Run("persists users for administrators", func(t *testing.T) {
		repo := newUserRepoStub()
		svc := NewUserService(repo, plainHash, fixedNow)

		user, err := svc.CreateUser(context.Background(), CreateUserParams{
			Principal: adminUser,
			Input:     UserInput{Name: "Grace", Email: "Grace@Example.com", Password: "secret1", Role: RoleAdmin},
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if user.Email != "grace@example.com" || user.Role != RoleAdmin {
			t.Fatalf("unexpected user %+v", user)
		}
		if repo.created.PasswordHash != "hashed:secret1" {
			t.Fatalf("expected hashed password, got %q", repo.created.PasswordHash)
		}
		if !repo.created.User.CreatedAt.Equal(serviceNow) {
			t.Fatalf("expected creation time from clock, got %v", repo.created.User.CreatedAt)
		}
	})

	t.Run("maps duplicate email violations to sentinel errors", func(t *testing.T) {
		repo := newUserRepoStub()
		repo.createErr = persistence.ErrDuplicate
		svc := NewUserService(repo, plainHash, fixedNow)

		_, err := svc.CreateUser(context.Background(), CreateUserParams{
			Principal: adminUser,
			Input:     UserInput{Name: "Grace", Email: "grace@example.com", Password: "secret1"},
		})
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})
}

func TestUserService_UpdateUser(t *testing.T) {
	existing := User{ID: 5, Name: "Grace", Email: "grace@example.com", Role: RoleUser}

	t.Run("requires administrator privileges", func(t *testing.T) {
		svc := NewUserService(newUserRepoStub(existing), plainHash, fixedNow)

		_, err := svc.UpdateUser(context.Background(), UpdateUserParams{Principal: plainUser, UserID: 5})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("propagates ErrNotFound when the user is missing", func(t *testing.T) {
		svc := NewUserService(newUserRepoStub(), plainHash, fixedNow)

		_, err := svc.UpdateUser(context.Background(), UpdateUserParams{
			Principal: adminUser,
			UserID:    5,
			Input:     UserInput{Name: "Grace", Email: "grace@example.com"},
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("keeps the password when none is supplied", func(t *testing.T) {
		repo := newUserRepoStub(existing)
		svc := NewUserService(repo, plainHash, fixedNow)

		user, err := svc.UpdateUser(context.Background(), UpdateUserParams{
			Principal: adminUser,
			UserID:    5,
			Input:     UserInput{Name: "Grace Hopper", Email: "grace@example.com", Role: RoleAdmin},
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if user.Name != "Grace Hopper" || user.Role != RoleAdmin {
			t.Fatalf("unexpected user %+v", user)
		}
		if repo.updated.PasswordHash != "" {
			t.Fatalf("expected empty hash to keep the stored password, got %q", repo.updated.PasswordHash)
		}
	})

	t.Run("hashes a new password", func(t *testing.T) {
		repo := newUserRepoStub(existing)
		svc := NewUserService(repo, plainHash, fixedNow)

		if _, err := svc.UpdateUser(context.Background(), UpdateUserParams{
			Principal: adminUser,
			UserID:    5,
			Input:     UserInput{Name: "Grace", Email: "grace@example.com", Password: "better1"},
		}); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if repo.updated.PasswordHash != "hashed:better1" {
			t.Fatalf("expected new hash, got %q", repo.updated.PasswordHash)
		}
	})

	t.Run("rejects short passwords", func(t *testing.T) {
		svc := NewUserService(newUserRepoStub(existing), plainHash, fixedNow)

		_, err := svc.UpdateUser(context.Background(), UpdateUserParams{
			Principal: adminUser,
			UserID:    5,
			Input:     UserInput{Name: "Grace", Email: "grace@example.com", Password: "abc"},
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["password"] == "" {
			t.Fatalf("expected password validation error, got %v", err)
		}
	})
}

func TestUserService_DeleteAndList(t *testing.T) {
	repo := newUserRepoStub(User{ID: 5, Name: "Grace"}, User{ID: 6, Name: "Linus"})
	svc := NewUserService(repo, plainHash, fixedNow)
	ctx := context.Background()

	if _, err := svc.ListUsers(ctx, plainUser); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if users, err := svc.ListUsers(ctx, adminUser); err != nil || len(users) != 2 {
		t.Fatalf("expected two users, got %v (%v)", users, err)
	}

	if err := svc.DeleteUser(ctx, plainUser, 5); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.DeleteUser(ctx, adminUser, 5); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if err := svc.DeleteUser(ctx, adminUser, 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	if _, err := svc.GetUser(ctx, adminUser, 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted user to be gone, got %v", err)
	}
	if user, err := svc.GetUser(ctx, adminUser, 6); err != nil || user.Name != "Linus" {
		t.Fatalf("expected Linus, got %+v (%v)", user, err)
	}
}
