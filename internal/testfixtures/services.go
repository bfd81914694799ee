package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/conference-rooms/internal/application"
	"github.com/example/conference-rooms/internal/events"
	"github.com/example/conference-rooms/internal/lock"
)

// TestTokenSecret is a 32 byte signing secret for tests.
const TestTokenSecret = "test-secret-test-secret-test-sec"

// ServiceFactory assists tests with constructing application services using a
// shared deterministic clock.
type ServiceFactory struct {
	Clock *Clock
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{Clock: NewClock(time.Time{})}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

func (f *ServiceFactory) now(override func() time.Time) func() time.Time {
	if override != nil {
		return override
	}
	return f.Clock.NowFunc()
}

// RoomServiceDeps captures dependencies for constructing a room service.
type RoomServiceDeps struct {
	Rooms     application.RoomRepository
	Equipment []string
	Now       func() time.Time
	Logger    *slog.Logger
}

// NewRoomService builds a room service using the supplied dependencies.
func (f *ServiceFactory) NewRoomService(deps RoomServiceDeps) *application.RoomService {
	return application.NewRoomServiceWithLogger(deps.Rooms, deps.Equipment, f.now(deps.Now), deps.Logger)
}

// BookingServiceDeps captures dependencies for constructing a booking service.
type BookingServiceDeps struct {
	Bookings  application.BookingRepository
	Rooms     application.RoomCatalog
	Users     application.UserDirectory
	Locker    lock.Locker
	Publisher events.Publisher
	Now       func() time.Time
	Logger    *slog.Logger
}

// NewBookingService builds a booking service using the supplied dependencies.
func (f *ServiceFactory) NewBookingService(deps BookingServiceDeps) *application.BookingService {
	return application.NewBookingService(application.BookingServiceDeps{
		Bookings:  deps.Bookings,
		Rooms:     deps.Rooms,
		Users:     deps.Users,
		Locker:    deps.Locker,
		Publisher: deps.Publisher,
		Now:       f.now(deps.Now),
		Logger:    deps.Logger,
	})
}

// UserServiceDeps captures dependencies for constructing a user service.
type UserServiceDeps struct {
	Users  application.UserRepository
	Hash   application.PasswordHasher
	Now    func() time.Time
	Logger *slog.Logger
}

// NewUserService builds a user service using the supplied dependencies.
func (f *ServiceFactory) NewUserService(deps UserServiceDeps) *application.UserService {
	return application.NewUserServiceWithLogger(deps.Users, deps.Hash, f.now(deps.Now), deps.Logger)
}

// AuthServiceDeps captures dependencies for constructing an auth service.
type AuthServiceDeps struct {
	Credentials application.CredentialStore
	Hash        application.PasswordHasher
	Verify      application.PasswordVerifier
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewTokenIssuer returns an issuer signing with TestTokenSecret on the factory clock.
func (f *ServiceFactory) NewTokenIssuer() (*application.TokenIssuer, error) {
	return application.NewTokenIssuer(application.TokenConfig{
		Secret:   []byte(TestTokenSecret),
		Issuer:   "conference-rooms",
		Audience: "conference-rooms-clients",
	}, f.Clock.NowFunc())
}

// NewAuthService builds an auth service using the supplied dependencies and a
// token issuer from NewTokenIssuer.
func (f *ServiceFactory) NewAuthService(deps AuthServiceDeps) (*application.AuthService, error) {
	tokens, err := f.NewTokenIssuer()
	if err != nil {
		return nil, err
	}
	return application.NewAuthServiceWithLogger(deps.Credentials, tokens, deps.Hash, deps.Verify, f.now(deps.Now), deps.Logger), nil
}
