package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/conference-rooms/internal/application"
	"github.com/example/conference-rooms/internal/config"
	"github.com/example/conference-rooms/internal/events"
	httptransport "github.com/example/conference-rooms/internal/http"
	"github.com/example/conference-rooms/internal/lock"
	"github.com/example/conference-rooms/internal/logging"
	"github.com/example/conference-rooms/internal/persistence/sqlite"
	"github.com/example/conference-rooms/internal/persistence/sqlite/migration"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logging.New("json", "info", os.Stderr).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stdout)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("rooms API stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	app, err := newApp(ctx, cfg, migration.DefaultSQLiteConfig(cfg.SQLitePath), logger)
	if err != nil {
		return err
	}
	defer app.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("rooms API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// app owns every long lived resource of the API process.
type app struct {
	handler http.Handler
	closers []func() error
	logger  *slog.Logger
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("failed to release resource", "error", err)
		}
	}
	a.closers = nil
}

func newApp(ctx context.Context, cfg config.Config, dbConfig migration.SQLiteConfig, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	storage, err := sqlite.Open(dbConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.closers = append(a.closers, storage.Close)

	if err := storage.Migrate(ctx); err != nil {
		return nil, err
	}

	locker, err := newLocker(ctx, cfg, logger, a)
	if err != nil {
		return nil, err
	}

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, publisher.Close)

	tokens, err := application.NewTokenIssuer(application.TokenConfig{
		Secret:          []byte(cfg.JWTSecret),
		Issuer:          cfg.JWTIssuer,
		Audience:        cfg.JWTAudience,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	}, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure tokens: %w", err)
	}

	now := time.Now
	users := newUserStore(storage.Users)
	rooms := newRoomStore(storage.Rooms)
	bookings := newBookingStore(storage.Bookings)

	authService := application.NewAuthServiceWithLogger(users, tokens, nil, nil, now, logger)
	userService := application.NewUserServiceWithLogger(users, nil, now, logger)
	roomService := application.NewRoomServiceWithLogger(rooms, cfg.Equipment, now, logger)
	bookingService := application.NewBookingService(application.BookingServiceDeps{
		Bookings:  bookings,
		Rooms:     rooms,
		Users:     users,
		Locker:    locker,
		Publisher: publisher,
		Now:       now,
		Logger:    logger,
	})

	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Auth:           httptransport.NewAuthHandler(authService, logger),
		Users:          httptransport.NewUserHandler(userService, logger),
		Rooms:          httptransport.NewRoomHandler(roomService, logger),
		Bookings:       httptransport.NewBookingHandler(bookingService, logger),
		Tokens:         authService,
		Health:         storage,
		AuthLimiter:    httptransport.NewIPRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst, 10*time.Minute),
		AllowedOrigins: cfg.CORSOrigins,
		Logger:         logger,
	})

	logger.Info("rooms API configured",
		"sqlite_path", dbConfig.Path,
		"distributed_lock", cfg.RedisAddr != "",
		"events", len(cfg.KafkaBrokers) > 0,
		"equipment", roomService.Equipment(),
	)
	return a, nil
}

// newLocker returns a Redis backed lock when an address is configured so
// several API processes serialize bookings of the same room.
func newLocker(ctx context.Context, cfg config.Config, logger *slog.Logger, a *app) (lock.Locker, error) {
	if cfg.RedisAddr == "" {
		return lock.NewLocalLocker(), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	a.closers = append(a.closers, client.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	return lock.NewRedisLocker(client, lock.DefaultRedisOptions(), logger), nil
}

func newPublisher(cfg config.Config, logger *slog.Logger) (events.Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NopPublisher{}, nil
	}
	publisher, err := events.NewKafkaPublisher(events.KafkaConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("configure kafka publisher: %w", err)
	}
	return publisher, nil
}
