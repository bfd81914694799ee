package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Pinger reports whether the backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Auth           *AuthHandler
	Users          *UserHandler
	Rooms          *RoomHandler
	Bookings       *BookingHandler
	Tokens         TokenValidator
	Health         Pinger
	AuthLimiter    *IPRateLimiter
	AllowedOrigins []string
	Logger         *slog.Logger
	Middleware     []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	responder := newResponder(logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		responder.writeError(req.Context(), w, http.StatusNotFound, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		responder.writeJSON(req.Context(), w, http.StatusMethodNotAllowed, errorResponse{Message: http.StatusText(http.StatusMethodNotAllowed)})
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Health.Ping(ctx); err != nil {
				responder.writeError(req.Context(), w, http.StatusServiceUnavailable, errDatabaseUnhealthy)
				return
			}
		}
		responder.writeJSON(req.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		if cfg.Auth != nil {
			api.Route("/auth", func(auth chi.Router) {
				auth.Use(RateLimit(cfg.AuthLimiter, logger))
				auth.Post("/register", cfg.Auth.Register)
				auth.Post("/login", cfg.Auth.Login)
				auth.Post("/refresh-token", cfg.Auth.Refresh)
			})
		}

		api.Group(func(protected chi.Router) {
			protected.Use(RequireAuth(cfg.Tokens, logger))

			if cfg.Bookings != nil {
				protected.Route("/booking", func(b chi.Router) {
					b.Post("/", cfg.Bookings.Create)
					b.Get("/", cfg.Bookings.List)
					b.Get("/{id}", cfg.Bookings.Get)
					b.Delete("/{id}", cfg.Bookings.Cancel)
				})
			}

			if cfg.Rooms != nil {
				protected.Route("/room", func(rooms chi.Router) {
					rooms.Get("/get-all", cfg.Rooms.List)
					rooms.Get("/available", cfg.Rooms.Available)
					rooms.Get("/{id}", cfg.Rooms.Get)

					rooms.Group(func(admin chi.Router) {
						admin.Use(RequireAdmin(logger))
						admin.Post("/create", cfg.Rooms.Create)
						admin.Put("/{id}", cfg.Rooms.Update)
						admin.Delete("/{id}", cfg.Rooms.Delete)
					})
				})
			}

			if cfg.Users != nil {
				protected.Route("/admin/users", func(users chi.Router) {
					users.Use(RequireAdmin(logger))
					users.Get("/", cfg.Users.List)
					users.Post("/", cfg.Users.Create)
					users.Get("/{id}", cfg.Users.Get)
					users.Put("/{id}", cfg.Users.Update)
					users.Delete("/{id}", cfg.Users.Delete)
				})
			}
		})
	})

	return r
}
