package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/conference-rooms/internal/application"
)

type tokenValidatorStub struct {
	principals map[string]application.Principal
	err        error
}

func (s tokenValidatorStub) ValidateAccessToken(ctx context.Context, token string) (application.Principal, error) {
	if s.err != nil {
		return application.Principal{}, s.err
	}
	principal, ok := s.principals[token]
	if !ok {
		return application.Principal{}, application.ErrInvalidToken
	}
	return principal, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	validator := tokenValidatorStub{principals: map[string]application.Principal{
		"good": {UserID: 7, Role: application.RoleUser},
	}}

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing header", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer bad", status: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer good", status: http.StatusNoContent},
		{name: "case insensitive scheme", header: "bearer good", status: http.StatusNoContent},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var seen application.Principal
			handler := RequireAuth(validator, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = PrincipalFromContext(r.Context())
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rec.Code)
			}
			if tc.status == http.StatusNoContent && seen.UserID != 7 {
				t.Fatalf("expected principal in context, got %+v", seen)
			}
		})
	}

	t.Run("maps unexpected validator failures to 500", func(t *testing.T) {
		t.Parallel()

		handler := RequireAuth(tokenValidatorStub{err: errors.New("boom")}, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("next handler should not be called")
		}))
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer any")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
	})
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := RequireAdmin(discardLogger())(next)

	cases := []struct {
		name      string
		principal *application.Principal
		status    int
	}{
		{"no principal", nil, http.StatusUnauthorized},
		{"regular user", &application.Principal{UserID: 2, Role: application.RoleUser}, http.StatusForbidden},
		{"administrator", &application.Principal{UserID: 1, Role: application.RoleAdmin}, http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if tc.principal != nil {
			req = req.WithContext(ContextWithPrincipal(req.Context(), *tc.principal))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, rec.Code)
		}
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var fromContext bool
	handler := RequestLogger(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromContext = LoggerFromContext(r.Context()) != nil
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if !fromContext {
		t.Fatalf("expected request logger in context")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected wrapped status to pass through, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	limiter := NewIPRateLimiter(1, 2, time.Minute)
	now := time.Date(2024, time.March, 14, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	handler := RateLimit(limiter, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if call("10.0.0.1:1000") != http.StatusNoContent || call("10.0.0.1:1001") != http.StatusNoContent {
		t.Fatalf("expected burst to be admitted")
	}
	if got := call("10.0.0.1:1002"); got != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", got)
	}
	if got := call("10.0.0.2:1000"); got != http.StatusNoContent {
		t.Fatalf("expected other clients to have their own bucket, got %d", got)
	}

	now = now.Add(time.Second)
	if got := call("10.0.0.1:1003"); got != http.StatusNoContent {
		t.Fatalf("expected bucket to refill, got %d", got)
	}

	now = now.Add(2 * time.Minute)
	call("10.0.0.3:1000")
	limiter.mu.Lock()
	remaining := len(limiter.visitors)
	limiter.mu.Unlock()
	if remaining != 1 {
		t.Fatalf("expected idle visitors to be swept, got %d", remaining)
	}
}
