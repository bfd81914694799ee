package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func unsetRoomsEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "ROOMS_") {
			// Register restoration before unsetting.
			t.Setenv(key, "")
			if err := os.Unsetenv(key); err != nil {
				t.Fatalf("failed to unset %s: %v", key, err)
			}
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {
	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		unsetRoomsEnv(t)
		t.Setenv("ROOMS_JWT_SECRET", testSecret)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.SQLitePath != "rooms.db" {
			t.Fatalf("unexpected default path: %q", cfg.SQLitePath)
		}
		if cfg.AccessTokenTTL != 15*time.Minute || cfg.RefreshTokenTTL != 168*time.Hour {
			t.Fatalf("unexpected token TTLs: %s / %s", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
		}
		if cfg.AuthRateLimit != 5 || cfg.AuthRateBurst != 10 {
			t.Fatalf("unexpected rate limit defaults: %v / %d", cfg.AuthRateLimit, cfg.AuthRateBurst)
		}
		if cfg.KafkaTopic != "room-bookings" || cfg.KafkaBrokers != nil || cfg.RedisAddr != "" {
			t.Fatalf("unexpected integration defaults: %+v", cfg)
		}
		if cfg.Equipment != nil {
			t.Fatalf("expected no equipment override, got %v", cfg.Equipment)
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		unsetRoomsEnv(t)

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "required environment variables are not set: ROOMS_JWT_SECRET"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("reports every invalid key", func(t *testing.T) {
		unsetRoomsEnv(t)
		t.Setenv("ROOMS_JWT_SECRET", "short")
		t.Setenv("ROOMS_HTTP_PORT", "eighty")
		t.Setenv("ROOMS_ACCESS_TOKEN_TTL", "-1m")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		for _, key := range []string{"ROOMS_JWT_SECRET", "ROOMS_HTTP_PORT", "ROOMS_ACCESS_TOKEN_TTL"} {
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("expected %s in %q", key, err.Error())
			}
		}
	})

	t.Run("parses durations lists and numeric fields", func(t *testing.T) {
		unsetRoomsEnv(t)
		t.Setenv("ROOMS_JWT_SECRET", testSecret)
		t.Setenv("ROOMS_HTTP_PORT", "9090")
		t.Setenv("ROOMS_SQLITE_PATH", "/tmp/rooms.db")
		t.Setenv("ROOMS_ACCESS_TOKEN_TTL", "5m")
		t.Setenv("ROOMS_REFRESH_TOKEN_TTL", "24h")
		t.Setenv("ROOMS_EQUIPMENT", "Projector, Speakerphone ,,")
		t.Setenv("ROOMS_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
		t.Setenv("ROOMS_AUTH_RATE_LIMIT", "0.5")
		t.Setenv("ROOMS_AUTH_RATE_BURST", "3")
		t.Setenv("ROOMS_REDIS_ADDR", "localhost:6379")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 || cfg.SQLitePath != "/tmp/rooms.db" {
			t.Fatalf("unexpected server settings: %+v", cfg)
		}
		if cfg.AccessTokenTTL != 5*time.Minute || cfg.RefreshTokenTTL != 24*time.Hour {
			t.Fatalf("unexpected TTLs: %s / %s", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
		}
		if !reflect.DeepEqual(cfg.Equipment, []string{"Projector", "Speakerphone"}) {
			t.Fatalf("unexpected equipment: %v", cfg.Equipment)
		}
		if !reflect.DeepEqual(cfg.KafkaBrokers, []string{"kafka-1:9092", "kafka-2:9092"}) {
			t.Fatalf("unexpected brokers: %v", cfg.KafkaBrokers)
		}
		if cfg.AuthRateLimit != 0.5 || cfg.AuthRateBurst != 3 {
			t.Fatalf("unexpected rate limit: %v / %d", cfg.AuthRateLimit, cfg.AuthRateBurst)
		}
		if cfg.RedisAddr != "localhost:6379" {
			t.Fatalf("unexpected redis address: %q", cfg.RedisAddr)
		}
	})
}
