package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minJWTSecretLength = 32

// Config captures environment driven configuration values for the rooms API.
type Config struct {
	HTTPPort        int
	SQLitePath      string
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Equipment       []string
	CORSOrigins     []string
	AuthRateLimit   float64
	AuthRateBurst   int
	RedisAddr       string
	KafkaBrokers    []string
	KafkaTopic      string
	LogFormat       string
	LogLevel        string
}

// Load reads a .env file when one exists and then parses configuration values
// from the process environment.
//
// Optional fields fall back to defaults. Every missing or invalid key is
// reported in a single error.
func Load() (Config, error) {
	_ = godotenv.Load()
	return parse(os.LookupEnv)
}

func parse(lookup func(string) (string, bool)) (Config, error) {
	cfg := Config{
		HTTPPort:        8080,
		SQLitePath:      "rooms.db",
		JWTIssuer:       "conference-rooms",
		JWTAudience:     "conference-rooms-clients",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		AuthRateLimit:   5,
		AuthRateBurst:   10,
		KafkaTopic:      "room-bookings",
		LogFormat:       "json",
		LogLevel:        "info",
	}

	env := func(key string) string {
		value, _ := lookup(key)
		return strings.TrimSpace(value)
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if portValue := env("ROOMS_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "ROOMS_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if path := env("ROOMS_SQLITE_PATH"); path != "" {
		cfg.SQLitePath = path
	}

	switch secret := env("ROOMS_JWT_SECRET"); {
	case secret == "":
		missing = append(missing, "ROOMS_JWT_SECRET")
	case len(secret) < minJWTSecretLength:
		invalid = append(invalid, "ROOMS_JWT_SECRET")
	default:
		cfg.JWTSecret = secret
	}

	if issuer := env("ROOMS_JWT_ISSUER"); issuer != "" {
		cfg.JWTIssuer = issuer
	}
	if audience := env("ROOMS_JWT_AUDIENCE"); audience != "" {
		cfg.JWTAudience = audience
	}

	if ttl, ok := parseDuration(env("ROOMS_ACCESS_TOKEN_TTL")); !ok {
		invalid = append(invalid, "ROOMS_ACCESS_TOKEN_TTL")
	} else if ttl > 0 {
		cfg.AccessTokenTTL = ttl
	}
	if ttl, ok := parseDuration(env("ROOMS_REFRESH_TOKEN_TTL")); !ok {
		invalid = append(invalid, "ROOMS_REFRESH_TOKEN_TTL")
	} else if ttl > 0 {
		cfg.RefreshTokenTTL = ttl
	}

	cfg.Equipment = splitList(env("ROOMS_EQUIPMENT"))
	cfg.CORSOrigins = splitList(env("ROOMS_CORS_ORIGINS"))

	if limitValue := env("ROOMS_AUTH_RATE_LIMIT"); limitValue != "" {
		limit, err := strconv.ParseFloat(limitValue, 64)
		if err != nil || limit <= 0 {
			invalid = append(invalid, "ROOMS_AUTH_RATE_LIMIT")
		} else {
			cfg.AuthRateLimit = limit
		}
	}
	if burstValue := env("ROOMS_AUTH_RATE_BURST"); burstValue != "" {
		burst, err := strconv.Atoi(burstValue)
		if err != nil || burst <= 0 {
			invalid = append(invalid, "ROOMS_AUTH_RATE_BURST")
		} else {
			cfg.AuthRateBurst = burst
		}
	}

	cfg.RedisAddr = env("ROOMS_REDIS_ADDR")
	cfg.KafkaBrokers = splitList(env("ROOMS_KAFKA_BROKERS"))
	if topic := env("ROOMS_KAFKA_TOPIC"); topic != "" {
		cfg.KafkaTopic = topic
	}

	if format := strings.ToLower(env("ROOMS_LOG_FORMAT")); format != "" {
		if format != "json" && format != "text" {
			invalid = append(invalid, "ROOMS_LOG_FORMAT")
		} else {
			cfg.LogFormat = format
		}
	}
	if level := env("ROOMS_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// parseDuration returns ok=false only for malformed or negative values. An
// empty value yields zero.
func parseDuration(value string) (time.Duration, bool) {
	if value == "" {
		return 0, true
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
