package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment so main
// stays lean.
type Config struct {
	Addr       string
	SignInPath string

	PostgresDSN string
	Redis       RedisConfig

	JWTSigningKey   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// AdminVerifyTimeout bounds the background check against the
	// authoritative admin table. Optimistic cached status unblocks callers
	// while this runs.
	AdminVerifyTimeout time.Duration

	// SettingsChannel is the pub/sub channel carrying full settings-row
	// snapshots to every mirror.
	SettingsChannel string

	Kafka KafkaConfig
}

// RedisConfig holds connection tuning for the Redis-backed stores.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the optional audit pipeline. Empty brokers disable
// Kafka publishing; audit events then stay on the in-memory store.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables with development
// defaults. Production deployments override every secret-bearing value.
func FromEnv() Config {
	cfg := Config{
		Addr:               envOr("SHOPGATE_ADDR", ":8080"),
		SignInPath:         envOr("SHOPGATE_SIGNIN_PATH", "/signin"),
		PostgresDSN:        os.Getenv("SHOPGATE_POSTGRES_DSN"),
		JWTSigningKey:      envOr("SHOPGATE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		AccessTokenTTL:     envDurationOr("SHOPGATE_ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:    envDurationOr("SHOPGATE_REFRESH_TOKEN_TTL", 30*24*time.Hour),
		AdminVerifyTimeout: envDurationOr("SHOPGATE_ADMIN_VERIFY_TIMEOUT", 10*time.Second),
		SettingsChannel:    envOr("SHOPGATE_SETTINGS_CHANNEL", "shopgate:settings"),
		Redis: RedisConfig{
			URL:          os.Getenv("SHOPGATE_REDIS_URL"),
			PoolSize:     envIntOr("SHOPGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("SHOPGATE_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDurationOr("SHOPGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("SHOPGATE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("SHOPGATE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Topic: envOr("SHOPGATE_KAFKA_AUDIT_TOPIC", "shopgate.audit"),
		},
	}

	if brokers := os.Getenv("SHOPGATE_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitAndTrim(brokers)
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
