package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	TokenTTL      time.Duration
}

// Postgres holds the database connection settings. An empty DSN means the
// service runs on the in-memory stores.
type Postgres struct {
	DSN string
}

// Redis holds cache, queue and pub/sub connection settings. An empty URL
// means Redis is not configured and the in-process fallbacks are used.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka holds the audit stream settings. Empty brokers disable publishing.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

// Crypto holds the key protecting document ids at rest.
type Crypto struct {
	EncryptionKey string
}

// Config is the full runtime configuration assembled from the environment.
type Config struct {
	Server   Server
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
	Crypto   Crypto
}

// Cache retention windows.
var (
	ApplicationCacheTTL = 10 * time.Minute
	ListCacheTTL        = 5 * time.Minute
)

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          envOr("CREDIFLOW_ADDR", ":8080"),
			JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			TokenTTL:      envDurationOr("JWT_TOKEN_TTL", 24*time.Hour),
		},
		Postgres: Postgres{
			DSN: os.Getenv("DATABASE_URL"),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envIntOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDurationOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:    splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: envOr("KAFKA_AUDIT_TOPIC", "crediflow.audit"),
		},
		Crypto: Crypto{
			EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitNonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
