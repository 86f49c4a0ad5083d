// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration.
type Config struct {
	Server   Server
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	RabbitMQ RabbitMQConfig
	Audit    AuditConfig
	KMS      KMSConfig
	Resolver ResolverConfig
	Auditor  AuditorConfig
	Registry  RegistryConfig
	RateLimit RateLimitConfig
	Engine    Engine
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr         string
	LogLevel     string
	PublicURL    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig selects the credential and actor stores. An empty URL keeps
// everything in memory.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig enables the identity document cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DocumentTTL  time.Duration
}

// KafkaConfig enables the streamed audit sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RabbitMQConfig enables high-risk fraud alerts.
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// AuditConfig selects the audit log sink: "memory", "postgres", "ledger" or
// "kafka".
type AuditConfig struct {
	Sink       string
	LedgerPath string
}

// KMSConfig selects the signer: an empty URL uses the in-process dev KMS.
// KeyFile persists the dev KMS keys across restarts.
type KMSConfig struct {
	URL     string
	Timeout time.Duration
	KeyFile string
}

// RateLimitConfig bounds requests per actor (or client IP) in a sliding
// window. Requests <= 0 disables limiting. Windows are shared through Redis
// when it is configured.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// RegistryConfig points at a JSON array of actors registered at startup.
type RegistryConfig struct {
	SeedPath string
}

// ResolverConfig selects the identity document resolver. An empty URL uses
// documents published by the local KMS.
type ResolverConfig struct {
	URL              string
	Timeout          time.Duration
	FailureThreshold int
}

// AuditorConfig configures auditor authorization tokens.
type AuditorConfig struct {
	TokenSecret string
	TokenIssuer string
	TokenTTL    time.Duration
}

// FromEnv loads an optional .env file and builds Config from environment
// variables so main stays lean.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Server: Server{
			Addr:         getEnv("RXVC_ADDR", ":8080"),
			LogLevel:     getEnv("LOG_LEVEL", "info"),
			PublicURL:    getEnv("RXVC_PUBLIC_URL", "http://localhost:8080"),
			ReadTimeout:  getDuration("RXVC_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDuration("RXVC_WRITE_TIMEOUT", 30*time.Second),
		},
		Postgres: PostgresConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			DocumentTTL:  getDuration("REDIS_DID_DOCUMENT_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_AUDIT_TOPIC", "rxvc.audit"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      os.Getenv("RABBITMQ_URL"),
			Exchange: getEnv("RABBITMQ_FRAUD_EXCHANGE", "rxvc.fraud"),
		},
		Audit: AuditConfig{
			Sink:       getEnv("AUDIT_SINK", "memory"),
			LedgerPath: getEnv("AUDIT_LEDGER_PATH", "./data/audit-ledger"),
		},
		KMS: KMSConfig{
			URL:     os.Getenv("KMS_URL"),
			Timeout: getDuration("KMS_TIMEOUT", 5*time.Second),
			KeyFile: os.Getenv("KMS_KEY_FILE"),
		},
		Resolver: ResolverConfig{
			URL:              os.Getenv("DID_RESOLVER_URL"),
			Timeout:          getDuration("DID_RESOLVER_TIMEOUT", 5*time.Second),
			FailureThreshold: getInt("DID_RESOLVER_FAILURE_THRESHOLD", 5),
		},
		Auditor: AuditorConfig{
			TokenSecret: getEnv("AUDITOR_TOKEN_SECRET", "dev-auditor-secret-change-in-production"),
			TokenIssuer: getEnv("AUDITOR_TOKEN_ISSUER", "rxvc"),
			TokenTTL:    getDuration("AUDITOR_TOKEN_TTL", 15*time.Minute),
		},
		Registry: RegistryConfig{
			SeedPath: os.Getenv("REGISTRY_SEED_PATH"),
		},
		RateLimit: RateLimitConfig{
			Requests: getInt("RATE_LIMIT_REQUESTS", 120),
			Window:   getDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Engine: DefaultEngine(),
	}

	if v := os.Getenv("FRAUD_MAX_APPROVAL_SCORE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("FRAUD_MAX_APPROVAL_SCORE: %w", err)
		}
		cfg.Engine.Approval.MaxScore = n
	}

	switch cfg.Audit.Sink {
	case "memory", "ledger", "kafka":
	case "postgres":
		if cfg.Postgres.URL == "" {
			return Config{}, fmt.Errorf("AUDIT_SINK=postgres requires DATABASE_URL")
		}
	default:
		return Config{}, fmt.Errorf("AUDIT_SINK: unsupported sink %q", cfg.Audit.Sink)
	}
	if cfg.Audit.Sink == "kafka" && len(cfg.Kafka.Brokers) == 0 {
		return Config{}, fmt.Errorf("AUDIT_SINK=kafka requires KAFKA_BROKERS")
	}
	if err := cfg.Engine.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
