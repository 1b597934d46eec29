/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Event bus backend selection for multi-instance deployments.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	DBBackend     DatabaseBackend
	DBDSN         string
	JWTSigningKey string
	MetricsBind   string

	// TokenPrefix selects the environment label minted into new tokens
	// (sk_live or sk_test).
	TokenPrefix string

	// Rate limiting
	RateLimitQuota      int
	RateLimitWindow     time.Duration
	RateLimitPolicyPath string

	// Redis (rate-limit counters, directory cache, redis event bus)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheEnabled  bool

	// Event bus
	EventBusBackend EventBusBackend
	NATSURL         string
	InstanceID      string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Audit archive export
	ArchiveDir        string        // filesystem export target
	ArchiveInterval   time.Duration // 0 disables the scheduled exporter
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool   // Required for MinIO
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   getEnv("HEIMDALL_ENV", "development"),
		HTTPBind:      getEnv("HEIMDALL_HTTP_BIND", "0.0.0.0"),
		HTTPPort:      getEnvInt("HEIMDALL_HTTP_PORT", 8080),
		DBBackend:     DatabaseBackend(getEnv("HEIMDALL_DB_BACKEND", string(DatabasePostgres))),
		DBDSN:         getEnv("HEIMDALL_DB_DSN", ""),
		JWTSigningKey: getEnv("HEIMDALL_JWT_SIGNING_KEY", ""),
		MetricsBind:   getEnv("HEIMDALL_METRICS_BIND", "127.0.0.1:9000"),

		TokenPrefix: getEnv("HEIMDALL_TOKEN_PREFIX", "sk_live"),

		RateLimitQuota:      getEnvInt("HEIMDALL_RATELIMIT_QUOTA", 120),
		RateLimitWindow:     time.Duration(getEnvInt("HEIMDALL_RATELIMIT_WINDOW_SECONDS", 60)) * time.Second,
		RateLimitPolicyPath: getEnv("HEIMDALL_RATELIMIT_POLICY_FILE", ""),

		RedisAddr:     getEnv("HEIMDALL_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("HEIMDALL_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("HEIMDALL_REDIS_DB", 0),
		CacheEnabled:  getEnvBool("HEIMDALL_CACHE_ENABLED", true),

		EventBusBackend: EventBusBackend(getEnv("HEIMDALL_EVENTBUS_BACKEND", string(EventBusMemory))),
		NATSURL:         getEnv("HEIMDALL_NATS_URL", "nats://localhost:4222"),
		InstanceID:      getEnv("HEIMDALL_INSTANCE_ID", ""),

		TracingEnabled:    getEnvBool("HEIMDALL_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("HEIMDALL_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("HEIMDALL_TRACING_SAMPLE_RATE", 1.0),

		ArchiveDir:        getEnv("HEIMDALL_ARCHIVE_DIR", "./archive"),
		ArchiveInterval:   time.Duration(getEnvInt("HEIMDALL_ARCHIVE_INTERVAL_SECONDS", 0)) * time.Second,
		S3AccessKeyID:     getEnvAny([]string{"HEIMDALL_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"HEIMDALL_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"HEIMDALL_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"HEIMDALL_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"HEIMDALL_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBool("HEIMDALL_S3_USE_PATH_STYLE", false),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("HEIMDALL_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("HEIMDALL_JWT_SIGNING_KEY must be provided")
	}

	if cfg.TokenPrefix != "sk_live" && cfg.TokenPrefix != "sk_test" {
		return nil, fmt.Errorf("unsupported token prefix %q", cfg.TokenPrefix)
	}

	switch cfg.EventBusBackend {
	case EventBusMemory, EventBusRedis, EventBusNATS:
	default:
		return nil, fmt.Errorf("unsupported event bus backend %q", cfg.EventBusBackend)
	}

	if cfg.RateLimitQuota <= 0 || cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("rate limit quota and window must be positive")
	}

	if strings.EqualFold(cfg.Environment, "production") && len(cfg.JWTSigningKey) < 32 {
		return nil, fmt.Errorf("HEIMDALL_JWT_SIGNING_KEY must be at least 32 bytes in production")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}
