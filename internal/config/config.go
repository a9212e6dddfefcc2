package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/escalation-engine/internal/domain"
)

// Config aggregates runtime configuration for the engine.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Engine       EngineConfig
	Cache        CacheConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// NotificationConfig defines tenant default delivery channels plus the
// interruptive channel layered on top for urgent escalations.
type NotificationConfig struct {
	DefaultChannels     []string
	InterruptiveChannel string
}

// EngineConfig holds escalation business rules.
type EngineConfig struct {
	AmendmentWindowMinutes  int
	SLATargetsMillis        map[domain.Priority]int64
	RankingVolumeCeiling    int
	SLAAlertIntervalSeconds int
	SLAAlertWorkerEnabled   bool
}

// CacheConfig controls the metrics cache.
type CacheConfig struct {
	MetricsTTLSeconds int
}

// AmendmentWindow returns the post-resolution window during which a
// non-overridden amendment is accepted.
func (e EngineConfig) AmendmentWindow() time.Duration {
	if e.AmendmentWindowMinutes <= 0 {
		return 4 * time.Hour
	}
	return time.Duration(e.AmendmentWindowMinutes) * time.Minute
}

// SLATarget returns the target latency for a priority tier.
func (e EngineConfig) SLATarget(p domain.Priority) time.Duration {
	if ms, ok := e.SLATargetsMillis[p]; ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return 24 * time.Hour
}

// SLAAlertInterval returns the best-effort alert scan cadence.
func (e EngineConfig) SLAAlertInterval() time.Duration {
	if e.SLAAlertIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(e.SLAAlertIntervalSeconds) * time.Second
}

// MetricsTTL returns the metrics cache TTL.
func (c CacheConfig) MetricsTTL() time.Duration {
	if c.MetricsTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.MetricsTTLSeconds) * time.Second
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "escalation-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Notification: NotificationConfig{
			DefaultChannels:     getEnvAsList("NOTIFY_DEFAULT_CHANNELS", []string{"chat"}),
			InterruptiveChannel: getEnv("NOTIFY_INTERRUPTIVE_CHANNEL", "pager"),
		},
		Engine: EngineConfig{
			AmendmentWindowMinutes: getEnvAsInt("ENGINE_AMENDMENT_WINDOW_MINUTES", 240),
			SLATargetsMillis: map[domain.Priority]int64{
				domain.PriorityUrgent: getEnvAsInt64("SLA_TARGET_URGENT_MS", 900000),
				domain.PriorityHigh:   getEnvAsInt64("SLA_TARGET_HIGH_MS", 3600000),
				domain.PriorityMedium: getEnvAsInt64("SLA_TARGET_MEDIUM_MS", 14400000),
				domain.PriorityLow:    getEnvAsInt64("SLA_TARGET_LOW_MS", 86400000),
			},
			RankingVolumeCeiling:    getEnvAsInt("ENGINE_RANKING_VOLUME_CEILING", 50),
			SLAAlertIntervalSeconds: getEnvAsInt("ENGINE_SLA_ALERT_INTERVAL_SECONDS", 60),
			SLAAlertWorkerEnabled:   getEnvAsBool("ENGINE_SLA_ALERT_WORKER_ENABLED", true),
		},
		Cache: CacheConfig{
			MetricsTTLSeconds: getEnvAsInt("METRICS_CACHE_TTL_SECONDS", 30),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsInt64(key string, fallback int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
