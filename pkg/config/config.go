package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Catalog  CollaboratorConfig
	Roster   CollaboratorConfig
	Queue    QueueConfig
	Submit   SubmitConfig
	Exports  ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CollaboratorConfig describes how to reach an external read service
// (course catalog or student roster) and how hard to try before giving up.
type CollaboratorConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

// QueueConfig tunes the asynchronous enrollment pipeline.
type QueueConfig struct {
	Name             string
	Workers          int
	MaxRetries       int
	RetryDelay       time.Duration
	RecoveryInterval time.Duration
	PendingThreshold time.Duration
}

// SubmitConfig bounds synchronous enrollment processing.
type SubmitConfig struct {
	Deadline time.Duration
}

// ExportsConfig gates the roster export endpoint.
type ExportsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Catalog = CollaboratorConfig{
		BaseURL:       v.GetString("CATALOG_SERVICE_URL"),
		Timeout:       parseDuration(v.GetString("CATALOG_TIMEOUT"), 3*time.Second),
		RetryAttempts: v.GetInt("CATALOG_RETRY_ATTEMPTS"),
		RetryBackoff:  parseDuration(v.GetString("CATALOG_RETRY_BACKOFF"), 200*time.Millisecond),
	}

	cfg.Roster = CollaboratorConfig{
		BaseURL:       v.GetString("ROSTER_SERVICE_URL"),
		Timeout:       parseDuration(v.GetString("ROSTER_TIMEOUT"), 3*time.Second),
		RetryAttempts: v.GetInt("ROSTER_RETRY_ATTEMPTS"),
		RetryBackoff:  parseDuration(v.GetString("ROSTER_RETRY_BACKOFF"), 200*time.Millisecond),
	}

	cfg.Queue = QueueConfig{
		Name:             v.GetString("QUEUE_NAME"),
		Workers:          v.GetInt("QUEUE_WORKERS"),
		MaxRetries:       v.GetInt("QUEUE_MAX_RETRIES"),
		RetryDelay:       parseDuration(v.GetString("QUEUE_RETRY_DELAY"), time.Second),
		RecoveryInterval: parseDuration(v.GetString("QUEUE_RECOVERY_INTERVAL"), time.Minute),
		PendingThreshold: parseDuration(v.GetString("QUEUE_PENDING_THRESHOLD"), 5*time.Minute),
	}

	cfg.Submit = SubmitConfig{
		Deadline: parseDuration(v.GetString("SUBMIT_DEADLINE"), 10*time.Second),
	}

	cfg.Exports = ExportsConfig{
		Enabled: v.GetBool("ENABLE_ROSTER_EXPORTS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "enrollment_ledger")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CATALOG_SERVICE_URL", "http://localhost:8001")
	v.SetDefault("CATALOG_TIMEOUT", "3s")
	v.SetDefault("CATALOG_RETRY_ATTEMPTS", 3)
	v.SetDefault("CATALOG_RETRY_BACKOFF", "200ms")

	v.SetDefault("ROSTER_SERVICE_URL", "http://localhost:8002")
	v.SetDefault("ROSTER_TIMEOUT", "3s")
	v.SetDefault("ROSTER_RETRY_ATTEMPTS", 3)
	v.SetDefault("ROSTER_RETRY_BACKOFF", "200ms")

	v.SetDefault("QUEUE_NAME", "enrollments")
	v.SetDefault("QUEUE_WORKERS", 4)
	v.SetDefault("QUEUE_MAX_RETRIES", 5)
	v.SetDefault("QUEUE_RETRY_DELAY", "1s")
	v.SetDefault("QUEUE_RECOVERY_INTERVAL", "1m")
	v.SetDefault("QUEUE_PENDING_THRESHOLD", "5m")

	v.SetDefault("SUBMIT_DEADLINE", "10s")

	v.SetDefault("ENABLE_ROSTER_EXPORTS", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
