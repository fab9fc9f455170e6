package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"collabtext/internal/models"
)

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"

	PersistDebounce     = "debounce"
	PersistWriteThrough = "writethrough"
)

// app config, loaded once at startup from the environment
type Config struct {
	Port string

	StoreDriver         string
	MongoURI            string
	DocumentsDBName     string
	DocumentsCollection string
	PostgresDSN         string
	SQLitePath          string

	RedisAddr string
	CacheTTL  time.Duration

	PersistMode  string
	PersistDelay time.Duration

	DefaultDocumentID    string
	AllowedOrigins       []string
	ClearHistorySchedule string
	ShutdownTimeout      time.Duration
}

// loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cacheTTL, err := getEnvDuration("CACHE_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	persistDelay, err := getEnvDuration("PERSIST_DELAY", time.Second)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		StoreDriver:          strings.ToLower(getEnvOrDefault("STORE_DRIVER", StoreMongo)),
		MongoURI:             os.Getenv("MONGO_URI"),
		DocumentsDBName:      getEnvOrDefault("DOCUMENTS_DB_NAME", "collab"),
		DocumentsCollection:  getEnvOrDefault("DOCUMENTS_COLLECTION", "documents"),
		PostgresDSN:          postgresDSN(),
		SQLitePath:           getEnvOrDefault("SQLITE_PATH", "collabtext.db"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		CacheTTL:             cacheTTL,
		PersistMode:          strings.ToLower(getEnvOrDefault("PERSIST_MODE", PersistDebounce)),
		PersistDelay:         persistDelay,
		DefaultDocumentID:    getEnvOrDefault("DEFAULT_DOCUMENT_ID", models.DefaultDocumentID),
		AllowedOrigins:       splitList(getEnvOrDefault("ALLOWED_ORIGINS", "*")),
		ClearHistorySchedule: os.Getenv("CLEAR_HISTORY_SCHEDULE"),
		ShutdownTimeout:      shutdownTimeout,
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Addr is the listen address derived from Port.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func validateConfig(config *Config) error {
	switch config.StoreDriver {
	case StoreMongo:
		if config.MongoURI == "" {
			return errors.New("MONGO_URI is required when STORE_DRIVER=mongo")
		}
	case StorePostgres, StoreSQLite:
	default:
		return errors.New("unsupported store driver: " + config.StoreDriver + ". Currently supported: mongo, postgres, sqlite")
	}

	switch config.PersistMode {
	case PersistDebounce:
		if config.PersistDelay <= 0 {
			return errors.New("PERSIST_DELAY must be positive in debounce mode")
		}
	case PersistWriteThrough:
	default:
		return errors.New("unsupported persist mode: " + config.PersistMode + ". Currently supported: debounce, writethrough")
	}

	if config.DefaultDocumentID == "" {
		return errors.New("DEFAULT_DOCUMENT_ID must not be empty")
	}
	return nil
}

func postgresDSN() string {
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		getEnvOrDefault("POSTGRES_HOST", "localhost"),
		getEnvOrDefault("POSTGRES_USER", "postgres"),
		getEnvOrDefault("POSTGRES_PASSWORD", "postgres"),
		getEnvOrDefault("POSTGRES_DB", "postgres"),
		getEnvOrDefault("POSTGRES_PORT", "5432"),
		getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
