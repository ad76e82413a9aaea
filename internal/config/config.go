// Package config provides configuration management for Memento. It loads
// settings from environment variables, following the exact variable names
// the system documents for operators, and provides sensible defaults for
// every one of them.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the Memento application.
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Cloud         CloudConfig
	Consolidation ConsolidationConfig
	LogLevel      string // DEBUG, INFO, WARNING, ERROR
}

// ServerConfig contains HTTP/SSE server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 6363)
	Host string // Server host (default: 0.0.0.0)
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Backend      string // MEMORY_STORAGE_BACKEND: "embedded" or "cloud"
	EmbeddedPath string // MEMORY_EMBEDDED_PATH: database file path
	BackupsPath  string // MEMORY_BACKUPS_PATH: backup directory
	SQLPragmas   string // MEMORY_SQL_PRAGMAS: comma-separated pragma overrides
	EnableWAL    bool   // MEMORY_ENABLE_WAL
}

// CloudConfig configures the managed-cloud backend. Only read when
// Storage.Backend is "cloud".
type CloudConfig struct {
	APIToken              string
	AccountID             string
	VectorIndex           string
	SQLDatabaseID         string
	ObjectBucket          string
	EmbeddingModel        string
	LargeContentThreshold int
	MaxRetries            int
	BaseDelay             time.Duration
}

// ConsolidationConfig toggles and schedules the background maintenance
// pipeline (spec §4.H).
type ConsolidationConfig struct {
	Enabled             bool
	DecayEnabled        bool
	AssociationsEnabled bool
	ClusteringEnabled   bool
	CompressionEnabled  bool
	ForgettingEnabled   bool

	RetentionCritical  float64 // half-life in days
	RetentionReference float64
	RetentionStandard  float64
	RetentionTemporary float64

	ScheduleDaily   string // "HH:MM"
	ScheduleWeekly  string // "Mon HH:MM"
	ScheduleMonthly string // "D HH:MM"
}

// LoadConfig loads configuration from environment variables with sensible
// defaults.
func LoadConfig() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("MEMENTO_PORT", 6363),
			Host: getEnv("MEMENTO_HOST", "0.0.0.0"),
		},
		Storage: StorageConfig{
			Backend:      getEnv("MEMORY_STORAGE_BACKEND", "embedded"),
			EmbeddedPath: getEnv("MEMORY_EMBEDDED_PATH", "./data/sqlite_vec.db"),
			BackupsPath:  getEnv("MEMORY_BACKUPS_PATH", "./data/backups"),
			SQLPragmas:   getEnv("MEMORY_SQL_PRAGMAS", ""),
			EnableWAL:    getEnvBool("MEMORY_ENABLE_WAL", true),
		},
		Cloud: CloudConfig{
			APIToken:              getEnv("CLOUD_API_TOKEN", ""),
			AccountID:             getEnv("CLOUD_ACCOUNT_ID", ""),
			VectorIndex:           getEnv("CLOUD_VECTOR_INDEX", ""),
			SQLDatabaseID:         getEnv("CLOUD_SQL_DATABASE_ID", ""),
			ObjectBucket:          getEnv("CLOUD_OBJECT_BUCKET", ""),
			EmbeddingModel:        getEnv("CLOUD_EMBEDDING_MODEL", ""),
			LargeContentThreshold: getEnvInt("CLOUD_LARGE_CONTENT_THRESHOLD", 1<<20),
			MaxRetries:            getEnvInt("CLOUD_MAX_RETRIES", 3),
			BaseDelay:             getEnvDuration("CLOUD_BASE_DELAY", time.Second),
		},
		Consolidation: ConsolidationConfig{
			Enabled:             getEnvBool("CONSOLIDATION_ENABLED", true),
			DecayEnabled:        getEnvBool("DECAY_ENABLED", true),
			AssociationsEnabled: getEnvBool("ASSOCIATIONS_ENABLED", true),
			ClusteringEnabled:   getEnvBool("CLUSTERING_ENABLED", true),
			CompressionEnabled:  getEnvBool("COMPRESSION_ENABLED", true),
			ForgettingEnabled:   getEnvBool("FORGETTING_ENABLED", true),
			RetentionCritical:   getEnvFloat("RETENTION_CRITICAL", 365),
			RetentionReference:  getEnvFloat("RETENTION_REFERENCE", 180),
			RetentionStandard:   getEnvFloat("RETENTION_STANDARD", 30),
			RetentionTemporary:  getEnvFloat("RETENTION_TEMPORARY", 7),
			ScheduleDaily:       getEnv("SCHEDULE_DAILY", "02:00"),
			ScheduleWeekly:      getEnv("SCHEDULE_WEEKLY", "Sun 03:00"),
			ScheduleMonthly:     getEnv("SCHEDULE_MONTHLY", "1 04:00"),
		},
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}, nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a time.Duration environment variable (Go
// duration syntax, e.g. "500ms") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. It recognizes "true", "1", "yes" as true and "false", "0", "no" as
// false, each word in lower, Title or UPPER case. If the environment
// variable exists but cannot be parsed as a boolean, it returns the default
// value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
