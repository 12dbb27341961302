package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Typesense TypesenseConfig
	OTEL      OTELConfig
	Mirrors   MirrorsConfig
	NLP       ServiceConfig
	LLM       ServiceConfig
	Env       string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins string
	SSEHeartbeat   time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

// TypesenseConfig holds Typesense configuration
type TypesenseConfig struct {
	URL     string
	APIKey  string
	Enabled bool
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// ServiceConfig describes an HTTP collaborator (NLP entity extraction, LLM generation)
type ServiceConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Enabled bool
}

// MirrorsConfig holds ingestion pipeline configuration
type MirrorsConfig struct {
	DataDir     string
	StateDir    string
	SourcesFile string
	UserAgent   string

	// Download scheduling
	MaxConcurrentSources   int
	DownloadWorkers        int
	LargeSourceThresholdMB int
	StaggerDelay           time.Duration
	DailyRetryCap          int
	ForceFresh             bool
	RequestTimeout         time.Duration

	// Parsing and persistence
	ParserWorkers          int
	ChunkSize              int
	CommitBatchSize        int
	ConsolidationBatchSize int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Env: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),

			AllowedOrigins: getEnv("ALLOWED_ORIGINS", ""),
			SSEHeartbeat:   getEnvAsDuration("SSE_HEARTBEAT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "medical_mirrors"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},
		Typesense: TypesenseConfig{
			URL:     getEnv("TYPESENSE_URL", "http://localhost:8108"),
			APIKey:  getEnv("TYPESENSE_API_KEY", "xyz"),
			Enabled: getEnvAsBool("TYPESENSE_ENABLED", false),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "medical-mirrors"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		NLP: ServiceConfig{
			BaseURL: getEnv("NLP_SERVICE_URL", "http://localhost:8002"),
			Timeout: getEnvAsDuration("NLP_TIMEOUT", 30*time.Second),
			Enabled: getEnvAsBool("NLP_ENABLED", false),
		},
		LLM: ServiceConfig{
			BaseURL: getEnv("LLM_SERVICE_URL", "http://localhost:11434"),
			Model:   getEnv("LLM_MODEL", "llama3.1:8b"),
			Timeout: getEnvAsDuration("LLM_TIMEOUT", 120*time.Second),
			Enabled: getEnvAsBool("LLM_ENABLED", false),
		},
		Mirrors: MirrorsConfig{
			DataDir:                getEnv("MIRRORS_DATA_DIR", "data"),
			StateDir:               getEnv("MIRRORS_STATE_DIR", "data/state"),
			SourcesFile:            getEnv("MIRRORS_SOURCES_FILE", ""),
			UserAgent:              getEnv("MIRRORS_USER_AGENT", "medical-mirrors/1.0"),
			MaxConcurrentSources:   getEnvAsInt("MIRRORS_MAX_CONCURRENT_SOURCES", 3),
			DownloadWorkers:        getEnvAsInt("MIRRORS_DOWNLOAD_WORKERS", 4),
			LargeSourceThresholdMB: getEnvAsInt("MIRRORS_LARGE_SOURCE_THRESHOLD_MB", 1024),
			StaggerDelay:           getEnvAsDuration("MIRRORS_STAGGER_DELAY", 30*time.Second),
			DailyRetryCap:          getEnvAsInt("MIRRORS_DAILY_RETRY_CAP", 5),
			ForceFresh:             getEnvAsBool("MIRRORS_FORCE_FRESH", false),
			RequestTimeout:         getEnvAsDuration("MIRRORS_REQUEST_TIMEOUT", 30*time.Minute),
			ParserWorkers:          getEnvAsInt("PARSER_WORKERS", DefaultParserWorkers()),
			ChunkSize:              getEnvAsInt("PARSER_CHUNK_SIZE", 1000),
			CommitBatchSize:        getEnvAsInt("MIRRORS_COMMIT_BATCH_SIZE", 1000),
			ConsolidationBatchSize: getEnvAsInt("CONSOLIDATION_BATCH_SIZE", 1000),
		},
	}

	if err := cfg.Mirrors.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Bounds for MIRRORS_DAILY_RETRY_CAP
const (
	MinDailyRetryCap = 3
	MaxDailyRetryCap = 10
)

// DefaultParserWorkers leaves half of the cores to the database.
func DefaultParserWorkers() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		return 1
	}
	return n
}

// Validate checks pipeline settings for values that cannot work.
func (c *MirrorsConfig) Validate() error {
	if c.DailyRetryCap < MinDailyRetryCap || c.DailyRetryCap > MaxDailyRetryCap {
		return fmt.Errorf("daily retry cap must be between %d and %d, got %d", MinDailyRetryCap, MaxDailyRetryCap, c.DailyRetryCap)
	}
	if c.MaxConcurrentSources < 1 {
		c.MaxConcurrentSources = 1
	}
	if c.DownloadWorkers < 1 {
		c.DownloadWorkers = 1
	}
	if c.ParserWorkers < 1 {
		c.ParserWorkers = DefaultParserWorkers()
	}
	if c.ChunkSize < 1 {
		c.ChunkSize = 1000
	}
	if c.CommitBatchSize < 1 {
		c.CommitBatchSize = 1000
	}
	if c.ConsolidationBatchSize < 1 {
		c.ConsolidationBatchSize = 1000
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
