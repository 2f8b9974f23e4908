package common

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/control-mapper/constants"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Storage  StorageConfig
	Claude   ClaudeConfig
	Ingest   IngestConfig
	Log      LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCAddr       string
	HealthInterval time.Duration
}

// StorageConfig holds filesystem locations and upload limits
type StorageConfig struct {
	UploadDir     string
	OutputDir     string
	ProvidersDir  string
	PromptsDir    string
	MaxUploadSize int64
	// WatchProviders reloads the check catalog when its files change.
	WatchProviders bool
}

// ClaudeConfig holds settings for the external mapping tool
type ClaudeConfig struct {
	Binary       string
	Timeout      time.Duration
	AllowedTools string
	Workers      int
	QueueSize    int
	WorkDir      string
}

// IngestConfig holds settings for document text extraction
type IngestConfig struct {
	Pdftotext string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables.
// A .env file in the working directory is applied first when present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", "storage/jobs.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
			GRPCAddr:       os.Getenv("GRPC_ADDR"),
			HealthInterval: getEnvAsDuration("HEALTH_INTERVAL", 30*time.Second),
		},
		Storage: StorageConfig{
			UploadDir:      getEnv("UPLOAD_DIR", "storage/uploads"),
			OutputDir:      getEnv("OUTPUT_DIR", "storage/outputs"),
			ProvidersDir:   getEnv("PROVIDERS_DIR", "providers"),
			PromptsDir:     getEnv("PROMPTS_DIR", "prompts"),
			MaxUploadSize:  int64(getEnvAsInt("MAX_UPLOAD_SIZE", constants.MaxUploadSizeDefault)),
			WatchProviders: getEnvAsBool("PROVIDERS_WATCH", false),
		},
		Claude: ClaudeConfig{
			Binary:       getEnv("CLAUDE_BINARY", "claude"),
			Timeout:      getEnvAsDuration("CLAUDE_TIMEOUT", 600*time.Second),
			AllowedTools: getEnv("CLAUDE_ALLOWED_TOOLS", "Read,Glob"),
			Workers:      getEnvAsInt("CLAUDE_WORKERS", 2),
			QueueSize:    getEnvAsInt("CLAUDE_QUEUE_SIZE", 64),
			WorkDir:      getEnv("CLAUDE_WORK_DIR", ""),
		},
		Ingest: IngestConfig{
			Pdftotext: getEnv("PDFTOTEXT", "pdftotext"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// NewLogger builds the process logger from LogConfig.
func NewLogger(cfg LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Helper functions for environment variable parsing
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

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// CLAUDE_TIMEOUT accepts "600" as seconds as well as Go durations.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Claude.Binary == "" {
		return NewAppError("CONFIG_ERROR", "CLAUDE_BINARY is required", ErrInvalidInput)
	}
	if c.Claude.Timeout <= 0 {
		return NewAppError("CONFIG_ERROR", "CLAUDE_TIMEOUT must be positive", ErrInvalidInput)
	}
	if c.Claude.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "CLAUDE_WORKERS must be positive", ErrInvalidInput)
	}
	if c.Storage.MaxUploadSize <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_UPLOAD_SIZE must be positive", ErrInvalidInput)
	}
	return nil
}

// EnsureDirectories creates the upload and output directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Storage.UploadDir, c.Storage.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return WrapError(err, "create "+dir)
		}
	}
	return nil
}
