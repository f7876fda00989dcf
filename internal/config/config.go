package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Chat bot configuration
	Bot BotConfig

	// Spreadsheet sink configuration
	Sheets SheetsConfig

	// Sync engine configuration
	Sync SyncConfig

	// Redis configuration (optional)
	Redis RedisConfig

	// Logging configuration
	Log LogConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AdminToken      string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MaxLifetime    time.Duration
	MigrationsPath string
}

// BotConfig holds conversation and chat transport settings
type BotConfig struct {
	GatewayURL       string
	GatewayToken     string
	GatewayTimeout   time.Duration
	DefaultTimezone  string
	MessageEditLimit time.Duration // how long a sent message stays editable
	ReportEditWindow time.Duration // how long an owner may edit or delete a report
	NotifyChatID     int64
	RolesFile        string
	EventBuffer      int
}

// SheetsConfig holds spreadsheet sink settings
type SheetsConfig struct {
	Backend         string // "google" or "xlsx"
	CredentialsFile string
	ParentFolderID  string
	XLSXDir         string
	TitlePrefix     string
	TabName         string
	WritesPerMinute int
}

// SyncConfig holds sync engine settings
type SyncConfig struct {
	Interval           time.Duration
	NextMonthThreshold int // days left in the month before the next sheet is created
	RetryAttempts      int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	LockTTL            time.Duration
}

// RedisConfig holds Redis settings; an empty Addr disables Redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string // "json" or "pretty"
}

// Load reads configuration from environment variables, after loading an optional .env file
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AdminToken:      getEnv("ADMIN_TOKEN", ""),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			Name:           getEnv("DB_NAME", "worklog"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:   getIntEnv("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:   getIntEnv("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:    getDurationEnv("DB_MAX_LIFETIME", 5*time.Minute),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
		},
		Bot: BotConfig{
			GatewayURL:       getEnv("CHAT_GATEWAY_URL", ""),
			GatewayToken:     getEnv("CHAT_GATEWAY_TOKEN", ""),
			GatewayTimeout:   getDurationEnv("CHAT_GATEWAY_TIMEOUT", 10*time.Second),
			DefaultTimezone:  getEnv("DEFAULT_TIMEZONE", "Europe/Moscow"),
			MessageEditLimit: getDurationEnv("MESSAGE_EDIT_LIMIT", 47*time.Hour),
			ReportEditWindow: getDurationEnv("REPORT_EDIT_WINDOW", 48*time.Hour),
			NotifyChatID:     getInt64Env("NOTIFY_CHAT_ID", 0),
			RolesFile:        getEnv("ROLES_FILE", ""),
			EventBuffer:      getIntEnv("EVENT_BUFFER", 256),
		},
		Sheets: SheetsConfig{
			Backend:         getEnv("SHEETS_BACKEND", "google"),
			CredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
			ParentFolderID:  getEnv("SHEETS_PARENT_FOLDER", ""),
			XLSXDir:         getEnv("SHEETS_XLSX_DIR", "./data/sheets"),
			TitlePrefix:     getEnv("SHEETS_TITLE_PREFIX", "Work reports"),
			TabName:         getEnv("SHEETS_TAB_NAME", "Reports"),
			WritesPerMinute: getIntEnv("SHEETS_WRITES_PER_MINUTE", 60),
		},
		Sync: SyncConfig{
			Interval:           getDurationEnv("SYNC_INTERVAL", 10*time.Minute),
			NextMonthThreshold: getIntEnv("SYNC_NEXT_MONTH_DAYS", 3),
			RetryAttempts:      getIntEnv("SYNC_RETRY_ATTEMPTS", 5),
			RetryBaseDelay:     getDurationEnv("SYNC_RETRY_BASE_DELAY", time.Second),
			RetryMaxDelay:      getDurationEnv("SYNC_RETRY_MAX_DELAY", 30*time.Second),
			LockTTL:            getDurationEnv("SYNC_LOCK_TTL", 15*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if _, err := time.LoadLocation(c.Bot.DefaultTimezone); err != nil {
		return fmt.Errorf("DEFAULT_TIMEZONE is invalid: %w", err)
	}
	switch c.Sheets.Backend {
	case "google":
		if c.Sheets.CredentialsFile == "" {
			return fmt.Errorf("GOOGLE_CREDENTIALS_FILE is required for the google sheets backend")
		}
	case "xlsx":
		if c.Sheets.XLSXDir == "" {
			return fmt.Errorf("SHEETS_XLSX_DIR is required for the xlsx backend")
		}
	default:
		return fmt.Errorf("SHEETS_BACKEND must be one of: google, xlsx")
	}
	if c.Sync.RetryAttempts < 1 {
		return fmt.Errorf("SYNC_RETRY_ATTEMPTS must be at least 1")
	}
	return nil
}

// Location returns the default timezone
func (c *BotConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
