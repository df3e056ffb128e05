package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	BackendBaseURL    string
	AccessToken       string
	AccessTokenFile   string // Re-read on every request when set
	HTTPTimeout       time.Duration
	StoreDriver       string
	StorePath         string // SQLite file
	DatabaseURL       string // PostgreSQL DSN when StoreDriver is postgres
	LogLevel          string
	Environment       string
	CronSpecReconcile string
	TelegramToken     string // Optional, enables reconcile failure alerts
	AlertChatID       int64
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.BackendBaseURL = strings.TrimRight(os.Getenv("BACKEND_BASE_URL"), "/")
	if cfg.BackendBaseURL == "" {
		return nil, fmt.Errorf("BACKEND_BASE_URL is not set")
	}

	cfg.AccessToken = os.Getenv("ACCESS_TOKEN")
	cfg.AccessTokenFile = os.Getenv("ACCESS_TOKEN_FILE")
	if cfg.AccessToken == "" && cfg.AccessTokenFile == "" {
		return nil, fmt.Errorf("either ACCESS_TOKEN or ACCESS_TOKEN_FILE must be set")
	}

	cfg.HTTPTimeout = 30 * time.Second
	if raw := os.Getenv("HTTP_TIMEOUT"); raw != "" {
		cfg.HTTPTimeout, err = time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
		}
	}

	cfg.StoreDriver = strings.ToLower(os.Getenv("STORE_DRIVER"))
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StoreSQLite
	}
	switch cfg.StoreDriver {
	case StoreSQLite:
		cfg.StorePath = os.Getenv("STORE_PATH")
		if cfg.StorePath == "" {
			cfg.StorePath = "cyclesync.db"
		}
	case StorePostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set (required for STORE_DRIVER=postgres)")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: want %s or %s", cfg.StoreDriver, StoreSQLite, StorePostgres)
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.CronSpecReconcile = os.Getenv("CRON_SPEC_RECONCILE")
	if cfg.CronSpecReconcile == "" {
		cfg.CronSpecReconcile = "*/10 * * * *" // Default: every 10 minutes
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	chatIDStr := os.Getenv("ALERT_CHAT_ID")
	if (cfg.TelegramToken == "") != (chatIDStr == "") {
		return nil, fmt.Errorf("TELEGRAM_TOKEN and ALERT_CHAT_ID must be set together")
	}
	if chatIDStr != "" {
		cfg.AlertChatID, err = strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ALERT_CHAT_ID: %w", err)
		}
	}

	return cfg, nil
}

// AlertsEnabled reports whether reconcile failures should be posted to Telegram.
func (c *AppConfig) AlertsEnabled() bool {
	return c.TelegramToken != "" && c.AlertChatID != 0
}
