package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Sheet    SheetConfig
	App      AppConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	DSN      string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SheetConfig holds everything needed to talk to the remote spreadsheet
// service and to provision new project workspaces.
type SheetConfig struct {
	BaseURL          string
	Token            string
	PortfolioSheetID int64
	TemplateFolderID int64
	ParentFolderID   int64
	WebhookSecret    string
	WebhookCallback  string
	MaxRetries       int
	RatePerSecond    int
}

type AppConfig struct {
	Environment string
	Version     string
	BaseURL     string // internal application URL, used for write-back links
	PollCron    string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			DSN:      getEnv("DB_DSN", ""),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Sheet: SheetConfig{
			BaseURL:          getEnv("SHEET_API_BASE", "https://api.smartsheet.com/2.0"),
			Token:            getEnv("SHEET_API_TOKEN", ""),
			PortfolioSheetID: getEnvAsInt64("PORTFOLIO_SHEET_ID", 0),
			TemplateFolderID: getEnvAsInt64("TEMPLATE_FOLDER_ID", 0),
			ParentFolderID:   getEnvAsInt64("WORKSPACE_PARENT_FOLDER_ID", 0),
			WebhookSecret:    getEnv("SHEET_WEBHOOK_SECRET", ""),
			WebhookCallback:  getEnv("SHEET_WEBHOOK_CALLBACK_URL", ""),
			MaxRetries:       getEnvAsInt("SHEET_MAX_RETRIES", 5),
			RatePerSecond:    getEnvAsInt("SHEET_RATE_PER_SECOND", 5),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			BaseURL:     getEnv("APP_BASE_URL", "http://localhost:3000"),
			PollCron:    getEnv("POLL_CRON", "0 */15 * * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}

	if c.Sheet.Token == "" {
		return fmt.Errorf("SHEET_API_TOKEN is required")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}
