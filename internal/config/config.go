package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
)

// Supported store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// DefaultResyncCron resyncs active rooms every six hours.
const DefaultResyncCron = "0 */6 * * *"

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Storage
	StoreDriver   string
	DatabaseURL   string
	SQLitePath    string
	MongoURI      string
	MongoDatabase string
	RedisURL      string

	// Chat platform
	DirectoryBaseURL string
	AccessToken      string
	DirectoryRPS     float64
	BotName          string
	PublicAddress    string
	WebhookSecret    string

	ResyncCron string

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// It panics on invalid or, in production, missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg, err := FromEnv()
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// FromEnv builds a Config from the current environment without touching
// any .env file.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       getEnv("SQLITE_PATH", "inquire.db"),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDatabase:    getEnv("MONGO_DATABASE", "inquire"),
		RedisURL:         os.Getenv("REDIS_URL"),
		DirectoryBaseURL: getEnv("DIRECTORY_BASE_URL", "https://api.ciscospark.com/v1"),
		AccessToken:      os.Getenv("ACCESS_TOKEN"),
		BotName:          getEnv("BOT_NAME", "inquire"),
		PublicAddress:    strings.TrimRight(os.Getenv("PUBLIC_ADDRESS"), "/"),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
		ResyncCron:       getEnv("RESYNC_CRON", DefaultResyncCron),
		AutoBlockEnabled: getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	defaultDriver := DriverSQLite
	if cfg.DatabaseURL != "" {
		defaultDriver = DriverPostgres
	}
	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", defaultDriver))
	switch cfg.StoreDriver {
	case DriverPostgres, DriverSQLite, DriverMongo:
	default:
		return nil, fmt.Errorf("STORE_DRIVER %q is not one of postgres, sqlite, mongo", cfg.StoreDriver)
	}

	rps, err := strconv.ParseFloat(getEnv("DIRECTORY_RPS", "5"), 64)
	if err != nil || rps < 0 {
		return nil, fmt.Errorf("DIRECTORY_RPS must be a non-negative number")
	}
	cfg.DirectoryRPS = rps

	if !gronx.IsValid(cfg.ResyncCron) {
		return nil, fmt.Errorf("RESYNC_CRON %q is not a valid cron expression", cfg.ResyncCron)
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	// In production, require the store's URL and platform credentials
	if cfg.Env == "production" {
		if url := cfg.StoreURL(); url == "" {
			return nil, fmt.Errorf("the %s store URL is required in production", cfg.StoreDriver)
		}
		if cfg.AccessToken == "" {
			return nil, fmt.Errorf("ACCESS_TOKEN is required in production")
		}
	}

	return cfg, nil
}

// StoreURL returns the connection string for the selected driver.
func (c *Config) StoreURL() string {
	switch c.StoreDriver {
	case DriverPostgres:
		return c.DatabaseURL
	case DriverMongo:
		return c.MongoURI
	default:
		return c.SQLitePath
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
