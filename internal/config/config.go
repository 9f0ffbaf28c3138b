// Package config loads scraper settings from environment variables, with an
// optional .env file for local runs. Environment variables always win.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"foreclosure-auction-scraper/internal/models"
	"foreclosure-auction-scraper/internal/schedule"
)

// envFile is read from the working directory for local runs
const envFile = ".env"

// Store backends
const (
	StoreDynamoDB = "dynamodb"
	StoreMongoDB  = "mongodb"
	StoreMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Env string

	County   CountyConfig
	Model    ModelConfig
	Store    StoreConfig
	HTTP     HTTPConfig
	Schedule ScheduleConfig

	// Optional. Empty disables the PDF and run-summary archive.
	ArchiveBucket string

	// Admin API only: the scraper Lambda triggered by POST /api/runs
	ScraperFunctionName string

	AWSRegion string
}

// CountyConfig describes the page being scraped and its jurisdiction
type CountyConfig struct {
	PageURL        string
	Name           string
	State          string
	DefaultCity    string
	CityAliases    map[string]string
	SectionHeading string
}

// ModelConfig configures the hosted extraction model
type ModelConfig struct {
	ID        string
	MaxTokens int
}

// StoreConfig selects and configures the document store
type StoreConfig struct {
	Backend         string
	AuctionsTable   string
	MongoURL        string
	MongoDatabase   string
	MongoCollection string
	UpsertRetries   int
}

// HTTPConfig configures the county website client
type HTTPConfig struct {
	Timeout    time.Duration
	MaxRetries int
}

// ScheduleConfig configures auction date resolution
type ScheduleConfig struct {
	ShiftStrategy schedule.ShiftStrategy
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() (*Config, error) {
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}

	v := viper.New()

	v.SetDefault("ENV", "production")
	v.SetDefault("COUNTY_NAME", "Georgetown")
	v.SetDefault("COUNTY_STATE", "SC")
	v.SetDefault("DEFAULT_CITY", "Georgetown")
	v.SetDefault("CITY_ALIASES", "Gtown=Georgetown")
	v.SetDefault("SECTION_HEADING", "Upcoming Foreclosure Sales")
	v.SetDefault("MODEL_ID", "anthropic.claude-3-7-sonnet-20250219-v1:0")
	v.SetDefault("MODEL_MAX_TOKENS", 4000)
	v.SetDefault("STORE_BACKEND", StoreDynamoDB)
	v.SetDefault("AUCTIONS_TABLE", "foreclosure-auctions")
	v.SetDefault("MONGO_COLLECTION", "auctionitems")
	v.SetDefault("UPSERT_RETRIES", 1)
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 60)
	v.SetDefault("HTTP_MAX_RETRIES", 3)
	v.SetDefault("AUCTION_SHIFT_STRATEGY", string(schedule.ShiftNextMonday))
	v.SetDefault("AWS_REGION", "us-east-1")

	v.AutomaticEnv()

	strategy, err := schedule.ParseShiftStrategy(v.GetString("AUCTION_SHIFT_STRATEGY"))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := &Config{
		Env: v.GetString("ENV"),
		County: CountyConfig{
			PageURL:        v.GetString("COUNTY_URL"),
			Name:           v.GetString("COUNTY_NAME"),
			State:          v.GetString("COUNTY_STATE"),
			DefaultCity:    v.GetString("DEFAULT_CITY"),
			CityAliases:    models.ParseCityAliases(v.GetString("CITY_ALIASES")),
			SectionHeading: v.GetString("SECTION_HEADING"),
		},
		Model: ModelConfig{
			ID:        v.GetString("MODEL_ID"),
			MaxTokens: v.GetInt("MODEL_MAX_TOKENS"),
		},
		Store: StoreConfig{
			Backend:         strings.ToLower(v.GetString("STORE_BACKEND")),
			AuctionsTable:   v.GetString("AUCTIONS_TABLE"),
			MongoURL:        v.GetString("MONGO_DB_URL"),
			MongoDatabase:   v.GetString("MONGO_DATABASE"),
			MongoCollection: v.GetString("MONGO_COLLECTION"),
			UpsertRetries:   v.GetInt("UPSERT_RETRIES"),
		},
		HTTP: HTTPConfig{
			Timeout:    time.Duration(v.GetInt("HTTP_TIMEOUT_SECONDS")) * time.Second,
			MaxRetries: v.GetInt("HTTP_MAX_RETRIES"),
		},
		Schedule: ScheduleConfig{
			ShiftStrategy: strategy,
		},
		ArchiveBucket:       v.GetString("S3_BUCKET_NAME"),
		ScraperFunctionName: v.GetString("SCRAPER_FUNCTION_NAME"),
		AWSRegion:           v.GetString("AWS_REGION"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
// COUNTY_URL is checked by RequireCountyURL since the admin API does not scrape.
func (c *Config) Validate() error {
	if c.County.Name == "" {
		return fmt.Errorf("COUNTY_NAME is required")
	}
	if c.County.State == "" {
		return fmt.Errorf("COUNTY_STATE is required")
	}
	if c.Model.MaxTokens < 1 {
		return fmt.Errorf("MODEL_MAX_TOKENS must be at least 1")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("HTTP_MAX_RETRIES must be non-negative")
	}
	if c.Store.UpsertRetries < 0 {
		return fmt.Errorf("UPSERT_RETRIES must be non-negative")
	}

	switch c.Store.Backend {
	case StoreDynamoDB:
		if c.Store.AuctionsTable == "" {
			return fmt.Errorf("AUCTIONS_TABLE is required for the dynamodb store")
		}
	case StoreMongoDB:
		if c.Store.MongoURL == "" {
			return fmt.Errorf("MONGO_DB_URL is required for the mongodb store")
		}
		if c.Store.MongoCollection == "" {
			return fmt.Errorf("MONGO_COLLECTION is required for the mongodb store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	return nil
}

// RequireCountyURL validates the settings only the scraper needs
func (c *Config) RequireCountyURL() error {
	if c.County.PageURL == "" {
		return fmt.Errorf("COUNTY_URL is required")
	}
	if !strings.HasPrefix(c.County.PageURL, "http://") && !strings.HasPrefix(c.County.PageURL, "https://") {
		return fmt.Errorf("COUNTY_URL must start with http:// or https://")
	}
	if c.Model.ID == "" {
		return fmt.Errorf("MODEL_ID is required")
	}
	return nil
}

// Jurisdiction returns the county the scraper is bound to
func (c *Config) Jurisdiction() models.Jurisdiction {
	return models.Jurisdiction{
		County:      c.County.Name,
		State:       c.County.State,
		DefaultCity: c.County.DefaultCity,
		CityAliases: c.County.CityAliases,
	}
}

// IsDevelopment reports whether verbose local logging is wanted
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
