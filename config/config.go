package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all configuration for aldia-api. Values come from an optional
// YAML file and environment variables; the environment always wins. Secrets
// are environment-only.
type Config struct {
	Env         string `yaml:"env" env:"ENVIRONMENT" env-default:"development"`
	Port        string `yaml:"port" env:"PORT" env-default:"8080"`
	FrontendURL string `yaml:"frontend_url" env:"FRONTEND_URL" env-default:"http://localhost:3000"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Email     EmailConfig     `yaml:"email"`
	AI        AIConfig        `yaml:"ai"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// DataEncryptionKey seals stored page text. Optional; 32 bytes when set.
	DataEncryptionKey string `yaml:"-" env:"DATA_ENCRYPTION_KEY"`
}

type DatabaseConfig struct {
	// Driver is postgres, mongo or memory.
	Driver       string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	URL          string `yaml:"-" env:"DATABASE_URL"`
	MongoURI     string `yaml:"-" env:"MONGO_URI"`
	MongoName    string `yaml:"mongo_database" env:"MONGO_DATABASE" env-default:"aldia"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns int    `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
}

// AuthConfig verifies tokens issued by the auth service.
type AuthConfig struct {
	JWTSecret string `yaml:"-" env:"JWT_SECRET"`
}

type ScraperConfig struct {
	Headless          bool          `yaml:"headless" env:"SCRAPER_HEADLESS" env-default:"true"`
	Timeout           time.Duration `yaml:"timeout" env:"SCRAPER_TIMEOUT" env-default:"30s"`
	SubmitTimeout     time.Duration `yaml:"submit_timeout" env:"SCRAPER_SUBMIT_TIMEOUT" env-default:"15s"`
	SettleDelay       time.Duration `yaml:"settle_delay" env:"SCRAPER_SETTLE_DELAY" env-default:"1s"`
	ScreenshotOnError bool          `yaml:"screenshot_on_error" env:"SCRAPER_SCREENSHOT_ON_ERROR" env-default:"true"`
	ExecPath          string        `yaml:"chrome_path" env:"CHROME_PATH"`
	CNELURL           string        `yaml:"cnel_url" env:"CNEL_URL"`
	InteraguaURL      string        `yaml:"interagua_url" env:"INTERAGUA_URL"`
}

type SchedulerConfig struct {
	Enabled              bool          `yaml:"enabled" env:"SCHEDULER_ENABLED" env-default:"true"`
	NotificationInterval time.Duration `yaml:"notification_interval" env:"SCHEDULER_NOTIFICATION_INTERVAL" env-default:"30m"`
	OverdueInterval      time.Duration `yaml:"overdue_interval" env:"SCHEDULER_OVERDUE_INTERVAL" env-default:"2h"`
	// RequeryInterval re-queries every saved account; 0 disables it.
	RequeryInterval   time.Duration `yaml:"requery_interval" env:"SCHEDULER_REQUERY_INTERVAL" env-default:"24h"`
	RequeryOnStart    bool          `yaml:"requery_on_start" env:"SCHEDULER_REQUERY_ON_START" env-default:"false"`
	Timezone          string        `yaml:"timezone" env:"SCHEDULER_TIMEZONE" env-default:"America/Guayaquil"`
	DefaultLeadDays   int           `yaml:"default_lead_days" env:"REMINDER_DEFAULT_LEAD_DAYS" env-default:"2"`
	DefaultNotifyTime string        `yaml:"default_notify_time" env:"REMINDER_DEFAULT_NOTIFY_TIME" env-default:"09:00"`
}

type EmailConfig struct {
	ResendAPIKey string `yaml:"-" env:"RESEND_API_KEY"`
	From         string `yaml:"from" env:"EMAIL_FROM" env-default:"recordatorios@aldia.app"`
	AppName      string `yaml:"app_name" env:"EMAIL_APP_NAME" env-default:"AlDía"`
}

type AIConfig struct {
	// Provider is anthropic, openai, gemini or empty (disabled).
	Provider string        `yaml:"provider" env:"AI_PROVIDER"`
	APIKey   string        `yaml:"-" env:"AI_API_KEY"`
	Model    string        `yaml:"model" env:"AI_MODEL"`
	Timeout  time.Duration `yaml:"timeout" env:"AI_TIMEOUT" env-default:"60s"`
}

type RateLimitConfig struct {
	QueriesPerMinute int `yaml:"queries_per_minute" env:"RATE_LIMIT_QUERIES_PER_MINUTE" env-default:"6"`
}

// Load reads .env (if present), then the YAML file at path (if present), then
// the environment, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{}
	var err error
	if _, statErr := os.Stat(path); path != "" && statErr == nil {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location returns the scheduler timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case "mongo":
		if c.Database.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver))
	}

	switch strings.ToLower(c.AI.Provider) {
	case "", "anthropic", "openai", "gemini":
	default:
		errs = append(errs, fmt.Errorf("unknown AI_PROVIDER %q", c.AI.Provider))
	}

	if c.DataEncryptionKey != "" && len(c.DataEncryptionKey) != 32 {
		errs = append(errs, errors.New("DATA_ENCRYPTION_KEY must be exactly 32 characters"))
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid scheduler timezone %q: %w", c.Scheduler.Timezone, err))
	}
	if _, err := time.Parse("15:04", c.Scheduler.DefaultNotifyTime); err != nil {
		errs = append(errs, fmt.Errorf("invalid default notify time %q, want HH:MM", c.Scheduler.DefaultNotifyTime))
	}
	if c.Scheduler.DefaultLeadDays < 0 {
		errs = append(errs, errors.New("default lead days cannot be negative"))
	}
	if c.Scheduler.NotificationInterval <= 0 || c.Scheduler.OverdueInterval <= 0 {
		errs = append(errs, errors.New("scheduler intervals must be positive"))
	}
	if c.Scheduler.RequeryInterval < 0 {
		errs = append(errs, errors.New("requery interval cannot be negative"))
	}
	if c.Scraper.Timeout <= 0 {
		errs = append(errs, errors.New("scraper timeout must be positive"))
	}
	if c.RateLimit.QueriesPerMinute <= 0 {
		errs = append(errs, errors.New("queries per minute must be positive"))
	}

	return errors.Join(errs...)
}
