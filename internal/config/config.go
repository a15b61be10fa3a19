package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the scheduling service.
// Environment variables are parsed from the SCHEDULER_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// DBDriver selects the store backend: postgres or sqlite
	DBDriver    string `envconfig:"DB_DRIVER" default:"auto"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"scheduler.db"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// APIKeys is a comma-separated list of accepted keys. Empty leaves
	// the API open for local development.
	APIKeys string `envconfig:"API_KEYS" default:""`

	// Collaborator endpoints
	SolverURL     string `envconfig:"SOLVER_URL" default:""`
	CalendarURL   string `envconfig:"CALENDAR_URL" default:""`
	ConferenceURL string `envconfig:"CONFERENCE_URL" default:""`
	NotifyURL     string `envconfig:"NOTIFY_URL" default:""`

	// Orchestration policy
	MaxSolveAttempts int           `envconfig:"MAX_SOLVE_ATTEMPTS" default:"3"`
	SolveWaitTimeout time.Duration `envconfig:"SOLVE_WAIT_TIMEOUT" default:"15m"`
	SubmitLeadTime   time.Duration `envconfig:"SUBMIT_LEAD_TIME" default:"24h"`

	// Calendar application
	ApplyWorkers     int           `envconfig:"APPLY_WORKERS" default:"4"`
	ApplyMaxAttempts int           `envconfig:"APPLY_MAX_ATTEMPTS" default:"5"`
	ApplyBaseBackoff time.Duration `envconfig:"APPLY_BASE_BACKOFF" default:"200ms"`
	ApplyMaxInterval time.Duration `envconfig:"APPLY_MAX_INTERVAL" default:"10s"`

	// Recurrence
	RecurrenceMaxOccurrences int `envconfig:"RECURRENCE_MAX_OCCURRENCES" default:"52"`

	// Sweeper
	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	SweepBatchSize int           `envconfig:"SWEEP_BATCH_SIZE" default:"100"`
}

// ResolveDefaults validates the driver selection and derives DBDriver when
// set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	if c.DBDriver == "" || c.DBDriver == "auto" {
		if c.PostgresDSN != "" {
			c.DBDriver = "postgres"
		} else {
			c.DBDriver = "sqlite"
		}
	}
	switch c.DBDriver {
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("DB_DRIVER=postgres requires POSTGRES_DSN")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("DB_DRIVER=sqlite requires SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.MaxSolveAttempts < 1 {
		return fmt.Errorf("MAX_SOLVE_ATTEMPTS must be at least 1")
	}
	if c.RecurrenceMaxOccurrences < 1 {
		return fmt.Errorf("RECURRENCE_MAX_OCCURRENCES must be at least 1")
	}
	if c.IsProduction() && len(c.APIKeyList()) == 0 {
		log.Warn().Msg("no API keys configured in production, the API is open")
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Example: SCHEDULER_HTTP_PORT, SCHEDULER_POSTGRES_DSN.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("SCHEDULER", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("db_driver", cfg.DBDriver).
		Int("port", cfg.HTTPPort).
		Int("max_solve_attempts", cfg.MaxSolveAttempts).
		Dur("solve_wait_timeout", cfg.SolveWaitTimeout).
		Dur("submit_lead_time", cfg.SubmitLeadTime).
		Dur("sweep_interval", cfg.SweepInterval).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for tests.
func NewForTesting() *Config {
	return &Config{
		Environment:              EnvTesting,
		DBDriver:                 "sqlite",
		SQLitePath:               ":memory:",
		HTTPPort:                 8080,
		MaxSolveAttempts:         3,
		SolveWaitTimeout:         time.Minute,
		SubmitLeadTime:           24 * time.Hour,
		ApplyWorkers:             2,
		ApplyMaxAttempts:         3,
		ApplyBaseBackoff:         time.Millisecond,
		ApplyMaxInterval:         5 * time.Millisecond,
		RecurrenceMaxOccurrences: 52,
		SweepInterval:            time.Second,
		SweepBatchSize:           100,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// APIKeyList splits the configured API keys, dropping empty entries.
func (c *Config) APIKeyList() []string {
	var keys []string
	for _, k := range strings.Split(c.APIKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
