package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/authcore/internal/logger"
)

const (
	defaultListenAddr       = "localhost:8000"
	defaultLoggingLevel     = logger.LevelInfo
	defaultEnvironment      = logger.EnvProduction
	defaultSweepInterval    = time.Hour
	defaultRefreshRetention = 7 * 24 * time.Hour
	defaultOAuthStateTTL    = 10 * time.Minute
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Redis keeping short-lived oauth authorize state
	RedisURL string

	// Operator token for admin endpoints. Admin endpoints are disabled if empty.
	AdminToken string

	// Environment
	Environment string

	// How often expired refresh tokens are purged and how long they are kept after expiry or revocation
	SweepInterval    time.Duration
	RefreshRetention time.Duration

	// How long user may take to finish oauth authorization
	OAuthStateTTL time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:         defaultLoggingLevel,
		ListenAddr:       defaultListenAddr,
		Environment:      defaultEnvironment,
		SweepInterval:    defaultSweepInterval,
		RefreshRetention: defaultRefreshRetention,
		OAuthStateTTL:    defaultOAuthStateTTL,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":       setString(&c.ListenAddr),
		"DATABASE_URI":      setString(&c.DatabaseDSN),
		"REDIS_URL":         setString(&c.RedisURL),
		"ADMIN_TOKEN":       setString(&c.AdminToken),
		"LOG_LEVEL":         setString(&c.LogLevel),
		"ENVIRONMENT":       setString(&c.Environment),
		"SWEEP_INTERVAL":    setDuration(&c.SweepInterval),
		"REFRESH_RETENTION": setDuration(&c.RefreshRetention),
		"OAUTH_STATE_TTL":   setDuration(&c.OAuthStateTTL),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("authcore", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.RedisURL, "redis", "r", c.RedisURL, "Redis URL, e.g. redis://localhost:6379/0")
	fs.StringVar(&c.AdminToken, "admin-token", c.AdminToken, "Operator token for admin endpoints")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "How often expired refresh tokens are purged")
	fs.DurationVar(&c.RefreshRetention, "refresh-retention", c.RefreshRetention, "How long expired and revoked refresh tokens are kept")
	fs.DurationVar(&c.OAuthStateTTL, "oauth-state-ttl", c.OAuthStateTTL, "How long oauth authorize state lives")

	return fs.Parse(args)
}

// Validate checks options that have no usable default
func (c *Config) Validate() error {
	switch {
	case c.DatabaseDSN == "":
		return errors.New("database connection string is required")
	case c.RedisURL == "":
		return errors.New("redis url is required")
	}
	return nil
}
