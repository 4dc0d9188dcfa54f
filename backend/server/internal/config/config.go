// Package config loads the server configuration from defaults, an optional YAML file, an
// optional .env file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/govdir/govdir/shared"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

type Config struct {
	ListenAddr  string `yaml:"listen_addr" env:"GOVDIR_LISTEN_ADDR"`
	Environment string `yaml:"environment" env:"GOVDIR_ENV"`

	// PostgresDSN takes precedence over SQLiteDSN when set.
	PostgresDSN    string `yaml:"postgres_dsn" env:"GOVDIR_POSTGRES_DSN"`
	PostgresDriver string `yaml:"postgres_driver" env:"GOVDIR_POSTGRES_DRIVER"`
	SQLiteDSN      string `yaml:"sqlite_dsn" env:"GOVDIR_SQLITE_DSN"`

	JWTSecret  string `yaml:"jwt_secret" env:"GOVDIR_JWT_SECRET"`
	CronSecret string `yaml:"cron_secret" env:"GOVDIR_CRON_SECRET"`

	DailyLimit    int           `yaml:"daily_limit" env:"GOVDIR_DAILY_LIMIT"`
	ResetTime     string        `yaml:"reset_time" env:"GOVDIR_RESET_TIME"`
	ResetTimezone string        `yaml:"reset_timezone" env:"GOVDIR_RESET_TIMEZONE"`
	CronInterval  time.Duration `yaml:"cron_interval" env:"GOVDIR_CRON_INTERVAL"`

	LogLevel       string `yaml:"log_level" env:"GOVDIR_LOG_LEVEL"`
	LogFile        string `yaml:"log_file" env:"GOVDIR_LOG_FILE"`
	StatsdAddr     string `yaml:"statsd_addr" env:"GOVDIR_STATSD_ADDR"`
	ReleaseVersion string `yaml:"release_version" env:"GOVDIR_RELEASE_VERSION"`
}

func Default() Config {
	return Config{
		ListenAddr:     ":8080",
		Environment:    EnvDevelopment,
		PostgresDriver: "pgx",
		SQLiteDSN:      "file:govdir.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		DailyLimit:     shared.DefaultDailyLimit,
		ResetTime:      "00:00",
		ResetTimezone:  "UTC",
		CronInterval:   10 * time.Minute,
		LogLevel:       "info",
		ReleaseVersion: "UNKNOWN",
	}
}

// Load builds the config. path may be empty, in which case no YAML file is read. A missing
// .env file in the working directory is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %#v: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %#v: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Environment {
	case EnvProduction, EnvDevelopment, EnvTest:
	default:
		return fmt.Errorf("unknown environment %#v", c.Environment)
	}
	if _, err := c.QuotaPolicy(); err != nil {
		return err
	}
	if c.CronInterval <= 0 {
		return fmt.Errorf("cron interval must be positive, got %s", c.CronInterval)
	}
	if c.IsProduction() {
		if c.JWTSecret == "" {
			return errors.New("a JWT secret is required in production")
		}
		if c.CronSecret == "" {
			return errors.New("a cron secret is required in production")
		}
	}
	return nil
}

// QuotaPolicy returns the daily allowance and reset boundary described by the config.
func (c Config) QuotaPolicy() (shared.QuotaPolicy, error) {
	if c.DailyLimit <= 0 {
		return shared.QuotaPolicy{}, fmt.Errorf("daily limit must be positive, got %d", c.DailyLimit)
	}
	boundary, err := shared.ParseResetBoundary(c.ResetTime, c.ResetTimezone)
	if err != nil {
		return shared.QuotaPolicy{}, err
	}
	return shared.QuotaPolicy{DailyLimit: c.DailyLimit, Boundary: boundary}, nil
}

func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func (c Config) IsTest() bool {
	return c.Environment == EnvTest
}
