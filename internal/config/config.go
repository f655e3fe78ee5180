// Package config loads settings from an optional YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/recoverypulse/internal/snapshot"
)

const (
	ProviderFixture = "fixture"
	ProviderStripe  = "stripe"
)

type Config struct {
	Port     string          `yaml:"port"`
	DBPath   string          `yaml:"db_path"`
	Timezone string          `yaml:"timezone"`
	Log      LogConfig       `yaml:"log"`
	Billing  BillingConfig   `yaml:"billing"`
	Snapshot snapshot.Config `yaml:"snapshot"`
	// AdminRateLimit is the number of admin requests allowed per minute per IP.
	AdminRateLimit int `yaml:"admin_rate_limit"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type BillingConfig struct {
	Provider string       `yaml:"provider"`
	Stripe   StripeConfig `yaml:"stripe"`
}

type StripeConfig struct {
	SecretKey      string `yaml:"secret_key"`
	CustomerID     string `yaml:"customer_id"`
	AnnualPriceID  string `yaml:"annual_price_id"`
	MonthlyPriceID string `yaml:"monthly_price_id"`
	TrialDays      int    `yaml:"trial_days"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:     "8080",
		DBPath:   "recoverypulse.db",
		Timezone: "Local",
		Log:      LogConfig{Level: "info", Format: "text"},
		Billing: BillingConfig{
			Provider: ProviderFixture,
			Stripe:   StripeConfig{TrialDays: 7},
		},
		AdminRateLimit: 10,
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path or a missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyEnv(&cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("PULSE_PORT", &cfg.Port)
	str("PULSE_DB_PATH", &cfg.DBPath)
	str("PULSE_TIMEZONE", &cfg.Timezone)
	str("PULSE_LOG_LEVEL", &cfg.Log.Level)
	str("PULSE_LOG_FORMAT", &cfg.Log.Format)
	num("PULSE_ADMIN_RATE_LIMIT", &cfg.AdminRateLimit)

	str("PULSE_BILLING_PROVIDER", &cfg.Billing.Provider)
	str("STRIPE_SECRET_KEY", &cfg.Billing.Stripe.SecretKey)
	str("STRIPE_CUSTOMER_ID", &cfg.Billing.Stripe.CustomerID)
	str("STRIPE_ANNUAL_PRICE_ID", &cfg.Billing.Stripe.AnnualPriceID)
	str("STRIPE_MONTHLY_PRICE_ID", &cfg.Billing.Stripe.MonthlyPriceID)
	num("STRIPE_TRIAL_DAYS", &cfg.Billing.Stripe.TrialDays)

	str("PULSE_SNAPSHOT_DIR", &cfg.Snapshot.Dir)
	str("PULSE_SNAPSHOT_PASSPHRASE", &cfg.Snapshot.Passphrase)
	str("PULSE_S3_ENDPOINT", &cfg.Snapshot.S3.Endpoint)
	str("PULSE_S3_BUCKET", &cfg.Snapshot.S3.Bucket)
	str("PULSE_S3_REGION", &cfg.Snapshot.S3.Region)
	str("PULSE_S3_ACCESS_KEY", &cfg.Snapshot.S3.AccessKey)
	str("PULSE_S3_SECRET_KEY", &cfg.Snapshot.S3.SecretKey)
	str("PULSE_S3_PREFIX", &cfg.Snapshot.S3.Prefix)
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	switch c.Billing.Provider {
	case ProviderFixture:
	case ProviderStripe:
		s := c.Billing.Stripe
		if s.SecretKey == "" || s.CustomerID == "" {
			return errors.New("stripe billing requires secret_key and customer_id")
		}
	default:
		return fmt.Errorf("unknown billing provider %q", c.Billing.Provider)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone. "Local" and "" mean the system zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}
