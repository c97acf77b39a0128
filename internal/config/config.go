package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const minSecretBytes = 32

type Config struct {
	Port     string `mapstructure:"PORT"`
	AppEnv   string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DatabaseURL     string `mapstructure:"DATABASE_URL"`
	DBMaxOpenConns  int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns  int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	RunMigrations   bool   `mapstructure:"RUN_MIGRATIONS_ON_STARTUP"`
	SentryDSN       string `mapstructure:"SENTRY_DSN"`
	CronSecret      string `mapstructure:"CRON_SECRET"`
	AdminUsername   string `mapstructure:"ADMIN_USERNAME"`
	AdminPassword   string `mapstructure:"ADMIN_PASSWORD"`
	JWTSecret       string `mapstructure:"JWT_SECRET"`
	AccessTTLMin    int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`
	RefreshTTLHours int    `mapstructure:"REFRESH_TOKEN_TTL_HOURS"`

	LoginMaxAttempts    int `mapstructure:"LOGIN_MAX_ATTEMPTS"`
	LoginLockMinutes    int `mapstructure:"LOGIN_LOCK_MINUTES"`
	SweepMinutes        int `mapstructure:"REVOCATION_SWEEP_MINUTES"`
	RateLimitMax        int `mapstructure:"LOGIN_RATE_LIMIT_MAX"`
	RateLimitWindowSecs int `mapstructure:"LOGIN_RATE_LIMIT_WINDOW_SECONDS"`
}

var defaults = map[string]any{
	"PORT":                            "8080",
	"APP_ENV":                         "development",
	"LOG_LEVEL":                       "info",
	"DB_MAX_OPEN_CONNS":               10,
	"DB_MAX_IDLE_CONNS":               5,
	"RUN_MIGRATIONS_ON_STARTUP":       false,
	"ACCESS_TOKEN_TTL_MINUTES":        60,
	"REFRESH_TOKEN_TTL_HOURS":         24,
	"LOGIN_MAX_ATTEMPTS":              3,
	"LOGIN_LOCK_MINUTES":              5,
	"REVOCATION_SWEEP_MINUTES":        60,
	"LOGIN_RATE_LIMIT_MAX":            10,
	"LOGIN_RATE_LIMIT_WINDOW_SECONDS": 60,
}

var keys = []string{
	"PORT", "APP_ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "RUN_MIGRATIONS_ON_STARTUP",
	"SENTRY_DSN", "CRON_SECRET", "ADMIN_USERNAME", "ADMIN_PASSWORD",
	"JWT_SECRET", "ACCESS_TOKEN_TTL_MINUTES", "REFRESH_TOKEN_TTL_HOURS",
	"LOGIN_MAX_ATTEMPTS", "LOGIN_LOCK_MINUTES", "REVOCATION_SWEEP_MINUTES",
	"LOGIN_RATE_LIMIT_MAX", "LOGIN_RATE_LIMIT_WINDOW_SECONDS",
}

// Load reads .env when loadDotEnv is set and the file exists, then the
// process environment.
func Load(loadDotEnv bool) (*Config, error) {
	if loadDotEnv {
		if _, err := os.Stat(".env"); err == nil {
			if err := godotenv.Load(".env"); err != nil {
				return nil, fmt.Errorf("load .env: %w", err)
			}
		}
	}

	v := viper.New()
	for k, value := range defaults {
		v.SetDefault(k, value)
	}
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyFallbacks()

	return &cfg, nil
}

func (c *Config) applyFallbacks() {
	positive := func(value *int, key string) {
		if *value <= 0 {
			*value = defaults[key].(int)
		}
	}
	positive(&c.DBMaxOpenConns, "DB_MAX_OPEN_CONNS")
	positive(&c.DBMaxIdleConns, "DB_MAX_IDLE_CONNS")
	positive(&c.AccessTTLMin, "ACCESS_TOKEN_TTL_MINUTES")
	positive(&c.RefreshTTLHours, "REFRESH_TOKEN_TTL_HOURS")
	positive(&c.LoginMaxAttempts, "LOGIN_MAX_ATTEMPTS")
	positive(&c.LoginLockMinutes, "LOGIN_LOCK_MINUTES")
	positive(&c.SweepMinutes, "REVOCATION_SWEEP_MINUTES")
	positive(&c.RateLimitMax, "LOGIN_RATE_LIMIT_MAX")
	positive(&c.RateLimitWindowSecs, "LOGIN_RATE_LIMIT_WINDOW_SECONDS")

	c.JWTSecret = strings.TrimSpace(c.JWTSecret)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
}

func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("missing required env: DATABASE_URL"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("missing required env: JWT_SECRET"))
	} else if len(c.JWTSecret) < minSecretBytes {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretBytes))
	}
	if c.RefreshTTL() <= c.AccessTTL() {
		errs = append(errs, errors.New("refresh token TTL must be longer than access token TTL"))
	}
	return errors.Join(errs...)
}

func (c *Config) AccessTTL() time.Duration { return time.Duration(c.AccessTTLMin) * time.Minute }

func (c *Config) RefreshTTL() time.Duration { return time.Duration(c.RefreshTTLHours) * time.Hour }

func (c *Config) LockDuration() time.Duration {
	return time.Duration(c.LoginLockMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepMinutes) * time.Minute
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSecs) * time.Second
}

func (c *Config) String() string {
	mask := func(value string) string {
		if value == "" {
			return "(empty)"
		}
		return "********"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "  Port: %s\n", c.Port)
	fmt.Fprintf(&sb, "  AppEnv: %s\n", c.AppEnv)
	fmt.Fprintf(&sb, "  LogLevel: %s\n", c.LogLevel)
	fmt.Fprintf(&sb, "  DatabaseURL: %s\n", mask(c.DatabaseURL))
	fmt.Fprintf(&sb, "  JWTSecret: %s\n", mask(c.JWTSecret))
	fmt.Fprintf(&sb, "  CronSecret: %s\n", mask(c.CronSecret))
	fmt.Fprintf(&sb, "  AccessTTL: %s\n", c.AccessTTL())
	fmt.Fprintf(&sb, "  RefreshTTL: %s\n", c.RefreshTTL())
	fmt.Fprintf(&sb, "  LoginMaxAttempts: %d\n", c.LoginMaxAttempts)
	fmt.Fprintf(&sb, "  LockDuration: %s\n", c.LockDuration())
	fmt.Fprintf(&sb, "  SweepInterval: %s\n", c.SweepInterval())
	return sb.String()
}
