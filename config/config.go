/*
Package config loads the application configuration.

SOURCES (later wins):
  1. Defaults (Default)
  2. TOML file, when present
  3. .env file, when present (never overrides variables already set)
  4. CRM_* environment variables
  5. Command line flags, applied by cmd/*

EXAMPLE (config.toml):
  [server]
  port = 8080
  cors_origins = ["http://localhost:3000"]

  [database]
  driver = "postgres"
  dsn = "postgres://crm@localhost/crm"

  [objectives]
  channels = ["Directo", "Mayorista"]
  transition_year = 2026
  january_exceptions = [2, 3]
  split_policy = "warn"

  [scheduler]
  enabled = true
  interval = "24h"
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/objectives"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CRM_"

// Config is the application configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Log        LogConfig        `toml:"log"`
	Objectives ObjectivesConfig `toml:"objectives"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port         int      `toml:"port"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
	IdleTimeout  Duration `toml:"idle_timeout"`
	CORSOrigins  []string `toml:"cors_origins"`
}

// DatabaseConfig selects the store. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// ObjectivesConfig configures the apportionment engine.
type ObjectivesConfig struct {
	Channels          []string `toml:"channels"`
	TransitionYear    int      `toml:"transition_year"`
	JanuaryExceptions []int64  `toml:"january_exceptions"`
	SplitPolicy       string   `toml:"split_policy"`
}

// SchedulerConfig configures periodic recomputation.
type SchedulerConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
}

// Duration is a time.Duration written as "30s" or "24h".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  Duration{15 * time.Second},
			WriteTimeout: Duration{60 * time.Second},
			IdleTimeout:  Duration{60 * time.Second},
			CORSOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "crm.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Objectives: ObjectivesConfig{
			Channels:          append([]string(nil), objectives.DefaultChannels...),
			TransitionYear:    objectives.DefaultTransitionYear,
			JanuaryExceptions: []int64{2, 3},
			SplitPolicy:       string(objectives.SplitPolicyWarn),
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Interval: Duration{24 * time.Hour},
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path, the
// .env file at envFile and the environment. Missing files are skipped; an
// empty path skips the file.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = splitList(v)
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			if err := dst.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			}
		}
	}

	integer("PORT", &c.Server.Port)
	list("CORS_ORIGINS", &c.Server.CORSOrigins)
	str("DB_DRIVER", &c.Database.Driver)
	str("DB_PATH", &c.Database.Path)
	str("DB_DSN", &c.Database.DSN)
	str("LOG_LEVEL", &c.Log.Level)
	boolean("LOG_DEVELOPMENT", &c.Log.Development)
	list("OBJECTIVES_CHANNELS", &c.Objectives.Channels)
	integer("TRANSITION_YEAR", &c.Objectives.TransitionYear)
	str("SPLIT_POLICY", &c.Objectives.SplitPolicy)
	boolean("SCHEDULER_ENABLED", &c.Scheduler.Enabled)
	duration("SCHEDULER_INTERVAL", &c.Scheduler.Interval)

	if v, ok := lookup(EnvPrefix + "JANUARY_EXCEPTIONS"); ok {
		ids := []int64{}
		for _, s := range splitList(v) {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%sJANUARY_EXCEPTIONS: %w", EnvPrefix, err))
				continue
			}
			ids = append(ids, id)
		}
		c.Objectives.JanuaryExceptions = ids
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if len(c.Objectives.Channels) == 0 {
		return errors.New("at least one objectives channel is required")
	}
	if _, err := objectives.ParseSplitPolicy(c.Objectives.SplitPolicy); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval.Duration <= 0 {
		return errors.New("scheduler interval must be positive")
	}
	return nil
}

// NewLogger builds the zap logger described by c.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = level
	return zc.Build()
}

// ApportionOptions converts the objectives section into engine options.
func (c ObjectivesConfig) ApportionOptions() (objectives.Options, error) {
	policy, err := objectives.ParseSplitPolicy(c.SplitPolicy)
	if err != nil {
		return objectives.Options{}, err
	}
	return objectives.Options{
		Channels:       c.Channels,
		TransitionYear: c.TransitionYear,
		SplitPolicy:    policy,
	}, nil
}

// JanuaryExceptionIDs returns the January exception list as salesperson ids.
func (c ObjectivesConfig) JanuaryExceptionIDs() []generic.SalespersonID {
	ids := make([]generic.SalespersonID, 0, len(c.JanuaryExceptions))
	for _, id := range c.JanuaryExceptions {
		ids = append(ids, generic.SalespersonID(id))
	}
	return ids
}
