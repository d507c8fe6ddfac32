// Package config loads svclife settings from flags, SVCLIFE_* environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix is prepended to every environment variable, with dots in keys
// replaced by underscores (SVCLIFE_DATABASE_PATH).
const EnvPrefix = "SVCLIFE"

// Keys.
const (
	KeyPort            = "port"
	KeyDatabasePath    = "database.path"
	KeySweepEnabled    = "sweep.enabled"
	KeySweepSchedule   = "sweep.schedule"
	KeyLogDevelopment  = "log.development"
	KeyShutdownTimeout = "shutdown.timeout"
)

// Config is the resolved runtime configuration.
type Config struct {
	Port            int
	DatabasePath    string
	Sweep           SweepConfig
	LogDevelopment  bool
	ShutdownTimeout time.Duration
}

// SweepConfig controls the periodic overdue-event sweep.
type SweepConfig struct {
	Enabled  bool
	Schedule string
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyPort, 8080)
	v.SetDefault(KeyDatabasePath, "svclife.db")
	v.SetDefault(KeySweepEnabled, true)
	v.SetDefault(KeySweepSchedule, "*/15 * * * *")
	v.SetDefault(KeyLogDevelopment, false)
	v.SetDefault(KeyShutdownTimeout, 5*time.Second)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"port":             KeyPort,
	"database-path":    KeyDatabasePath,
	"sweep-enabled":    KeySweepEnabled,
	"sweep-schedule":   KeySweepSchedule,
	"log-development":  KeyLogDevelopment,
	"shutdown-timeout": KeyShutdownTimeout,
}

// RegisterFlags adds the server flags to fs. Defaults shown in help come from
// the same values New installs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Int("port", 8080, "HTTP listen port")
	fs.String("database-path", "svclife.db", "SQLite database file")
	fs.Bool("sweep-enabled", true, "run the periodic overdue-event sweep")
	fs.String("sweep-schedule", "*/15 * * * *", "cron schedule of the overdue-event sweep")
	fs.Bool("log-development", false, "human-readable debug logging")
	fs.Duration("shutdown-timeout", 5*time.Second, "grace period for in-flight requests on shutdown")
}

// BindFlags binds every flag in fs that RegisterFlags knows about. Flags only
// override lower layers when set explicitly.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

// ReadFile merges a YAML, TOML or JSON config file below flags and
// environment. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	return nil
}

// Load resolves and validates the configuration.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:         v.GetInt(KeyPort),
		DatabasePath: v.GetString(KeyDatabasePath),
		Sweep: SweepConfig{
			Enabled:  v.GetBool(KeySweepEnabled),
			Schedule: v.GetString(KeySweepSchedule),
		},
		LogDevelopment:  v.GetBool(KeyLogDevelopment),
		ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s: %d is out of range", KeyPort, c.Port))
	}
	if c.DatabasePath == "" {
		errs = append(errs, fmt.Errorf("%s: must not be empty", KeyDatabasePath))
	}
	if c.Sweep.Enabled {
		if _, err := cron.ParseStandard(c.Sweep.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", KeySweepSchedule, err))
		}
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s: must be positive", KeyShutdownTimeout))
	}

	return errors.Join(errs...)
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// NewLogger builds the process logger: JSON at info level in production,
// console output at debug level in development.
func NewLogger(c Config) (*zap.Logger, error) {
	if c.LogDevelopment {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
