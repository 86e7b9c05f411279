package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Store backend drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options holds the daemon's configuration. Defaults come from
// environment variables, can be overridden by an optional YAML config
// file, and finally by command line flags.
type Options struct {
	// DatabaseDriver selects the store backend: sqlite or postgres.
	DatabaseDriver string `yaml:"databaseDriver"`

	// DatabaseURL is the sqlite file path or postgres connection string.
	DatabaseURL string `yaml:"databaseURL"`

	// TickInterval is how often the run daemon triggers a scheduling
	// tick.
	TickInterval time.Duration `yaml:"tickInterval"`

	// Concurrency is the check worker pool width within one tick.
	Concurrency int `yaml:"concurrency"`

	// OpsAddr is the listen address for metrics and health.
	OpsAddr string `yaml:"opsAddr"`

	// NATSURL, when set, enables alert dispatch over NATS.
	NATSURL string `yaml:"natsURL"`

	// AlertSubjectPrefix is prepended to alert channel names when
	// publishing to NATS.
	AlertSubjectPrefix string `yaml:"alertSubjectPrefix"`
}

// NewDefaultOptions creates Options seeded from environment variables
// with sane defaults.
func NewDefaultOptions() *Options {
	return &Options{
		DatabaseDriver:     getEnv("CRITIC_DATABASE_DRIVER", DriverSQLite),
		DatabaseURL:        getEnv("CRITIC_DATABASE_URL", "critic.db"),
		TickInterval:       getEnvDuration("CRITIC_TICK_INTERVAL", time.Minute),
		Concurrency:        getEnvInt("CRITIC_CONCURRENCY", 8),
		OpsAddr:            getEnv("CRITIC_OPS_ADDR", ":9090"),
		NATSURL:            getEnv("CRITIC_NATS_URL", ""),
		AlertSubjectPrefix: getEnv("CRITIC_ALERT_SUBJECT_PREFIX", "critic.alerts"),
	}
}

// AddFlags registers flags for all options on cmd.
func (o *Options) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&o.DatabaseDriver, "database-driver", o.DatabaseDriver, "Store backend, sqlite or postgres.")
	cmd.PersistentFlags().StringVar(&o.DatabaseURL, "database-url", o.DatabaseURL, "SQLite file path or postgres connection string.")
	cmd.PersistentFlags().DurationVar(&o.TickInterval, "tick-interval", o.TickInterval, "How often the daemon runs a scheduling tick.")
	cmd.PersistentFlags().IntVar(&o.Concurrency, "concurrency", o.Concurrency, "Check worker pool width within one tick.")
	cmd.PersistentFlags().StringVar(&o.OpsAddr, "ops-addr", o.OpsAddr, "Listen address for metrics and health.")
	cmd.PersistentFlags().StringVar(&o.NATSURL, "nats-url", o.NATSURL, "NATS server URL for alert dispatch. Empty logs alerts instead.")
	cmd.PersistentFlags().StringVar(&o.AlertSubjectPrefix, "alert-subject-prefix", o.AlertSubjectPrefix, "Subject prefix for alert channels published to NATS.")
}

// Validate checks options for consistency.
func (o *Options) Validate() error {
	switch o.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return errors.Errorf("unsupported database driver %q", o.DatabaseDriver)
	}
	if o.DatabaseURL == "" {
		return errors.New("database url must not be empty")
	}
	if o.TickInterval <= 0 {
		return errors.New("tick interval must be positive")
	}
	if o.Concurrency < 1 {
		return errors.New("concurrency must be at least 1")
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler so durations can be written
// in Go syntax ("1m", "90s") in config files.
func (o *Options) UnmarshalYAML(value *yaml.Node) error {
	var plain struct {
		DatabaseDriver     string `yaml:"databaseDriver"`
		DatabaseURL        string `yaml:"databaseURL"`
		TickInterval       string `yaml:"tickInterval"`
		Concurrency        int    `yaml:"concurrency"`
		OpsAddr            string `yaml:"opsAddr"`
		NATSURL            string `yaml:"natsURL"`
		AlertSubjectPrefix string `yaml:"alertSubjectPrefix"`
	}
	if err := value.Decode(&plain); err != nil {
		return err
	}
	o.DatabaseDriver = plain.DatabaseDriver
	o.DatabaseURL = plain.DatabaseURL
	o.Concurrency = plain.Concurrency
	o.OpsAddr = plain.OpsAddr
	o.NATSURL = plain.NATSURL
	o.AlertSubjectPrefix = plain.AlertSubjectPrefix
	if plain.TickInterval != "" {
		interval, err := time.ParseDuration(plain.TickInterval)
		if err != nil {
			return errors.Wrapf(err, "invalid tickInterval %q", plain.TickInterval)
		}
		o.TickInterval = interval
	}
	return nil
}

// ReadFile loads options from a YAML config file.
func ReadFile(path string) (*Options, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	options := &Options{}
	if err := yaml.Unmarshal(buf, options); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return options, nil
}

// Helper function to get an environment variable or return a default
// value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Helper function to get an environment variable as an integer.
func getEnvInt(key string, fallback int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

// Helper function to get an environment variable as a time.Duration.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return fallback
}
