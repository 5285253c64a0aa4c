package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// TraceConfig selects the span exporter.
type TraceConfig struct {
	Exporter string `mapstructure:"exporter"` // none, stdout or otlp
	Path     string `mapstructure:"path"`     // stdout exporter target file; empty means stderr
	Endpoint string `mapstructure:"endpoint"` // otlp collector address
}

// LedgerConfig selects where accepted editions are recorded.
type LedgerConfig struct {
	Driver string `mapstructure:"driver"` // memory, sqlite or postgres
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// S3Config holds the bucket settings of the s3 export driver.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// ExportConfig selects where the audit and DNA list are written.
type ExportConfig struct {
	Driver string   `mapstructure:"driver"` // fs, s3 or memory
	Dir    string   `mapstructure:"dir"`
	S3     S3Config `mapstructure:"s3"`
}

// Config holds all runtime configuration for a strata run.
// Values are populated from .strata.yaml, STRATA_* env vars, and CLI flags.
// The collection itself comes from the manifest, not from here.
type Config struct {
	Seed        uint64       `mapstructure:"seed"` // 0 picks a random seed
	Workers     int          `mapstructure:"workers"`
	RetryBudget int          `mapstructure:"retry_budget"` // overrides the manifest when > 0
	Verbose     bool         `mapstructure:"verbose"`
	LogFile     string       `mapstructure:"log_file"`
	EventsPath  string       `mapstructure:"events_path"`
	MetricsAddr string       `mapstructure:"metrics_addr"`
	StateDir    string       `mapstructure:"state_dir"` // empty means the manifest directory
	Trace       TraceConfig  `mapstructure:"trace"`
	Ledger      LedgerConfig `mapstructure:"ledger"`
	Export      ExportConfig `mapstructure:"export"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("seed", 0)
	viper.SetDefault("workers", 4)
	viper.SetDefault("retry_budget", 0)
	viper.SetDefault("verbose", false)
	viper.SetDefault("log_file", "")
	viper.SetDefault("events_path", "")
	viper.SetDefault("metrics_addr", "")
	viper.SetDefault("state_dir", "")
	viper.SetDefault("trace.exporter", "none")
	viper.SetDefault("trace.path", "")
	viper.SetDefault("trace.endpoint", "localhost:4317")
	viper.SetDefault("ledger.driver", "memory")
	viper.SetDefault("ledger.path", "strata.db")
	viper.SetDefault("ledger.dsn", "")
	viper.SetDefault("ledger.table", "strata_editions")
	viper.SetDefault("export.driver", "fs")
	viper.SetDefault("export.dir", "build")
	viper.SetDefault("export.s3.bucket", "")
	viper.SetDefault("export.s3.region", "us-east-1")
	viper.SetDefault("export.s3.prefix", "")
	viper.SetDefault("export.s3.endpoint", "")
	viper.SetDefault("export.s3.path_style", false)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that cannot be fixed with a default.
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.RetryBudget < 0 {
		return fmt.Errorf("retry_budget must not be negative, got %d", c.RetryBudget)
	}
	switch c.Trace.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		return fmt.Errorf("unknown trace.exporter %q (want none, stdout or otlp)", c.Trace.Exporter)
	}
	if c.Ledger.Driver == "postgres" && c.Ledger.DSN == "" {
		return fmt.Errorf("ledger.dsn is required for the postgres driver")
	}
	if c.Export.Driver == "s3" && c.Export.S3.Bucket == "" {
		return fmt.Errorf("export.s3.bucket is required for the s3 driver")
	}
	return nil
}
