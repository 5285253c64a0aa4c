package config

import (
	"os"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// resetViper clears all viper state between tests to avoid cross-contamination.
func resetViper() {
	viper.Reset()
}

// bindEnv mirrors the root command's env setup.
func bindEnv() {
	viper.SetEnvPrefix("STRATA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

func TestLoad_Defaults(t *testing.T) {
	resetViper()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Seed", cfg.Seed, uint64(0)},
		{"Workers", cfg.Workers, 4},
		{"RetryBudget", cfg.RetryBudget, 0},
		{"Verbose", cfg.Verbose, false},
		{"StateDir", cfg.StateDir, ""},
		{"Trace.Exporter", cfg.Trace.Exporter, "none"},
		{"Trace.Endpoint", cfg.Trace.Endpoint, "localhost:4317"},
		{"Ledger.Driver", cfg.Ledger.Driver, "memory"},
		{"Ledger.Path", cfg.Ledger.Path, "strata.db"},
		{"Ledger.Table", cfg.Ledger.Table, "strata_editions"},
		{"Export.Driver", cfg.Export.Driver, "fs"},
		{"Export.Dir", cfg.Export.Dir, "build"},
		{"Export.S3.Region", cfg.Export.S3.Region, "us-east-1"},
		{"Export.S3.PathStyle", cfg.Export.S3.PathStyle, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	resetViper()

	tests := []struct {
		name   string
		envKey string
		envVal string
		field  func(Config) any
		want   any
	}{
		{
			name:   "seed",
			envKey: "STRATA_SEED",
			envVal: "42",
			field:  func(c Config) any { return c.Seed },
			want:   uint64(42),
		},
		{
			name:   "workers",
			envKey: "STRATA_WORKERS",
			envVal: "9",
			field:  func(c Config) any { return c.Workers },
			want:   9,
		},
		{
			name:   "verbose",
			envKey: "STRATA_VERBOSE",
			envVal: "true",
			field:  func(c Config) any { return c.Verbose },
			want:   true,
		},
		{
			name:   "ledger.driver",
			envKey: "STRATA_LEDGER_DRIVER",
			envVal: "sqlite",
			field:  func(c Config) any { return c.Ledger.Driver },
			want:   "sqlite",
		},
		{
			name:   "export.s3.path_style",
			envKey: "STRATA_EXPORT_S3_PATH_STYLE",
			envVal: "true",
			field:  func(c Config) any { return c.Export.S3.PathStyle },
			want:   true,
		},
		{
			name:   "trace.exporter",
			envKey: "STRATA_TRACE_EXPORTER",
			envVal: "stdout",
			field:  func(c Config) any { return c.Trace.Exporter },
			want:   "stdout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper()
			bindEnv()

			os.Setenv(tt.envKey, tt.envVal)
			defer os.Unsetenv(tt.envKey)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() returned unexpected error: %v", err)
			}
			got := tt.field(cfg)
			if got != tt.want {
				t.Errorf("%s: got %v (%T), want %v (%T)", tt.name, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
		want string
	}{
		{"zero workers", "workers", 0, "workers must be positive"},
		{"negative retry budget", "retry_budget", -1, "retry_budget"},
		{"unknown exporter", "trace.exporter", "jaeger", "unknown trace.exporter"},
		{"postgres without dsn", "ledger.driver", "postgres", "ledger.dsn"},
		{"s3 without bucket", "export.driver", "s3", "export.s3.bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper()
			viper.Set(tt.key, tt.val)

			_, err := Load()
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_DefaultsAreNotZero(t *testing.T) {
	resetViper()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.Workers == 0 {
		t.Error("Workers should not be zero")
	}
	if cfg.Ledger.Driver == "" {
		t.Error("Ledger.Driver should not be empty")
	}
	if cfg.Export.Dir == "" {
		t.Error("Export.Dir should not be empty")
	}
}
