// Package config manages proclife configuration
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the proclife configuration
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Pipe     PipeConfig     `mapstructure:"pipe"`
	Scenario ScenarioConfig `mapstructure:"scenario"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// LogConfig holds structured logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PipeConfig holds the pipe double-close policy
type PipeConfig struct {
	StrictClose bool `mapstructure:"strict_close"`
}

// ScenarioConfig holds the inputs and outputs of the scenarios
type ScenarioConfig struct {
	WCTarget       string        `mapstructure:"wc_target"`
	RedirectOutput string        `mapstructure:"redirect_output"`
	SharedFile     string        `mapstructure:"shared_file"`
	RaceJitter     time.Duration `mapstructure:"race_jitter"`
}

// MetricsConfig holds Prometheus export configuration
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
	// Textfile is written after a run when set
	Textfile string `mapstructure:"textfile"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load loads configuration from path, or from proclife.yaml in
// $HOME/.proclife or the working directory when path is empty. A missing
// searched file is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("proclife")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.proclife")
		v.AddConfigPath(".")
	}

	// Environment variable overrides, e.g. PROCLIFE_LOG_LEVEL
	v.SetEnvPrefix("PROCLIFE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (ignore if not found - use defaults)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pipe.strict_close", true)
	v.SetDefault("scenario.wc_target", "go.mod")
	v.SetDefault("scenario.redirect_output", "forking.output")
	v.SetDefault("scenario.shared_file", "q2.txt")
	v.SetDefault("scenario.race_jitter", "25ms")
	v.SetDefault("metrics.namespace", "proclife")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("tracing.enabled", false)
}

// Validate checks values that viper cannot check while decoding
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q: want debug, info, warn or error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log.format %q: want json or text", c.Log.Format)
	}
	if c.Scenario.RaceJitter < 0 {
		return fmt.Errorf("invalid scenario.race_jitter %s: must not be negative", c.Scenario.RaceJitter)
	}
	return nil
}
