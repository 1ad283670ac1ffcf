// Package config provides configuration loading and validation for passcrack.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Sentinel validation errors.
var (
	ErrInvalidWorkers     = errors.New("workers must not be negative")
	ErrInvalidQueueFactor = errors.New("queue factor must be positive")
	ErrInvalidInterval    = errors.New("report interval must be positive")
	ErrInvalidLogLevel    = errors.New("unknown log level")
	ErrInvalidLogFormat   = errors.New("unknown log format")
)

// Default configuration values.
const (
	DefaultKeyringPath    = "~/.gnupg/secring.gpg"
	DefaultHaltOnFirstHit = true
	DefaultWorkers        = 0
	DefaultQueueFactor    = 16
	DefaultReportInterval = time.Second
	DefaultLogLevel       = "warn"
	DefaultLogFormat      = FormatText

	envPrefix  = "PASSCRACK"
	configName = ".passcrack"
	configType = "yaml"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds all configuration for a passcrack run.
type Config struct {
	Keyring       KeyringConfig       `mapstructure:"keyring"       yaml:"keyring"`
	Crack         CrackConfig         `mapstructure:"crack"         yaml:"crack"`
	Input         InputConfig         `mapstructure:"input"         yaml:"input"`
	Logging       LoggingConfig       `mapstructure:"logging"       yaml:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// KeyringConfig selects the secret key to attack.
type KeyringConfig struct {
	Path  string `mapstructure:"path"   yaml:"path"`
	KeyID string `mapstructure:"key_id" yaml:"key_id"`
}

// CrackConfig tunes the cracking pipeline.
type CrackConfig struct {
	HaltOnFirstHit bool          `mapstructure:"halt_on_first_hit" yaml:"halt_on_first_hit"`
	Workers        int           `mapstructure:"workers"           yaml:"workers"`
	QueueFactor    int           `mapstructure:"queue_factor"      yaml:"queue_factor"`
	ReportInterval time.Duration `mapstructure:"report_interval"   yaml:"report_interval"`
}

// MarshalYAML renders ReportInterval as a duration string.
func (c CrackConfig) MarshalYAML() (any, error) {
	return struct {
		HaltOnFirstHit bool   `yaml:"halt_on_first_hit"`
		Workers        int    `yaml:"workers"`
		QueueFactor    int    `yaml:"queue_factor"`
		ReportInterval string `yaml:"report_interval"`
	}{
		HaltOnFirstHit: c.HaltOnFirstHit,
		Workers:        c.Workers,
		QueueFactor:    c.QueueFactor,
		ReportInterval: c.ReportInterval.String(),
	}, nil
}

// InputConfig names the candidate stream; empty or "-" is stdin.
type InputConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	// RevealSecrets logs candidate passphrases in clear text.
	RevealSecrets bool `mapstructure:"reveal_secrets" yaml:"reveal_secrets"`
}

// ObservabilityConfig holds telemetry export settings.
type ObservabilityConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"  yaml:"otlp_headers"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure" yaml:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"  yaml:"sample_ratio"`
	MetricsAddr  string  `mapstructure:"metrics_addr"  yaml:"metrics_addr"`
}

// LoadConfig loads configuration from file and environment variables.
// With an empty configPath, ".passcrack.yaml" is looked up in the working
// directory and then in $HOME; a missing file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.SetConfigType(configType)
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("$HOME")
	}

	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperCfg.AutomaticEnv()

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := config.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("keyring.path", DefaultKeyringPath)
	viperCfg.SetDefault("keyring.key_id", "")

	viperCfg.SetDefault("crack.halt_on_first_hit", DefaultHaltOnFirstHit)
	viperCfg.SetDefault("crack.workers", DefaultWorkers)
	viperCfg.SetDefault("crack.queue_factor", DefaultQueueFactor)
	viperCfg.SetDefault("crack.report_interval", DefaultReportInterval.String())

	viperCfg.SetDefault("input.path", "")

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)
	viperCfg.SetDefault("logging.reveal_secrets", false)

	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_headers", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
	viperCfg.SetDefault("observability.sample_ratio", 0.0)
	viperCfg.SetDefault("observability.metrics_addr", "")
}

// Validate checks value ranges. It is called by LoadConfig and should be
// called again after flag overrides.
func (c *Config) Validate() error {
	if c.Crack.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Crack.Workers)
	}

	if c.Crack.QueueFactor <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQueueFactor, c.Crack.QueueFactor)
	}

	if c.Crack.ReportInterval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, c.Crack.ReportInterval)
	}

	_, err := c.Logging.SlogLevel()
	if err != nil {
		return err
	}

	switch c.Logging.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	return nil
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(l.Level))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, l.Level)
	}

	return level, nil
}

// Dump writes the effective configuration as YAML.
func (c *Config) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	err := enc.Encode(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	err = enc.Close()
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	return nil
}
