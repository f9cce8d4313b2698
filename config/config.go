package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"
)

// Config represents the application configuration
type Config struct {
	Metrics     MetricsConfig     `yaml:"metrics"`
	Locations   LocationsConfig   `yaml:"locations"`
	RemoteWrite RemoteWriteConfig `yaml:"remoteWrite"`
	Logging     LoggingConfig     `yaml:"logging"`
	Profiling   ProfilingConfig   `yaml:"profiling"`
}

// MetricsConfig contains the Prometheus scrape endpoint configuration
type MetricsConfig struct {
	ListenAddress string `yaml:"listenAddress" env:"METRICS_LISTEN_ADDRESS" env-default:":9100"`
}

// LocationsConfig contains the location metadata table configuration
type LocationsConfig struct {
	File string `yaml:"file" env:"LOCATIONS_FILE" env-default:"resources/locations.csv"`
}

// RemoteWriteConfig contains the optional Prometheus remote_write push configuration
type RemoteWriteConfig struct {
	Enabled             bool   `yaml:"enabled" env:"REMOTE_WRITE_ENABLED" env-default:"false"`
	URL                 string `yaml:"url" env:"REMOTE_WRITE_URL"`
	Username            string `yaml:"username" env:"REMOTE_WRITE_USERNAME"`
	Password            string `yaml:"password" env:"REMOTE_WRITE_PASSWORD"`
	PushIntervalSeconds int    `yaml:"pushIntervalSeconds" env:"PUSH_INTERVAL_SECONDS" env-default:"15"`
}

// Load loads configuration from a YAML file with environment variable overrides
func Load(configPath string) (*Config, error) {
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Metrics.ListenAddress) == "" {
		return fmt.Errorf("metrics listen address is required")
	}

	if strings.TrimSpace(c.Locations.File) == "" {
		return fmt.Errorf("locations file path is required")
	}

	if c.RemoteWrite.Enabled {
		if c.RemoteWrite.URL == "" {
			return fmt.Errorf("remote write URL is required when remote write is enabled")
		}
		if c.RemoteWrite.Username == "" {
			return fmt.Errorf("remote write username is required when remote write is enabled")
		}
		if c.RemoteWrite.PushIntervalSeconds < 1 {
			return fmt.Errorf("push interval must be at least 1 second")
		}
	}

	if err := ValidateLogging(&c.Logging); err != nil {
		return err
	}

	if err := ValidateProfiling(&c.Profiling); err != nil {
		return err
	}

	return nil
}

// PrintConfig prints the configuration (masking sensitive fields)
func (c *Config) PrintConfig(logger *zap.Logger) {
	logger.Info("configuration loaded",
		zap.String("metrics_listen_address", c.Metrics.ListenAddress),
		zap.String("locations_file", c.Locations.File),
		zap.Bool("remote_write_enabled", c.RemoteWrite.Enabled),
		zap.String("remote_write_url", c.RemoteWrite.URL),
		zap.String("remote_write_username", c.RemoteWrite.Username),
		zap.Bool("remote_write_password_set", c.RemoteWrite.Password != ""),
		zap.Int("push_interval_seconds", c.RemoteWrite.PushIntervalSeconds),
		zap.String("log_format", c.Logging.Format),
		zap.String("log_level", c.Logging.Level),
		zap.Bool("profiling_enabled", c.Profiling.Enabled),
	)
}
