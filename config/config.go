// Package config loads the application configuration with viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// EngineConfig holds script execution settings.
type EngineConfig struct {
	// TimeLimitMS is the advisory script time limit; a script running
	// longer is logged but keeps running. Zero disables the warning.
	TimeLimitMS int `mapstructure:"time_limit_ms"`
	// HookIntervalMS is how often the execution monitor polls control
	// signals while a script runs.
	HookIntervalMS int `mapstructure:"hook_interval_ms"`
	// LockTimeoutMS bounds waiting for the declared key set.
	LockTimeoutMS int `mapstructure:"lock_timeout_ms"`
	// Cluster enables cluster-only gateway checks.
	Cluster bool `mapstructure:"cluster"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// New loads and validates the application configuration. A missing config
// file is not an error; defaults apply.
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetDefault("engine.time_limit_ms", 5000)
	viper.SetDefault("engine.hook_interval_ms", 10)
	viper.SetDefault("engine.lock_timeout_ms", 5000)
	viper.SetDefault("engine.cluster", false)
	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Engine.TimeLimitMS < 0 {
		return fmt.Errorf("engine.time_limit_ms must not be negative, got: %d", c.Engine.TimeLimitMS)
	}
	if c.Engine.HookIntervalMS <= 0 {
		return fmt.Errorf("engine.hook_interval_ms must be positive, got: %d", c.Engine.HookIntervalMS)
	}
	if c.Engine.LockTimeoutMS < 0 {
		return fmt.Errorf("engine.lock_timeout_ms must not be negative, got: %d", c.Engine.LockTimeoutMS)
	}
	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}
	return nil
}

// TimeLimit returns the advisory script time limit as a duration.
func (c *Config) TimeLimit() time.Duration {
	return time.Duration(c.Engine.TimeLimitMS) * time.Millisecond
}

// HookInterval returns the monitor poll interval as a duration.
func (c *Config) HookInterval() time.Duration {
	return time.Duration(c.Engine.HookIntervalMS) * time.Millisecond
}

// LockTimeout returns the key acquisition bound as a duration.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Engine.LockTimeoutMS) * time.Millisecond
}
