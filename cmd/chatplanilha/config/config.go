// Package config provides configuration structures for the chatplanilha CLI.
package config

import (
	"fmt"
	"time"
)

// Config represents the runtime configuration.
type Config struct {
	// Core settings
	LogLevel       string        `yaml:"log_level" json:"log_level"`
	MaxRows        int           `yaml:"max_rows" json:"max_rows"`
	IdleWindow     time.Duration `yaml:"idle_window" json:"idle_window"`
	AskTimeout     time.Duration `yaml:"ask_timeout" json:"ask_timeout"`
	MaxDisplayRows int           `yaml:"max_display_rows" json:"max_display_rows"`
	Workers        int           `yaml:"workers" json:"workers"`

	// Model configuration
	Model ModelConfig `yaml:"model" json:"model"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// ModelConfig represents the language model client configuration.
type ModelConfig struct {
	APIKey      string        `yaml:"api_key" json:"api_key"`
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	Name        string        `yaml:"name" json:"name"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries  int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay" json:"retry_delay"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// Validate validates the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.MaxRows <= 0 {
		c.MaxRows = 500000
	}

	if c.IdleWindow <= 0 {
		c.IdleWindow = 30 * time.Minute
	}

	if c.AskTimeout <= 0 {
		c.AskTimeout = 2 * time.Minute
	}

	if c.MaxDisplayRows <= 0 {
		c.MaxDisplayRows = 200
	}

	if c.Workers <= 0 {
		c.Workers = 4
	}

	if c.Model.APIKey == "" {
		return fmt.Errorf("model API key is required")
	}

	if c.Model.Timeout <= 0 {
		c.Model.Timeout = 30 * time.Second
	}

	if c.Model.MaxRetries < 0 {
		c.Model.MaxRetries = 2
	}

	if c.Model.RetryDelay <= 0 {
		c.Model.RetryDelay = 500 * time.Millisecond
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}

	return nil
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:       "info",
		MaxRows:        500000,
		IdleWindow:     30 * time.Minute,
		AskTimeout:     2 * time.Minute,
		MaxDisplayRows: 200,
		Workers:        4,
		Model: ModelConfig{
			BaseURL:    "https://api.openai.com/v1",
			Name:       "gpt-4o-mini",
			Timeout:    30 * time.Second,
			MaxRetries: 2,
			RetryDelay: 500 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
	}
}
