package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the bridge configuration
type Config struct {
	// EnvState selects the environment prefix (dev or prod)
	EnvState string `json:"env_state" mapstructure:"env_state"`

	OpenAI   OpenAIConfig   `json:"openai" mapstructure:"openai"`
	WhatsApp WhatsAppConfig `json:"whatsapp" mapstructure:"whatsapp"`
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Agent    AgentConfig    `json:"agent" mapstructure:"agent"`
	Session  SessionConfig  `json:"session" mapstructure:"session"`
	Users    UsersConfig    `json:"users" mapstructure:"users"`
	Sentry   SentryConfig   `json:"sentry" mapstructure:"sentry"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// OpenAIConfig holds completion endpoint settings
type OpenAIConfig struct {
	APIKey  string `json:"api_key" mapstructure:"api_key"`
	Model   string `json:"model" mapstructure:"model"`
	BaseURL string `json:"base_url" mapstructure:"base_url"`
}

// WhatsAppConfig holds Cloud API settings
type WhatsAppConfig struct {
	AccessToken   string        `json:"access_token" mapstructure:"access_token"`
	PhoneNumberID string        `json:"phone_number_id" mapstructure:"phone_number_id"`
	VerifyToken   string        `json:"verify_token" mapstructure:"verify_token"`
	BaseURL       string        `json:"base_url" mapstructure:"base_url"`
	APIVersion    string        `json:"api_version" mapstructure:"api_version"`
	WordsLimit    int           `json:"words_limit" mapstructure:"words_limit"`
	Timeout       time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries    int           `json:"max_retries" mapstructure:"max_retries"`
}

// ServerConfig holds webhook server settings
type ServerConfig struct {
	Host               string        `json:"host" mapstructure:"host"`
	Port               int           `json:"port" mapstructure:"port"`
	RateLimitPerSecond float64       `json:"rate_limit_per_second" mapstructure:"rate_limit_per_second"`
	RateLimitBurst     int           `json:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	ShutdownTimeout    time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// AgentConfig holds orchestration limits
type AgentConfig struct {
	MaxRounds          int           `json:"max_rounds" mapstructure:"max_rounds"`
	CompletionTimeout  time.Duration `json:"completion_timeout" mapstructure:"completion_timeout"`
	ToolTimeout        time.Duration `json:"tool_timeout" mapstructure:"tool_timeout"`
	MaxToolConcurrency int           `json:"max_tool_concurrency" mapstructure:"max_tool_concurrency"`
	SlowRunThreshold   time.Duration `json:"slow_run_threshold" mapstructure:"slow_run_threshold"`
}

// SessionConfig holds the inactivity sweep settings
type SessionConfig struct {
	TTL           time.Duration `json:"ttl" mapstructure:"ttl"`
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval"`
}

// UsersConfig locates the user registry
type UsersConfig struct {
	File  string `json:"file" mapstructure:"file"`
	Watch bool   `json:"watch" mapstructure:"watch"`
}

// SentryConfig holds error tracking settings. An empty DSN disables it.
type SentryConfig struct {
	DSN              string  `json:"dsn" mapstructure:"dsn"`
	Environment      string  `json:"environment" mapstructure:"environment"`
	TracesSampleRate float64 `json:"traces_sample_rate" mapstructure:"traces_sample_rate"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	Format     string `json:"format" mapstructure:"format"`
	File       string `json:"file" mapstructure:"file"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
	Redaction  bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		EnvState: "dev",
		OpenAI: OpenAIConfig{
			Model: "gpt-5-mini",
		},
		WhatsApp: WhatsAppConfig{
			BaseURL:    "https://graph.facebook.com",
			APIVersion: "v22.0",
			WordsLimit: 1500,
			Timeout:    15 * time.Second,
			MaxRetries: 3,
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8000,
			RateLimitPerSecond: 5,
			RateLimitBurst:     10,
			ShutdownTimeout:    30 * time.Second,
		},
		Agent: AgentConfig{
			MaxRounds:        25,
			ToolTimeout:      30 * time.Second,
			SlowRunThreshold: 25 * time.Second,
		},
		Session: SessionConfig{
			TTL:           24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Users: UsersConfig{
			File:  "users.json",
			Watch: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "pretty",
			MaxSizeMB:  100,
			MaxAgeDays: 7,
			Compress:   true,
			Redaction:  true,
		},
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "[REDACTED]"
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	redacted := *c
	redacted.OpenAI.APIKey = mask(c.OpenAI.APIKey)
	redacted.WhatsApp.AccessToken = mask(c.WhatsApp.AccessToken)
	redacted.WhatsApp.VerifyToken = mask(c.WhatsApp.VerifyToken)
	redacted.Sentry.DSN = mask(c.Sentry.DSN)

	data, _ := json.MarshalIndent(redacted, "", "  ")
	return string(data)
}

// Validate checks the settings every command needs
func (c *Config) Validate() error {
	if c.EnvState != "dev" && c.EnvState != "prod" {
		return fmt.Errorf("invalid env_state %q (must be dev or prod)", c.EnvState)
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	if c.OpenAI.Model == "" {
		return fmt.Errorf("openai.model is required")
	}
	if c.Agent.MaxRounds < 0 {
		return fmt.Errorf("agent.max_rounds must be >= 0")
	}
	if c.Agent.CompletionTimeout < 0 || c.Agent.ToolTimeout < 0 {
		return fmt.Errorf("agent timeouts must be >= 0")
	}
	if c.Session.TTL <= 0 || c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session ttl and sweep_interval must be positive")
	}
	return nil
}

// ValidateServe checks the settings the webhook server needs on top of Validate
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.WhatsApp.AccessToken == "" {
		return fmt.Errorf("whatsapp.access_token is required")
	}
	if c.WhatsApp.PhoneNumberID == "" {
		return fmt.Errorf("whatsapp.phone_number_id is required")
	}
	if c.WhatsApp.VerifyToken == "" {
		return fmt.Errorf("whatsapp.verify_token is required")
	}
	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return errs[0]
	}
	return nil
}
