package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validator validates individual configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an OpenAI API key format
func (v *Validator) ValidateAPIKey(key string) error {
	if key == "" {
		return fmt.Errorf("OpenAI API key cannot be empty")
	}
	if !strings.HasPrefix(key, "sk-") {
		return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
	}
	return nil
}

// ValidatePhoneNumberID validates a WhatsApp phone number ID, which is numeric
func (v *Validator) ValidatePhoneNumberID(id string) error {
	if id == "" {
		return fmt.Errorf("phone number ID cannot be empty")
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return fmt.Errorf("invalid phone number ID %q (must be numeric)", id)
		}
	}
	return nil
}

// ValidateBaseURL validates an absolute http(s) URL
func (v *Validator) ValidateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base URL %q (must be http or https)", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid base URL %q (missing host)", raw)
	}
	return nil
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateLogFormat validates log format
func (v *Validator) ValidateLogFormat(format string) error {
	if format == "pretty" || format == "json" {
		return nil
	}
	return fmt.Errorf("invalid log format: %s (must be one of: pretty, json)", format)
}

// ValidateConfig performs comprehensive validation and returns every problem found
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateAPIKey(cfg.OpenAI.APIKey); err != nil {
		errors = append(errors, err)
	}
	if cfg.OpenAI.BaseURL != "" {
		if err := v.ValidateBaseURL(cfg.OpenAI.BaseURL); err != nil {
			errors = append(errors, fmt.Errorf("openai: %w", err))
		}
	}

	if cfg.WhatsApp.PhoneNumberID != "" {
		if err := v.ValidatePhoneNumberID(cfg.WhatsApp.PhoneNumberID); err != nil {
			errors = append(errors, err)
		}
	}
	if err := v.ValidateBaseURL(cfg.WhatsApp.BaseURL); err != nil {
		errors = append(errors, fmt.Errorf("whatsapp: %w", err))
	}
	if cfg.WhatsApp.WordsLimit <= 0 {
		errors = append(errors, fmt.Errorf("whatsapp.words_limit must be positive"))
	}
	if cfg.WhatsApp.MaxRetries < 0 {
		errors = append(errors, fmt.Errorf("whatsapp.max_retries must be >= 0"))
	}

	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, err)
	}
	if cfg.Server.RateLimitPerSecond < 0 || cfg.Server.RateLimitBurst < 0 {
		errors = append(errors, fmt.Errorf("server rate limits must be >= 0"))
	}

	if cfg.Agent.MaxToolConcurrency < 0 {
		errors = append(errors, fmt.Errorf("agent.max_tool_concurrency must be >= 0"))
	}

	if cfg.Users.File == "" {
		errors = append(errors, fmt.Errorf("users.file is required"))
	}

	if cfg.Sentry.TracesSampleRate < 0 || cfg.Sentry.TracesSampleRate > 1 {
		errors = append(errors, fmt.Errorf("sentry.traces_sample_rate must be between 0 and 1"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateLogFormat(cfg.Logging.Format); err != nil {
		errors = append(errors, err)
	}

	return errors
}
