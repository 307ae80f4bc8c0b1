package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvStateVar selects the environment; its value prefixes every other variable
const EnvStateVar = "ENV_STATE"

// legacyEnv lists the short variable names accepted alongside the nested ones
var legacyEnv = map[string]string{
	"server.host":          "HOST",
	"server.port":          "PORT",
	"whatsapp.words_limit": "WORDS_LIMIT",
}

// Loader handles configuration loading
type Loader struct {
	configPath string
	envFile    string
}

// NewLoader creates a new config loader. configPath may be empty; envFile
// defaults to ".env".
func NewLoader(configPath, envFile string) *Loader {
	if envFile == "" {
		envFile = ".env"
	}
	return &Loader{
		configPath: configPath,
		envFile:    envFile,
	}
}

// Load merges defaults, the optional config file and the environment.
// Variables already set in the process win over the .env file.
func (l *Loader) Load() (*Config, error) {
	if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", l.envFile, err)
	}

	envState := strings.ToLower(strings.TrimSpace(os.Getenv(EnvStateVar)))
	if envState == "" {
		envState = "dev"
	}
	prefix := strings.ToUpper(envState)

	v := viper.New()
	for key, value := range defaults(DefaultConfig()) {
		v.SetDefault(key, value)

		bind := []string{key, envName(prefix, key)}
		if alias, ok := legacyEnv[key]; ok {
			bind = append(bind, prefix+"_"+alias)
		}
		if err := v.BindEnv(bind...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		v.SetConfigFile(l.configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.EnvState = envState
	if cfg.Sentry.Environment == "" {
		cfg.Sentry.Environment = envState
	}

	return cfg, nil
}

// GetConfigPath returns the config file path, if any
func (l *Loader) GetConfigPath() string {
	return l.configPath
}

// envName maps a nested key to its variable, e.g. openai.api_key to
// DEV_OPENAI_API_KEY
func envName(prefix, key string) string {
	return prefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// defaults flattens cfg into viper keys
func defaults(cfg *Config) map[string]interface{} {
	return map[string]interface{}{
		"openai.api_key":  cfg.OpenAI.APIKey,
		"openai.model":    cfg.OpenAI.Model,
		"openai.base_url": cfg.OpenAI.BaseURL,

		"whatsapp.access_token":    cfg.WhatsApp.AccessToken,
		"whatsapp.phone_number_id": cfg.WhatsApp.PhoneNumberID,
		"whatsapp.verify_token":    cfg.WhatsApp.VerifyToken,
		"whatsapp.base_url":        cfg.WhatsApp.BaseURL,
		"whatsapp.api_version":     cfg.WhatsApp.APIVersion,
		"whatsapp.words_limit":     cfg.WhatsApp.WordsLimit,
		"whatsapp.timeout":         cfg.WhatsApp.Timeout,
		"whatsapp.max_retries":     cfg.WhatsApp.MaxRetries,

		"server.host":                  cfg.Server.Host,
		"server.port":                  cfg.Server.Port,
		"server.rate_limit_per_second": cfg.Server.RateLimitPerSecond,
		"server.rate_limit_burst":      cfg.Server.RateLimitBurst,
		"server.shutdown_timeout":      cfg.Server.ShutdownTimeout,

		"agent.max_rounds":           cfg.Agent.MaxRounds,
		"agent.completion_timeout":   cfg.Agent.CompletionTimeout,
		"agent.tool_timeout":         cfg.Agent.ToolTimeout,
		"agent.max_tool_concurrency": cfg.Agent.MaxToolConcurrency,
		"agent.slow_run_threshold":   cfg.Agent.SlowRunThreshold,

		"session.ttl":            cfg.Session.TTL,
		"session.sweep_interval": cfg.Session.SweepInterval,

		"users.file":  cfg.Users.File,
		"users.watch": cfg.Users.Watch,

		"sentry.dsn":                cfg.Sentry.DSN,
		"sentry.environment":        cfg.Sentry.Environment,
		"sentry.traces_sample_rate": cfg.Sentry.TracesSampleRate,

		"logging.level":        cfg.Logging.Level,
		"logging.format":       cfg.Logging.Format,
		"logging.file":         cfg.Logging.File,
		"logging.max_size_mb":  cfg.Logging.MaxSizeMB,
		"logging.max_age_days": cfg.Logging.MaxAgeDays,
		"logging.compress":     cfg.Logging.Compress,
		"logging.redaction":    cfg.Logging.Redaction,
	}
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath, envFile string) (*Config, error) {
	return NewLoader(configPath, envFile).Load()
}
