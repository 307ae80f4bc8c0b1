package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/oslianyabel/basic-wa-bot/internal/config"
	"github.com/oslianyabel/basic-wa-bot/internal/errtrack"
	"github.com/oslianyabel/basic-wa-bot/internal/logger"
)

// loadConfig loads the config and applies the flags the user set explicitly
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile, envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if flag := cmd.Flags().Lookup("log-level"); flag != nil && flag.Changed {
		cfg.Logging.Level = logLevel
	}

	return cfg, nil
}

// setupLogger builds the process logger from the logging section
func setupLogger(cfg config.LoggingConfig, out io.Writer) (*logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		File:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxAgeDays: cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		Redaction:  cfg.Redaction,
		Out:        out,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}

func setupErrorTracking(cfg config.SentryConfig) error {
	return errtrack.Init(errtrack.Options{
		DSN:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          "wabridge@" + version,
		TracesSampleRate: cfg.TracesSampleRate,
	})
}
