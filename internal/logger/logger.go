package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Output formats
const (
	FormatPretty = "pretty"
	FormatJSON   = "json"
)

// Logger owns the process logger and its file, if any
type Logger struct {
	logger zerolog.Logger
	file   *RotatingWriter
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // pretty or json
	File       string // optional log file, written in JSON
	MaxSizeMB  int    // rotate the file past this size
	MaxAgeDays int    // delete rotated files older than this
	Compress   bool   // gzip rotated files
	Redaction  bool   // mask credentials before they are written
	// Out replaces stdout as the console destination
	Out io.Writer
}

// New creates a logger and installs it as the global zerolog logger
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	var console io.Writer = out
	switch cfg.Format {
	case FormatJSON:
	case FormatPretty, "":
		console = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	default:
		return nil, fmt.Errorf("unknown log format: %s", cfg.Format)
	}

	writer := console
	var file *RotatingWriter
	if cfg.File != "" {
		file, err = NewRotatingWriter(cfg.File, cfg.MaxSizeMB, cfg.MaxAgeDays, cfg.Compress)
		if err != nil {
			return nil, err
		}
		writer = zerolog.MultiLevelWriter(console, file)
	}

	if cfg.Redaction {
		writer = NewRedactor().Wrap(writer)
	}

	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	log.Logger = logger

	return &Logger{logger: logger, file: file}, nil
}

// Zerolog returns the underlying zerolog.Logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// Close flushes and closes the log file
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     FormatPretty,
		MaxSizeMB:  100,
		MaxAgeDays: 7,
		Compress:   true,
		Redaction:  true,
	}
}
