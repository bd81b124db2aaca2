// Package logger builds the zerolog logger handed to every component.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Logger owns the sinks behind a zerolog.Logger.
type Logger struct {
	logger  zerolog.Logger
	closers []io.Closer
}

// Config holds logger configuration
type Config struct {
	Level     string `mapstructure:"level"`     // debug, info, warn, error
	File      string `mapstructure:"file"`      // log file path
	Console   bool   `mapstructure:"console"`   // log to stderr
	Pretty    bool   `mapstructure:"pretty"`    // human-readable console output
	Redaction bool   `mapstructure:"redaction"` // scrub secrets before writing
	MaxSize   int    `mapstructure:"max_size"`  // MB before rotation; 0 disables rotation
	MaxAge    int    `mapstructure:"max_age"`   // days to keep rotated files
	Compress  bool   `mapstructure:"compress"`  // gzip rotated files

	// Output replaces stderr as the console sink.
	Output io.Writer `mapstructure:"-"`
}

// New creates a logger. It does not touch the zerolog global logger.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var (
		writers []io.Writer
		closers []io.Closer
	)

	if cfg.Console {
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		if cfg.Pretty {
			out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		}
		writers = append(writers, out)
	}

	if cfg.File != "" {
		fileWriter, closer, err := openFile(cfg)
		if err != nil {
			return nil, err
		}
		writers = append(writers, fileWriter)
		closers = append(closers, closer)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	if cfg.Redaction {
		writer = NewRedactor().Wrap(writer)
	}

	return &Logger{
		logger:  zerolog.New(writer).Level(level).With().Timestamp().Logger(),
		closers: closers,
	}, nil
}

func openFile(cfg Config) (io.Writer, io.Closer, error) {
	if cfg.MaxSize > 0 {
		rw, err := NewRotatingWriter(cfg.File, cfg.MaxSize, cfg.MaxAge, cfg.Compress)
		if err != nil {
			return nil, nil, err
		}
		return rw, rw, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, file, nil
}

// Close closes any open files
func (l *Logger) Close() error {
	var first error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Zerolog returns the underlying zerolog.Logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    true,
		Redaction: true,
		MaxSize:   100,
		MaxAge:    7,
		Compress:  true,
	}
}
