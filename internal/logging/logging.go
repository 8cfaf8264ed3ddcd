// Package logging wires log/slog to a JSON handler that writes to a
// rotating log file, to stderr, or to both.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the rotating log file and verbosity.
type Options struct {
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Debug      bool
	Console    bool
}

// Init builds the process-wide slog.Logger and sets it as the default,
// returning it for callers that want to hold their own reference (e.g.
// to derive a child logger with slog.With).
func Init(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var writers []io.Writer
	if opts.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    firstNonZero(opts.MaxSizeMB, 50),
			MaxBackups: firstNonZero(opts.MaxBackups, 5),
			MaxAge:     firstNonZero(opts.MaxAgeDays, 28),
			Compress:   true,
		})
	}
	if opts.Console || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	handler := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func firstNonZero(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// WithOperation returns a logger scoped to one named engine operation
// (e.g. backup, compact, recreate) by an "op" attribute.
func WithOperation(logger *slog.Logger, op string) *slog.Logger {
	return logger.With(slog.String("op", op))
}
