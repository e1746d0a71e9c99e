// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// Config controls logger construction.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Output io.Writer
}

// DefaultConfig returns the standard agent logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Output: os.Stderr,
	}
}

// Logger is the structured logger used throughout hearth.
// Calls take a message followed by alternating key/value pairs.
type Logger struct {
	l *charmlog.Logger
}

// New creates a logger from the given configuration.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := charmlog.Options{
		ReportTimestamp: true,
		Level:           parseLevel(cfg.Level),
	}
	if strings.EqualFold(cfg.Format, "json") {
		opts.Formatter = charmlog.JSONFormatter
	}

	return &Logger{l: charmlog.NewWithOptions(out, opts)}
}

func parseLevel(s string) charmlog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return charmlog.DebugLevel
	case "warn", "warning":
		return charmlog.WarnLevel
	case "error":
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

func (l *Logger) Debug(msg string, kv ...any) { l.l.Debug(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.l.Info(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.l.Warn(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.l.Error(msg, kv...) }

// WithComponent returns a logger with a component attribute attached.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{l: l.l.With("component", name)}
}

// WithError returns a logger with the error attached.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{l: l.l.With("error", err)}
}

var defaultLogger = New(DefaultConfig())

// WithComponent returns a child of the process-wide default logger.
func WithComponent(name string) *Logger {
	return defaultLogger.WithComponent(name)
}

// Package-level printf helpers log through the default logger.

func Debug(format string, args ...any) { defaultLogger.l.Debug(fmt.Sprintf(format, args...)) }
func Info(format string, args ...any)  { defaultLogger.l.Info(fmt.Sprintf(format, args...)) }
func Warn(format string, args ...any)  { defaultLogger.l.Warn(fmt.Sprintf(format, args...)) }
func Error(format string, args ...any) { defaultLogger.l.Error(fmt.Sprintf(format, args...)) }
