// Package logger provides the logging interface used throughout buildtriage
// and its log/slog backed implementations.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger defines the interface for logging throughout the application.
// Different implementations can be used for different contexts (console, silent, ...).
type Logger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// Init configures the process-wide slog default. level is one of debug,
// info, warn, error; format is "text" or "json". A nil writer means stderr.
func Init(level, format string, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ConsoleLogger writes printf-style messages through slog.
// Used for normal operation and debugging.
type ConsoleLogger struct {
	log *slog.Logger
}

// NewConsoleLogger returns a logger on the slog default.
func NewConsoleLogger() *ConsoleLogger {
	return &ConsoleLogger{log: slog.Default()}
}

// New returns a console logger tagged with a component attribute.
func New(component string) *ConsoleLogger {
	return &ConsoleLogger{log: slog.Default().With(slog.String("component", component))}
}

// NewWithHandler wraps an explicit slog handler.
func NewWithHandler(h slog.Handler) *ConsoleLogger {
	return &ConsoleLogger{log: slog.New(h)}
}

func (c *ConsoleLogger) Info(msg string, args ...interface{}) {
	c.log.Info(fmt.Sprintf(msg, args...))
}

func (c *ConsoleLogger) Warn(msg string, args ...interface{}) {
	c.log.Warn(fmt.Sprintf(msg, args...))
}

func (c *ConsoleLogger) Error(msg string, args ...interface{}) {
	c.log.Error(fmt.Sprintf(msg, args...))
}

func (c *ConsoleLogger) Debug(msg string, args ...interface{}) {
	c.log.Debug(fmt.Sprintf(msg, args...))
}

// SilentLogger discards all log messages.
// Used in MCP stdio mode, where stdout carries the protocol.
type SilentLogger struct{}

func NewSilentLogger() *SilentLogger {
	return &SilentLogger{}
}

func (s *SilentLogger) Info(msg string, args ...interface{})  {}
func (s *SilentLogger) Warn(msg string, args ...interface{})  {}
func (s *SilentLogger) Error(msg string, args ...interface{}) {}
func (s *SilentLogger) Debug(msg string, args ...interface{}) {}
