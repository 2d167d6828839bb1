// Package logging is orca's structured log sink: a log/slog wrapper with
// lumberjack file rotation. The TUI owns the terminal, so logs never go to
// stdout; everything lands in the rotated file at the level selected by
// --log-filter.
package logging

import (
	"io"
	"log/slog"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps slog.Logger with orca's convenience methods.
type Logger struct {
	logger *slog.Logger
}

// Config holds logger initialization settings.
type Config struct {
	// FilePath is the log file; empty disables logging entirely.
	FilePath string
	// Level is the minimum level (set from --log-filter).
	Level slog.Level
	// MaxSizeMB triggers rotation.
	MaxSizeMB int
	// MaxBackups bounds rotated files kept on disk.
	MaxBackups int
}

var (
	globalLogger *Logger
	noopLogger   = &Logger{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
)

// Init installs the global logger. An empty FilePath installs a noop sink.
func Init(config Config) error {
	if config.FilePath == "" {
		globalLogger = noopLogger
		return nil
	}

	writer := &lumberjack.Logger{
		Filename:   config.FilePath,
		MaxSize:    config.MaxSizeMB,
		MaxBackups: config.MaxBackups,
		Compress:   true,
	}
	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: config.Level})
	globalLogger = &Logger{logger: slog.New(handler)}
	return nil
}

// Get returns the global logger, noop when Init was never called.
func Get() *Logger {
	if globalLogger == nil {
		return noopLogger
	}
	return globalLogger
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// With returns a child logger carrying extra key-value context, e.g. the
// originating command and target ref of an action.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// IsEnabled reports whether logging actually goes anywhere.
func (l *Logger) IsEnabled() bool { return l != noopLogger }

// Package-level convenience functions.

func Debug(msg string, args ...any) { Get().Debug(msg, args...) }
func Info(msg string, args ...any)  { Get().Info(msg, args...) }
func Warn(msg string, args ...any)  { Get().Warn(msg, args...) }
func Error(msg string, args ...any) { Get().Error(msg, args...) }

// IsEnabled reports whether the global sink is active.
func IsEnabled() bool { return Get().IsEnabled() }

// ParseLevel converts a --log-filter value to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Time runs fn and logs its wall time at debug level.
func (l *Logger) Time(name string, fn func()) {
	if !l.IsEnabled() {
		fn()
		return
	}
	start := time.Now()
	fn()
	l.Debug(name, "ms", time.Since(start).Milliseconds())
}
