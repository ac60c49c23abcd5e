// Package log provides the structured logging interface used across skflow.
//
// The interface mirrors log/slog so that estimators, splitters and the
// workflow runner can log without caring which backend is installed. The
// default backend is zerolog (see SetupZerolog); the slog JSON backend from
// SetupLogger is kept for deployments that collect Cloud Logging style output.
//
// Example usage:
//
//	logger := log.GetLogger().With(
//	    log.ModelNameKey, "Regression",
//	    log.RunIDKey, report.ID,
//	)
//	logger.Info("fold scored",
//	    log.OperationKey, log.OperationScore,
//	    log.FoldKey, 2,
//	    log.ScoreKey, 0.81,
//	)
package log

import (
	"context"
	"sync"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are alternating key/value pairs. If the first field is an error it is
// logged under ErrAttrKey.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)

	// With returns a Logger that adds fields to every subsequent record.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at the given level.
	// Use it to skip expensive field construction.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger = NewNopLogger()
)

// GetLogger returns the process wide logger. Until SetLogger or SetupZerolog
// is called it discards everything.
func GetLogger() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetLogger replaces the process wide logger. A nil logger restores the no-op logger.
func SetLogger(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if l == nil {
		l = NewNopLogger()
	}
	defaultLogger = l
}

type nopLogger struct{}

// NewNopLogger returns a Logger that drops every record.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...any)                {}
func (nopLogger) Info(string, ...any)                 {}
func (nopLogger) Warn(string, ...any)                 {}
func (nopLogger) Error(string, ...any)                {}
func (n nopLogger) With(...any) Logger                { return n }
func (nopLogger) Enabled(context.Context, Level) bool { return false }
