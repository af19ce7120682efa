// Package level defines the severity levels used by the logging strategies.
package level

import "go.uber.org/zap/zapcore"

// Level represents the severity level of a log entry.
type Level int8

const (
	// Debug logs are typically voluminous, and are usually disabled in production.
	Debug Level = iota - 1
	// Info is the default logging priority.
	Info
	// Warn logs are more important than Info, but don't need individual human review.
	Warn
	// Error logs are high-priority.
	Error
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// ToZapLevel converts a Level to zapcore.Level.
func (l Level) ToZapLevel() zapcore.Level {
	switch l {
	case Debug:
		return zapcore.DebugLevel
	case Info:
		return zapcore.InfoLevel
	case Warn:
		return zapcore.WarnLevel
	case Error:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
