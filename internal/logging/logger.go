// Package logging provides the structured logger used throughout the
// worker runtime. It dispatches to one or more pluggable strategies
// (zap, console, nop) the way the teacher's logger package does, scoped
// down to what the worker runtime actually needs.
package logging

import (
	"time"

	"github.com/sxb1010/eventq/internal/logging/level"
	"github.com/sxb1010/eventq/internal/logging/strategies"
)

// Field is a key/value pair attached to a log entry.
type Field = strategies.Field

// Logger dispatches log entries to every configured strategy.
type Logger struct {
	strategies []strategies.Strategy
	worker     string
	baseFields []strategies.Field
}

// New creates a new Logger with the given strategies. Defaults to a
// Console strategy when none are provided.
func New(worker string, strats ...strategies.Strategy) *Logger {
	if len(strats) == 0 {
		strats = []strategies.Strategy{strategies.NewConsole()}
	}
	return &Logger{strategies: strats, worker: worker}
}

// Nop returns a Logger that discards everything, useful as a zero-value
// substitute when a caller doesn't configure one.
func Nop() *Logger {
	return &Logger{strategies: []strategies.Strategy{strategies.NewNop()}, worker: "nop"}
}

func (l *Logger) log(lvl level.Level, msg string, fields []strategies.Field) {
	all := make([]strategies.Field, 0, len(l.baseFields)+len(fields))
	all = append(all, l.baseFields...)
	all = append(all, fields...)

	entry := strategies.Entry{
		Level:   lvl,
		Message: msg,
		Fields:  all,
		Time:    time.Now(),
		Worker:  l.worker,
	}
	for _, s := range l.strategies {
		// Callback/strategy failures are logged nowhere further up; a
		// broken sink must never take the worker down with it.
		_ = s.Log(entry)
	}
}

// F builds a Field; a tiny helper to keep call sites readable.
func F(key string, value any) strategies.Field {
	return strategies.Field{Key: key, Value: value}
}

func (l *Logger) Debug(msg string, fields ...strategies.Field) { l.log(level.Debug, msg, fields) }
func (l *Logger) Info(msg string, fields ...strategies.Field)  { l.log(level.Info, msg, fields) }
func (l *Logger) Warn(msg string, fields ...strategies.Field)  { l.log(level.Warn, msg, fields) }

func (l *Logger) Error(msg string, err error, fields ...strategies.Field) {
	all := make([]strategies.Field, 0, len(fields)+1)
	if err != nil {
		all = append(all, F("error", err.Error()))
	}
	all = append(all, fields...)
	l.log(level.Error, msg, all)
}

// With returns a child logger carrying additional permanent fields.
func (l *Logger) With(fields ...strategies.Field) *Logger {
	merged := make([]strategies.Field, len(l.baseFields)+len(fields))
	copy(merged, l.baseFields)
	copy(merged[len(l.baseFields):], fields)
	return &Logger{strategies: l.strategies, worker: l.worker, baseFields: merged}
}

// Sync flushes every strategy. Should be called before process exit.
func (l *Logger) Sync() error {
	var lastErr error
	for _, s := range l.strategies {
		if err := s.Sync(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
