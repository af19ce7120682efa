// Package strategies holds the pluggable log sinks used by internal/logging.
package strategies

import (
	"time"

	"github.com/sxb1010/eventq/internal/logging/level"
)

// Entry represents a single log entry handed to a Strategy.
type Entry struct {
	Level   level.Level
	Message string
	Fields  []Field
	Time    time.Time
	Worker  string
}

// Field is a key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// Strategy defines the interface implemented by each log sink.
type Strategy interface {
	Log(entry Entry) error
	Sync() error
}
