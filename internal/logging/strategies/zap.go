package strategies

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sxb1010/eventq/internal/logging/level"
)

// Zap implements Strategy using uber/zap, for production JSON logging.
type Zap struct {
	logger *zap.Logger
}

// ZapOptions configures the Zap strategy.
type ZapOptions struct {
	// IsPretty enables human-readable console output (for development).
	// If false, outputs JSON (for production).
	IsPretty bool
	Level    level.Level
}

// NewZap creates a new Zap strategy with the given options.
func NewZap(opts ZapOptions) (*Zap, error) {
	var zapLogger *zap.Logger
	var err error

	if opts.IsPretty {
		config := zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(opts.Level.ToZapLevel())
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zapLogger, err = config.Build(zap.AddCallerSkip(2))
	} else {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(opts.Level.ToZapLevel())
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zapLogger, err = config.Build(zap.AddCallerSkip(2))
	}
	if err != nil {
		return nil, err
	}
	return &Zap{logger: zapLogger}, nil
}

// NewZapMust creates a new Zap strategy and panics on error.
func NewZapMust(opts ZapOptions) *Zap {
	s, err := NewZap(opts)
	if err != nil {
		panic(err)
	}
	return s
}

// Log implements Strategy.
func (z *Zap) Log(entry Entry) error {
	fields := make([]zap.Field, 0, len(entry.Fields)+1)
	fields = append(fields, zap.String("worker", entry.Worker))
	for _, f := range entry.Fields {
		fields = append(fields, zap.Any(f.Key, f.Value))
	}

	switch entry.Level {
	case level.Debug:
		z.logger.Debug(entry.Message, fields...)
	case level.Info:
		z.logger.Info(entry.Message, fields...)
	case level.Warn:
		z.logger.Warn(entry.Message, fields...)
	case level.Error:
		z.logger.Error(entry.Message, fields...)
	default:
		z.logger.Info(entry.Message, fields...)
	}
	return nil
}

// Sync implements Strategy.
func (z *Zap) Sync() error {
	return z.logger.Sync()
}
