// Package logging builds zap loggers from readtext verbosity levels and
// carries them through a context.
//
// Verbosity levels:
//
//	0  errors only
//	1  errors and warnings
//	2  brief summary
//	3  per-file detail
package logging

import (
	"context"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/readtext/backend/internal/models"
)

const (
	VerbosityErrors  = 0
	VerbosityWarn    = 1
	VerbositySummary = 2
	VerbosityDetail  = 3
)

var defaultVerbosity atomic.Int32

func init() {
	defaultVerbosity.Store(VerbosityWarn)
}

// DefaultVerbosity returns the process-wide verbosity used when a call does
// not set its own.
func DefaultVerbosity() int {
	return int(defaultVerbosity.Load())
}

// SetDefaultVerbosity changes the process-wide verbosity.
func SetDefaultVerbosity(v int) error {
	if err := ValidateVerbosity(v); err != nil {
		return err
	}
	defaultVerbosity.Store(int32(v))
	return nil
}

// ValidateVerbosity rejects levels outside 0..3.
func ValidateVerbosity(v int) error {
	if v < VerbosityErrors || v > VerbosityDetail {
		return models.NewConfigError("verbosity", "must be between %d and %d, got %d", VerbosityErrors, VerbosityDetail, v)
	}
	return nil
}

// Level maps a verbosity to the lowest zap level that is emitted.
func Level(verbosity int) zapcore.Level {
	switch verbosity {
	case VerbosityErrors:
		return zapcore.ErrorLevel
	case VerbosityWarn:
		return zapcore.WarnLevel
	case VerbositySummary:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// New creates a console logger writing to stderr at the given verbosity.
func New(verbosity int) *zap.Logger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(os.Stderr),
		zap.NewAtomicLevelAt(Level(verbosity)),
	)
	return zap.New(core)
}

// NewWithCore creates a logger on an existing core, filtered to verbosity.
// Tests use it with zaptest/observer.
func NewWithCore(core zapcore.Core, verbosity int) *zap.Logger {
	filtered, err := zapcore.NewIncreaseLevelCore(core, Level(verbosity))
	if err != nil {
		// core is already stricter than the requested level
		return zap.New(core)
	}
	return zap.New(filtered)
}

type loggerKey struct{}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger carried by ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return zap.NewNop()
}
