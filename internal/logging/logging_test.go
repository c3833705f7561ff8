package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{0, zapcore.ErrorLevel},
		{1, zapcore.WarnLevel},
		{2, zapcore.InfoLevel},
		{3, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Level(tt.verbosity))
	}
}

func TestValidateVerbosity(t *testing.T) {
	assert.NoError(t, ValidateVerbosity(0))
	assert.NoError(t, ValidateVerbosity(3))
	assert.Error(t, ValidateVerbosity(-1))
	assert.Error(t, ValidateVerbosity(4))
}

func TestSetDefaultVerbosity(t *testing.T) {
	prev := DefaultVerbosity()
	t.Cleanup(func() { _ = SetDefaultVerbosity(prev) })

	require.NoError(t, SetDefaultVerbosity(3))
	assert.Equal(t, 3, DefaultVerbosity())

	assert.Error(t, SetDefaultVerbosity(9))
	assert.Equal(t, 3, DefaultVerbosity())
}

func TestNewWithCore_FiltersByVerbosity(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewWithCore(core, VerbosityWarn)

	logger.Debug("detail")
	logger.Info("summary")
	logger.Warn("warning")
	logger.Error("failure")

	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, "warning", logs.All()[0].Message)
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	l := zap.NewExample()
	ctx := WithLogger(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}
