package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "Console output mode", jsonOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BLOGPULSE_ENV", "")
			t.Setenv("ENVIRONMENT", "")
			defer func() { Logger = zap.NewNop().Sugar() }()

			require.NoError(t, Initialize(tt.jsonOutput, VerbosityInfo))
			assert.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)
		})
	}
}

func TestInitializeProductionForcesJSON(t *testing.T) {
	t.Setenv("BLOGPULSE_ENV", "production")
	defer func() { Logger = zap.NewNop().Sugar() }()

	require.NoError(t, Initialize(false, VerbosityUser))
	assert.True(t, JSONOutput)
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(0))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(1))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(2))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(5))
	assert.Equal(t, "Info (-v)", LevelName(1))
}

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	prev := Logger
	Logger = zap.New(core).Sugar()
	t.Cleanup(func() { Logger = prev })
	return logs
}

func TestPulseHelpersAttachSymbol(t *testing.T) {
	logs := observe(t)

	PulseInfow("Job dispatched", FieldJobID, "job-1")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Job dispatched", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "꩜", fields[FieldSymbol])
	assert.Equal(t, "job-1", fields[FieldJobID])
}

func TestLoggerFromContext(t *testing.T) {
	logs := observe(t)

	ctx := WithSeriesID(context.Background(), "series-1")
	ctx = WithJobID(ctx, "job-1")
	LoggerFromContext(ctx).Infow("attempt failed")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "series-1", fields[FieldSeriesID])
	assert.Equal(t, "job-1", fields[FieldJobID])
	assert.Empty(t, FieldsFromContext(context.Background()))
}
