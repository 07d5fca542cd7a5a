package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFieldsReachLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := L()
	SetLogger(zap.New(core))
	defer SetLogger(prev)

	Debug("hidden", nil)
	Info("batch_done", map[string]any{"users": 3})
	Error("batch_failed", map[string]any{"error": errors.New("boom"), "stage": "pad"})

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	require.Equal(t, "batch_done", entries[0].Message)
	require.EqualValues(t, 3, entries[0].ContextMap()["users"])
	require.Equal(t, "boom", entries[1].ContextMap()["error"])
	require.Equal(t, "pad", entries[1].ContextMap()["stage"])
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	require.Error(t, Init("loud", false))
}
