package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestComponentFieldsAreAttached(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetOutput(zap.New(core))
	t.Cleanup(func() { _ = Init("development") })

	WarnCF("compression", "Profile compression failed", map[string]interface{}{"user_id": "u1"})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Profile compression failed", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "compression", ctx["component"])
	assert.Equal(t, "u1", ctx["user_id"])
}

func TestSetLevelRoundTrip(t *testing.T) {
	prev := GetLevel()
	t.Cleanup(func() { SetLevel(prev) })

	for _, l := range []LogLevel{DEBUG, INFO, WARN, ERROR} {
		SetLevel(l)
		assert.Equal(t, l, GetLevel())
	}
}
