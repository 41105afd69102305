package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	log.Info("reconciled", "id", "T1", "event", "INSERT")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "reconciled", entry["msg"])
	assert.Equal(t, "T1", entry["id"])
	assert.Equal(t, "INSERT", entry["event"])
}

func TestSlogHandlerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	log.Debug("quiet")
	log.Info("quiet")
	assert.Zero(t, buf.Len())

	log.Warn("loud")
	log.Error("loud")
	assert.NotZero(t, buf.Len())
}

func TestNop(t *testing.T) {
	// Must be safe with any argument shape.
	Nop.Debug("msg")
	Nop.Info("msg", "k", "v")
	Nop.Warn("msg", "dangling")
	Nop.Error("msg", 1, 2, 3)
}
