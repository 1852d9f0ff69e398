package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "warn", NoTimestamp: true})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("rebuild failed", "case_id", "c1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "rebuild failed")
	assert.Contains(t, out, "case_id=c1")
}

func TestNewRenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{NoTimestamp: true})
	require.NoError(t, err)

	logger.Warn("load failed", "error", errors.New("boom"))
	logger.With("error", "scoped").Info("second")

	out := buf.String()
	assert.Contains(t, out, "err=boom")
	assert.Contains(t, out, "err=scoped")
	assert.NotContains(t, out, "error=")
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{JSON: true, NoTimestamp: true})
	require.NoError(t, err)

	logger.Info("batch diffed", "cases", "3")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "batch diffed", line["msg"])
	assert.Equal(t, "3", line["cases"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	assert.False(t, logger.Enabled(t.Context(), slog.LevelError))
	logger.Error("dropped")
}
