package utils

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerPrefixAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, slog.LevelInfo, "rtcdoc")
	log.Debug("hidden")
	log.Info("shown", "k", 1)
	log.Named("rooms").Warn("sub")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `msg="[rtcdoc] shown" k=1`)
	assert.Contains(t, out, `msg="[rtcdoc/rooms] sub"`)
}

func TestLoggerContextArgs(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, slog.LevelDebug, "rtcdoc")
	ctx := WithDefaultArgs(context.Background(), "room", "notes")
	ctx = WithDefaultArgs(ctx, "src", 7)
	log.InfoCtx(ctx, "merged", "changes", 2)
	assert.Contains(t, buf.String(), "changes=2 room=notes src=7")
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
	level, err = ParseLevel(" warn ")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
