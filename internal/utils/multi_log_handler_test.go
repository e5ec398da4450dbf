package utils

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiLogHandler(t *testing.T) {
	var debug, info bytes.Buffer
	h := NewMultiLogHandler(
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)
	logger := slog.New(h).With("component", "metacache")

	logger.Debug("diff computed", "missing", 3)
	logger.Info("metadata file downloaded", "key", "abc")

	assert.Contains(t, debug.String(), "diff computed")
	assert.Contains(t, debug.String(), "metadata file downloaded")
	assert.NotContains(t, info.String(), "diff computed")
	assert.Contains(t, info.String(), "key=abc")
	assert.Contains(t, info.String(), "component=metacache")
}

func TestMultiLogHandler_Group(t *testing.T) {
	var buf bytes.Buffer
	h := NewMultiLogHandler(slog.NewTextHandler(&buf, nil))
	slog.New(h).WithGroup("sync").Info("done", "files", 2)

	assert.Contains(t, buf.String(), "sync.files=2")
	assert.False(t, NewMultiLogHandler().Enabled(context.Background(), slog.LevelError))
}
