package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windows-mcp-server/internal/config"
)

func TestSetupLevels(t *testing.T) {
	logger := Setup(config.LoggingConfig{Level: "warn", Format: "console"})
	require.NotNil(t, logger)

	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}

func TestSetupDefaultsToInfo(t *testing.T) {
	logger := Setup(config.LoggingConfig{Level: "bogus", Format: "json"})
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestSetupFileSink(t *testing.T) {
	path := t.TempDir() + "/server.log"
	logger := Setup(config.LoggingConfig{Level: "info", Format: "json", File: path})
	logger.Info("hello")

	assert.FileExists(t, path)
}
