package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_DefaultsToStdoutJSON(t *testing.T) {
	logger, err := NewLogger("info", "json", "")
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Info("hello")
}

func TestNewLogger_WritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.log")

	logger, err := NewLogger("debug", "json", path)
	require.NoError(t, err)
	logger.Info("test message")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "test message")
}

func TestNewLogger_UnknownLevelDefaultsToInfo(t *testing.T) {
	logger, err := NewLogger("bogus", "json", "")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestNewComponentLogger_ReturnsLogger(t *testing.T) {
	logger, err := NewComponentLogger("info", "console", "", ComponentProxy)
	require.NoError(t, err)
	require.NotNil(t, logger)
}
