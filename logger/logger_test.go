package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitLogger_WritesJSONToFile(t *testing.T) {
	saved := Logger
	defer func() { Logger = saved }()

	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, InitLogger(path, "info"))

	Logger.Debug("dropped")
	Logger.Info("kept", zap.Int("miner", 3))
	require.NoError(t, Logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"kept"`)
	assert.Contains(t, string(data), `"miner":3`)
	assert.NotContains(t, string(data), "dropped")
}

func TestInitLogger_RejectsUnknownLevel(t *testing.T) {
	saved := Logger
	defer func() { Logger = saved }()

	assert.Error(t, InitLogger("", "chatty"))
}
