package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/BaSui01/nodegraph/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"verbose": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_JSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodegraph.log")
	cfg := config.DefaultLogConfig()
	cfg.Level = "warn"
	cfg.OutputPaths = []string{path}

	logger, err := New(cfg)
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept", zap.String("workflow", "demo"))
	require.NoError(t, logger.Sync())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["msg"])
	assert.Equal(t, "demo", lines[0]["workflow"])
	assert.Contains(t, lines[0], "timestamp")
	assert.Contains(t, lines[0], "caller")
}

func TestNew_Console(t *testing.T) {
	cfg := config.DefaultLogConfig()
	cfg.Format = "console"
	cfg.OutputPaths = nil

	logger, err := New(cfg)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestMustNew_FallsBack(t *testing.T) {
	cfg := config.DefaultLogConfig()
	cfg.OutputPaths = []string{"/nonexistent-dir/sub/nodegraph.log"}

	_, err := New(cfg)
	assert.Error(t, err)
	assert.NotNil(t, MustNew(cfg))
}
