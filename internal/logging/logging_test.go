package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_JSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("tool call", zap.String("tool", "get_pet"))
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "tool call", entry["msg"])
	assert.Equal(t, "get_pet", entry["tool"])
	assert.Contains(t, entry, "timestamp")
}

func TestNew_ConsoleDebug(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger, err := New(Config{Level: "DEBUG", Format: "console", Output: &buf})
	require.NoError(t, err)
	logger.Debug("refresh")
	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "refresh")
}

func TestNew_RejectsUnknownValues(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Level: "loud"})
	assert.ErrorContains(t, err, `unknown log level "loud"`)
	_, err = New(Config{Format: "xml"})
	assert.ErrorContains(t, err, `unknown log format "xml"`)
}
