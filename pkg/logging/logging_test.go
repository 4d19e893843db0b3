package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func TestConsoleHandlerOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newConsoleHandler(&buf, slog.LevelInfo))

	logger.Info("upload successful", "file", "Example.jpg")
	logger.Debug("hidden at info level")

	out := buf.String()
	assert.Contains(t, out, "upload successful")
	assert.Contains(t, out, "file=Example.jpg")
	assert.NotContains(t, out, "hidden at info level")
}

func TestConsoleHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newConsoleHandler(&buf, slog.LevelInfo)).With("lang", "en")

	logger.Info("processing")
	assert.Contains(t, buf.String(), "lang=en")
}

func TestSetupWritesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")

	logger, err := Setup("info", path)
	require.NoError(t, err)
	logger.Info("file sink works")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file sink works")
}

func TestMultiHandlerLevels(t *testing.T) {
	var a, b bytes.Buffer
	m := multiHandler{
		newConsoleHandler(&a, slog.LevelError),
		newConsoleHandler(&b, slog.LevelDebug),
	}

	assert.True(t, m.Enabled(context.Background(), slog.LevelDebug))

	logger := slog.New(m)
	logger.Info("only the debug sink sees this")
	assert.Empty(t, a.String())
	assert.Contains(t, b.String(), "only the debug sink sees this")
}
