package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesErrorsToDailyFile(t *testing.T) {
	dir := t.TempDir()
	errDir := filepath.Join(dir, "error_log")

	logger, closeLogs := NewLogger(Config{
		Level:    "debug",
		Format:   "json",
		File:     filepath.Join(dir, "app.log"),
		ErrorDir: errDir,
	})
	logger.Info().Msg("routine message")
	logger.Error().Str("event", "new_stock_pushed").Msg("push failed")
	closeLogs()

	appLog, err := os.ReadFile(filepath.Join(dir, "app.log"))
	require.NoError(t, err)
	assert.Contains(t, string(appLog), "routine message")
	assert.Contains(t, string(appLog), "push failed")

	errLog, err := os.ReadFile(ErrorLogPath(errDir, time.Now()))
	require.NoError(t, err)
	assert.Contains(t, string(errLog), "push failed")
	assert.Contains(t, string(errLog), "new_stock_pushed")
	assert.False(t, strings.Contains(string(errLog), "routine message"), "info lines must not reach the error log")
}

func TestValidLevel(t *testing.T) {
	for _, level := range []string{"", "debug", "INFO", "warning", "error"} {
		assert.True(t, ValidLevel(level), level)
	}
	assert.False(t, ValidLevel("loud"))
}

func TestErrorLogPath(t *testing.T) {
	day := time.Date(2025, 8, 15, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, filepath.Join("logs", "error_20250815.log"), ErrorLogPath("logs", day))
}

func TestDailyFileSwitchesOnDateChange(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 8, 15, 23, 59, 0, 0, time.UTC)
	daily := newDailyFile(dir, func() time.Time { return now })

	_, err := daily.Write([]byte("friday failure\n"))
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = daily.Write([]byte("saturday failure\n"))
	require.NoError(t, err)
	require.NoError(t, daily.Close())

	friday, err := os.ReadFile(ErrorLogPath(dir, time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	saturday, err := os.ReadFile(ErrorLogPath(dir, now))
	require.NoError(t, err)
	assert.Equal(t, "friday failure\n", string(friday))
	assert.Equal(t, "saturday failure\n", string(saturday))
}
