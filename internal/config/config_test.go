package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	base := t.TempDir()
	t.Setenv("BASE_DIR", base)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, base, cfg.Paths.BaseDir)
	assert.Equal(t, filepath.Join(base, "data"), cfg.Paths.DataDir)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Retry.Delay())
	assert.Equal(t, BackendFile, cfg.Flags.Backend)
	assert.Equal(t, filepath.Join(base, "etf_strategy.log"), cfg.Logging.File)
	assert.Equal(t, cfg.ErrorLogDir(), cfg.Logging.ErrorDir)
	assert.True(t, cfg.Notify.Enabled)
	assert.NotEmpty(t, cfg.Notify.Footer)
	assert.Empty(t, cfg.Server.CronSecret, "no placeholder secret may be defaulted")
	assert.Equal(t, []string{"510300.SH", "510500.SH", "159915.SZ"}, cfg.Arbitrage.Watchlist)
	// New-share pushes repeat through the morning so a failed push is retried
	// the same day.
	assert.Equal(t, "*/30 9-11 * * 1-5", cfg.Scheduler.NewStock)
	assert.Equal(t, "5,35 9-11 * * 1-5", cfg.Scheduler.Listings)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	base := t.TempDir()
	data := filepath.Join(base, "elsewhere")
	t.Setenv("BASE_DIR", base)
	t.Setenv("DATA_DIR", data)
	t.Setenv("MAX_RETRIES", "0")
	t.Setenv("RETRY_DELAY", "0.5")
	t.Setenv("WECOM_WEBHOOK", "https://qyapi.weixin.qq.com/cgi-bin/webhook/send?key=abc")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("ARBITRAGE_WATCHLIST", "510050.SH, 159919.SZ")
	t.Setenv("NOTIFICATIONS_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, data, cfg.Paths.DataDir)
	assert.Equal(t, 0, cfg.Retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.Delay())
	assert.Equal(t, []string{"510050.SH", "159919.SZ"}, cfg.Arbitrage.Watchlist)

	url, err := cfg.RequireWebhook()
	require.NoError(t, err)
	assert.Contains(t, url, "qyapi.weixin.qq.com")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"negative retries": {"MAX_RETRIES", "-1"},
		"negative delay":   {"RETRY_DELAY", "-2"},
		"unknown backend":  {"FLAG_BACKEND", "redis"},
		"unknown level":    {"LOG_LEVEL", "loud"},
		"bad timezone":     {"TIMEZONE", "Mars/Olympus"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("BASE_DIR", t.TempDir())
			t.Setenv(kv[0], kv[1])

			_, err := Load("")
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "want ConfigurationError, got %v", err)
			assert.Equal(t, kv[0], cfgErr.Key)
		})
	}
}

func TestLoadRequiresBackendSettings(t *testing.T) {
	cases := map[string][2]string{
		"postgres": {"DATABASE_DSN", "postgres"},
		"dynamodb": {"FLAG_DYNAMODB_TABLE", "dynamodb"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("BASE_DIR", t.TempDir())
			t.Setenv("FLAG_BACKEND", kv[1])

			_, err := Load("")
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "want ConfigurationError, got %v", err)
			assert.Equal(t, kv[0], cfgErr.Key)
		})
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	base := t.TempDir()
	t.Setenv("BASE_DIR", base)
	path := filepath.Join(base, "etfwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  max_retries: 7\nnotify:\n  footer: custom footer\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, "custom footer", cfg.Notify.Footer)
}

func TestRequireWebhookFailsClosed(t *testing.T) {
	cfg := &Config{Notify: NotifyConfig{Enabled: true}}
	_, err := cfg.RequireWebhook()
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "WECOM_WEBHOOK", cfgErr.Key)

	cfg = &Config{Notify: NotifyConfig{Enabled: false, Webhook: "https://example.invalid"}}
	_, err = cfg.RequireWebhook()
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "NOTIFICATIONS_ENABLED", cfgErr.Key)
}

func TestRequireTushareToken(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.RequireTushareToken()
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	cfg.Sources.TushareToken = " tok "
	token, err := cfg.RequireTushareToken()
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}

func TestDirectoriesAreOrderedUniqueAndUnderDataDir(t *testing.T) {
	cfg := &Config{Paths: PathsConfig{DataDir: filepath.Join("srv", "data")}}

	dirs := cfg.Directories()
	require.Len(t, dirs, 7)
	assert.Equal(t, cfg.Paths.DataDir, dirs[0])

	seen := make(map[string]bool)
	for _, d := range dirs {
		assert.False(t, seen[d], "duplicate directory %s", d)
		seen[d] = true
		rel, err := filepath.Rel(cfg.Paths.DataDir, d)
		require.NoError(t, err)
		assert.NotContains(t, rel, "..")
	}
}

func TestFlagPathsNestedAndDistinct(t *testing.T) {
	cfg := &Config{Paths: PathsConfig{DataDir: "data"}}

	assert.Equal(t, cfg.NewStockDir(), filepath.Dir(cfg.NewStockPushedFlag()))
	assert.Equal(t, cfg.NewStockDir(), filepath.Dir(cfg.ListingPushedFlag()))
	assert.Equal(t, cfg.ArbitrageDir(), filepath.Dir(cfg.ArbitrageStatusFile()))
	assert.NotEqual(t, cfg.NewStockPushedFlag(), cfg.ListingPushedFlag())
}
