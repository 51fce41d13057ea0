package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"etfwatch/internal/logging"
)

const defaultFooter = "【鱼盆ETF投资量化系统】全自动决策 | 无需人工干预"

// Config materialises application configuration. It is loaded once per
// process and treated as read-only afterwards.
type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"`
	Logging   logging.Config  `mapstructure:"logging"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Flags     FlagsConfig     `mapstructure:"flags"`
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Arbitrage ArbitrageConfig `mapstructure:"arbitrage"`
	Retention RetentionConfig `mapstructure:"retention"`
}

// PathsConfig holds the base and data directories. Every other path is
// derived from DataDir.
type PathsConfig struct {
	BaseDir string `mapstructure:"base_dir"`
	DataDir string `mapstructure:"data_dir"`
}

// NotifyConfig covers outbound message delivery.
type NotifyConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Webhook  string         `mapstructure:"webhook"`
	Footer   string         `mapstructure:"footer"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述可选的 Telegram 镜像通道。
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// RetryConfig is the fixed-delay retry policy for external calls.
type RetryConfig struct {
	MaxRetries   int     `mapstructure:"max_retries"`
	DelaySeconds float64 `mapstructure:"delay_seconds"`
}

// Delay converts the configured seconds into a duration.
func (r RetryConfig) Delay() time.Duration {
	return time.Duration(r.DelaySeconds * float64(time.Second))
}

// SourcesConfig captures market-data credentials and endpoints.
type SourcesConfig struct {
	TushareToken   string        `mapstructure:"tushare_token"`
	TushareURL     string        `mapstructure:"tushare_url"`
	AkshareToken   string        `mapstructure:"akshare_token"`
	BaostockUser   string        `mapstructure:"baostock_user"`
	BaostockPwd    string        `mapstructure:"baostock_pwd"`
	SinaFinanceURL string        `mapstructure:"sina_finance_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// FlagsConfig selects the flag store backend.
type FlagsConfig struct {
	Backend       string `mapstructure:"backend"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	DatabaseDSN   string `mapstructure:"database_dsn"`
	DynamoDBTable string `mapstructure:"dynamodb_table"`
	AWSRegion     string `mapstructure:"aws_region"`
}

// ServerConfig governs the HTTP trigger surface.
type ServerConfig struct {
	Addr          string `mapstructure:"addr"`
	CronSecret    string `mapstructure:"cron_secret"`
	RatePerMinute int    `mapstructure:"rate_per_minute"`
}

// SchedulerConfig holds cron expressions for the in-process scheduler.
type SchedulerConfig struct {
	Timezone  string `mapstructure:"timezone"`
	NewStock  string `mapstructure:"new_stock"`
	Listings  string `mapstructure:"listings"`
	Arbitrage string `mapstructure:"arbitrage"`
	Cleanup   string `mapstructure:"cleanup"`
}

// ArbitrageConfig lists the ETFs watched for premium/discount.
type ArbitrageConfig struct {
	Watchlist    []string `mapstructure:"watchlist"`
	ThresholdPct float64  `mapstructure:"threshold_pct"`
}

// RetentionConfig controls the cleanup job.
type RetentionConfig struct {
	Days int `mapstructure:"days"`
}

// envBindings maps config keys to the environment variable that overrides
// them. Names follow the deployment environment, not viper's key layout.
var envBindings = map[string]string{
	"paths.base_dir":            "BASE_DIR",
	"paths.data_dir":            "DATA_DIR",
	"logging.level":             "LOG_LEVEL",
	"logging.format":            "LOG_FORMAT",
	"logging.file":              "LOG_FILE",
	"notify.enabled":            "NOTIFICATIONS_ENABLED",
	"notify.webhook":            "WECOM_WEBHOOK",
	"notify.footer":             "MESSAGE_FOOTER",
	"notify.timeout":            "NOTIFY_TIMEOUT",
	"notify.telegram.bot_token": "TELEGRAM_BOT_TOKEN",
	"notify.telegram.chat_id":   "TELEGRAM_CHAT_ID",
	"notify.telegram.api_base":  "TELEGRAM_API_BASE",
	"retry.max_retries":         "MAX_RETRIES",
	"retry.delay_seconds":       "RETRY_DELAY",
	"sources.tushare_token":     "TUSHARE_TOKEN",
	"sources.tushare_url":       "TUSHARE_API_URL",
	"sources.akshare_token":     "AKSHARE_TOKEN",
	"sources.baostock_user":     "BAOSTOCK_USER",
	"sources.baostock_pwd":      "BAOSTOCK_PWD",
	"sources.sina_finance_url":  "SINA_FINANCE_URL",
	"sources.request_timeout":   "SOURCE_TIMEOUT",
	"flags.backend":             "FLAG_BACKEND",
	"flags.sqlite_path":         "FLAG_SQLITE_PATH",
	"flags.database_dsn":        "DATABASE_DSN",
	"flags.dynamodb_table":      "FLAG_DYNAMODB_TABLE",
	"flags.aws_region":          "AWS_REGION",
	"server.addr":               "HTTP_ADDR",
	"server.cron_secret":        "CRON_SECRET",
	"server.rate_per_minute":    "HTTP_TRIGGER_RATE",
	"scheduler.timezone":        "TIMEZONE",
	"scheduler.new_stock":       "SCHEDULE_NEW_STOCK",
	"scheduler.listings":        "SCHEDULE_LISTINGS",
	"scheduler.arbitrage":       "SCHEDULE_ARBITRAGE",
	"scheduler.cleanup":         "SCHEDULE_CLEANUP",
	"arbitrage.watchlist":       "ARBITRAGE_WATCHLIST",
	"arbitrage.threshold_pct":   "ARBITRAGE_THRESHOLD_PCT",
	"retention.days":            "DATA_RETENTION_DAYS",
}

// Load builds configuration from an optional file, the environment, and
// defaults. Required secrets are not checked here; see RequireWebhook and
// RequireTushareToken.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.base_dir", "")
	v.SetDefault("paths.data_dir", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")

	v.SetDefault("notify.enabled", true)
	v.SetDefault("notify.webhook", "")
	v.SetDefault("notify.footer", defaultFooter)
	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.chat_id", "")
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.delay_seconds", 5)

	v.SetDefault("sources.tushare_token", "")
	v.SetDefault("sources.tushare_url", "http://api.tushare.pro")
	v.SetDefault("sources.akshare_token", "")
	v.SetDefault("sources.baostock_user", "")
	v.SetDefault("sources.baostock_pwd", "")
	v.SetDefault("sources.sina_finance_url", "http://vip.stock.finance.sina.com.cn/quotes_service/api/json_v2.php")
	v.SetDefault("sources.request_timeout", "15s")

	v.SetDefault("flags.backend", BackendFile)
	v.SetDefault("flags.sqlite_path", "")
	v.SetDefault("flags.database_dsn", "")
	v.SetDefault("flags.dynamodb_table", "")
	v.SetDefault("flags.aws_region", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cron_secret", "")
	v.SetDefault("server.rate_per_minute", 30)

	v.SetDefault("scheduler.timezone", "Asia/Shanghai")
	v.SetDefault("scheduler.new_stock", "*/30 9-11 * * 1-5")
	v.SetDefault("scheduler.listings", "5,35 9-11 * * 1-5")
	v.SetDefault("scheduler.arbitrage", "*/30 9-15 * * 1-5")
	v.SetDefault("scheduler.cleanup", "0 1 * * 0")

	v.SetDefault("arbitrage.watchlist", []string{"510300.SH", "510500.SH", "159915.SZ"})
	v.SetDefault("arbitrage.threshold_pct", 1.0)

	v.SetDefault("retention.days", 365)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

func (c *Config) resolvePaths() error {
	base := strings.TrimSpace(c.Paths.BaseDir)
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		base = wd
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return fmt.Errorf("resolve base dir: %w", err)
	}
	c.Paths.BaseDir = abs

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = filepath.Join(abs, "data")
	}
	c.Paths.DataDir = filepath.Clean(c.Paths.DataDir)

	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(abs, "etf_strategy.log")
	}
	c.Logging.ErrorDir = c.ErrorLogDir()

	if c.Flags.SQLitePath == "" {
		c.Flags.SQLitePath = filepath.Join(c.Paths.DataDir, "flags.db")
	}

	c.Arbitrage.Watchlist = trimAll(c.Arbitrage.Watchlist)
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate rejects values that are present but unusable. Absent secrets are
// checked lazily by the Require* helpers.
func (c *Config) Validate() error {
	if c.Retry.MaxRetries < 0 {
		return invalid("MAX_RETRIES", "must not be negative")
	}
	if c.Retry.DelaySeconds < 0 {
		return invalid("RETRY_DELAY", "must not be negative")
	}
	if c.Retention.Days < 0 {
		return invalid("DATA_RETENTION_DAYS", "must not be negative")
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return invalid("LOG_LEVEL", fmt.Sprintf("unknown level %q", c.Logging.Level))
	}
	switch c.Flags.Backend {
	case BackendFile, BackendSQLite:
	case BackendPostgres:
		if strings.TrimSpace(c.Flags.DatabaseDSN) == "" {
			return invalid("DATABASE_DSN", "is required for the postgres backend")
		}
	case BackendDynamoDB:
		if strings.TrimSpace(c.Flags.DynamoDBTable) == "" {
			return invalid("FLAG_DYNAMODB_TABLE", "is required for the dynamodb backend")
		}
	default:
		return invalid("FLAG_BACKEND", fmt.Sprintf("unknown backend %q", c.Flags.Backend))
	}
	if c.Arbitrage.ThresholdPct < 0 {
		return invalid("ARBITRAGE_THRESHOLD_PCT", "must not be negative")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return invalid("TIMEZONE", err.Error())
	}
	return nil
}

// RequireWebhook returns the webhook URL, or a ConfigurationError when
// notifications are enabled but no webhook is configured.
func (c *Config) RequireWebhook() (string, error) {
	if !c.Notify.Enabled {
		return "", &ConfigurationError{Key: "NOTIFICATIONS_ENABLED", Reason: "notifications are disabled"}
	}
	url := strings.TrimSpace(c.Notify.Webhook)
	if url == "" {
		return "", missing("WECOM_WEBHOOK")
	}
	return url, nil
}

// RequireTushareToken returns the Tushare Pro token or a ConfigurationError.
func (c *Config) RequireTushareToken() (string, error) {
	token := strings.TrimSpace(c.Sources.TushareToken)
	if token == "" {
		return "", missing("TUSHARE_TOKEN")
	}
	return token, nil
}

// Location returns the scheduling timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
