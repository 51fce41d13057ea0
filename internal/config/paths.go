package config

import "path/filepath"

// Flag store backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

// RawDataDir stores crawled market data.
func (c *Config) RawDataDir() string { return filepath.Join(c.Paths.DataDir, "raw") }

// StockPoolDir stores generated stock pools.
func (c *Config) StockPoolDir() string { return filepath.Join(c.Paths.DataDir, "stock_pool") }

// TradeLogDir stores trade records. It is never cleaned.
func (c *Config) TradeLogDir() string { return filepath.Join(c.Paths.DataDir, "trade_log") }

// ErrorLogDir receives the daily error log.
func (c *Config) ErrorLogDir() string { return filepath.Join(c.Paths.DataDir, "error_log") }

// NewStockDir stores IPO data and the two new-stock flags.
func (c *Config) NewStockDir() string { return filepath.Join(c.Paths.DataDir, "new_stock") }

// ArbitrageDir stores arbitrage scans and the arbitrage status flag.
func (c *Config) ArbitrageDir() string { return filepath.Join(c.Paths.DataDir, "arbitrage") }

// NewStockPushedFlag marks today's IPO subscription message as sent.
func (c *Config) NewStockPushedFlag() string {
	return filepath.Join(c.NewStockDir(), "new_stock_pushed.flag")
}

// ListingPushedFlag marks the new-listing message as sent.
func (c *Config) ListingPushedFlag() string {
	return filepath.Join(c.NewStockDir(), "listing_pushed.flag")
}

// ArbitrageStatusFile marks the arbitrage opportunity message as sent.
func (c *Config) ArbitrageStatusFile() string {
	return filepath.Join(c.ArbitrageDir(), "arbitrage_status.flag.json")
}

// Directories returns, in creation order, every directory that must exist
// before a job writes data.
func (c *Config) Directories() []string {
	return []string{
		c.Paths.DataDir,
		c.RawDataDir(),
		c.StockPoolDir(),
		c.TradeLogDir(),
		c.ErrorLogDir(),
		c.NewStockDir(),
		c.ArbitrageDir(),
	}
}
