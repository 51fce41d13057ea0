// Package jobs holds the scheduled notification jobs and the runner that
// guarantees each event is announced at most once per mark.
package jobs

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"etfwatch/internal/config"
	"etfwatch/internal/fetcher"
	"etfwatch/internal/retry"
)

// Source is the market data every built-in job needs.
type Source interface {
	fetcher.SubscriptionFetcher
	fetcher.ListingFetcher
	fetcher.PremiumFetcher
}

// Default builds the four built-in jobs from configuration.
func Default(cfg *config.Config, src Source, retrier *retry.Executor, logger zerolog.Logger) []Job {
	return []Job{
		&NewStockInfo{Source: src, Retrier: retrier},
		&NewListings{Source: src, Retrier: retrier},
		&ArbitrageScan{
			Source:       src,
			Retrier:      retrier,
			Watchlist:    cfg.Arbitrage.Watchlist,
			ThresholdPct: decimal.NewFromFloat(cfg.Arbitrage.ThresholdPct),
		},
		&Cleanup{
			Dirs:      CleanupDirs(cfg),
			Retention: time.Duration(cfg.Retention.Days) * 24 * time.Hour,
			Logger:    logger.With().Str("component", "cleanup").Logger(),
		},
	}
}

// CleanupDirs lists the directories swept by the cleanup job. The data root
// and the trade log are excluded.
func CleanupDirs(cfg *config.Config) []string {
	return []string{
		cfg.RawDataDir(),
		cfg.StockPoolDir(),
		cfg.ErrorLogDir(),
		cfg.NewStockDir(),
		cfg.ArbitrageDir(),
	}
}
