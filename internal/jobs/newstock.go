package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"etfwatch/internal/fetcher"
	"etfwatch/internal/retry"
	"etfwatch/internal/storage"
)

// Job names accepted by Runner.Run, the CLI and the HTTP trigger.
const (
	NameNewStockInfo  = "new-stock-info"
	NameNewListings   = "new-listings"
	NameArbitrageScan = "arbitrage-scan"
	NameCleanup       = "cleanup"
)

// NewStockInfo announces IPOs open for subscription today.
type NewStockInfo struct {
	Source  fetcher.SubscriptionFetcher
	Retrier *retry.Executor
}

func (j *NewStockInfo) Name() string         { return NameNewStockInfo }
func (j *NewStockInfo) Event() storage.Event { return storage.EventNewStockPushed }
func (j *NewStockInfo) TradingDayOnly() bool { return true }

func (j *NewStockInfo) Message(ctx context.Context, now time.Time) (string, error) {
	ipos, err := retry.Run(ctx, j.Retrier, func(ctx context.Context) ([]fetcher.IPO, error) {
		return j.Source.FetchSubscriptions(ctx, now)
	})
	if err != nil {
		return "", fmt.Errorf("fetch subscriptions: %w", err)
	}
	if len(ipos) == 0 {
		return "", nil
	}
	return formatIPOs(now, "【今日新股申购】", ipos, true), nil
}

// NewListings announces IPOs that start trading today.
type NewListings struct {
	Source  fetcher.ListingFetcher
	Retrier *retry.Executor
}

func (j *NewListings) Name() string         { return NameNewListings }
func (j *NewListings) Event() storage.Event { return storage.EventListingPushed }
func (j *NewListings) TradingDayOnly() bool { return true }

func (j *NewListings) Message(ctx context.Context, now time.Time) (string, error) {
	ipos, err := retry.Run(ctx, j.Retrier, func(ctx context.Context) ([]fetcher.IPO, error) {
		return j.Source.FetchListings(ctx, now)
	})
	if err != nil {
		return "", fmt.Errorf("fetch listings: %w", err)
	}
	if len(ipos) == 0 {
		return "", nil
	}
	return formatIPOs(now, "【今日新股上市】", ipos, false), nil
}

func formatIPOs(now time.Time, title string, ipos []fetcher.IPO, subscription bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CF系统时间：%s\n%s\n", now.Format("2006-01-02 15:04"), title)
	for i, ipo := range ipos {
		fmt.Fprintf(&b, "\n%d. %s | %s\n", i+1, ipo.Code, ipo.Name)
		if subscription {
			if ipo.SubCode != "" {
				fmt.Fprintf(&b, "申购代码：%s\n", ipo.SubCode)
			}
			fmt.Fprintf(&b, "发行价：%s 元", ipo.Price.StringFixed(2))
			if !ipo.LimitAmount.IsZero() {
				fmt.Fprintf(&b, " | 申购上限：%s 万股", ipo.LimitAmount.String())
			}
		} else {
			fmt.Fprintf(&b, "发行价：%s 元", ipo.Price.StringFixed(2))
		}
		if !ipo.PE.IsZero() {
			fmt.Fprintf(&b, " | 市盈率：%s", ipo.PE.StringFixed(2))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	_ NotifyJob = (*NewStockInfo)(nil)
	_ NotifyJob = (*NewListings)(nil)
)
