package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"etfwatch/internal/fetcher"
	"etfwatch/internal/retry"
	"etfwatch/internal/storage"
)

// ArbitrageScan reports watched ETFs whose premium or discount to NAV reaches
// the threshold.
type ArbitrageScan struct {
	Source       fetcher.PremiumFetcher
	Retrier      *retry.Executor
	Watchlist    []string
	ThresholdPct decimal.Decimal
}

func (j *ArbitrageScan) Name() string         { return NameArbitrageScan }
func (j *ArbitrageScan) Event() storage.Event { return storage.EventArbitrageStatus }
func (j *ArbitrageScan) TradingDayOnly() bool { return true }

func (j *ArbitrageScan) Message(ctx context.Context, now time.Time) (string, error) {
	if len(j.Watchlist) == 0 {
		return "", nil
	}
	quotes, err := retry.Run(ctx, j.Retrier, func(ctx context.Context) ([]fetcher.PremiumQuote, error) {
		return j.Source.FetchPremiums(ctx, j.Watchlist)
	})
	if err != nil {
		return "", fmt.Errorf("fetch premiums: %w", err)
	}

	hits := Opportunities(quotes, j.ThresholdPct)
	if len(hits) == 0 {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CF系统时间：%s\n【ETF折溢价提示】\n阈值：±%s%%\n", now.Format("2006-01-02 15:04"), j.ThresholdPct.String())
	for _, q := range hits {
		kind := "溢价"
		if q.PremiumPct.IsNegative() {
			kind = "折价"
		}
		fmt.Fprintf(&b, "\n%s | %s %s%% | 收盘 %s | 净值 %s | %s",
			q.Code, kind, q.PremiumPct.Abs().StringFixed(2), q.Close.String(), q.NAV.String(), q.TradeDate)
	}
	return b.String(), nil
}

// Opportunities keeps quotes whose absolute premium is at least threshold,
// largest first.
func Opportunities(quotes []fetcher.PremiumQuote, threshold decimal.Decimal) []fetcher.PremiumQuote {
	var out []fetcher.PremiumQuote
	for _, q := range quotes {
		if q.PremiumPct.Abs().GreaterThanOrEqual(threshold) {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].PremiumPct.Abs().GreaterThan(out[b].PremiumPct.Abs())
	})
	return out
}

var _ NotifyJob = (*ArbitrageScan)(nil)
