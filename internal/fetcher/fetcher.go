package fetcher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// IPO is one new-share issue as reported by the data source.
type IPO struct {
	Code        string
	SubCode     string
	Name        string
	IPODate     string // subscription day, YYYYMMDD
	IssueDate   string // listing day, YYYYMMDD; empty until scheduled
	Price       decimal.Decimal
	PE          decimal.Decimal
	LimitAmount decimal.Decimal // per-account subscription cap, 万股
}

// PremiumQuote compares an ETF's market close with its net asset value.
type PremiumQuote struct {
	Code       string
	TradeDate  string
	Close      decimal.Decimal
	NAV        decimal.Decimal
	PremiumPct decimal.Decimal
}

// SubscriptionFetcher returns IPOs open for subscription on day.
type SubscriptionFetcher interface {
	FetchSubscriptions(ctx context.Context, day time.Time) ([]IPO, error)
}

// ListingFetcher returns IPOs that start trading on day.
type ListingFetcher interface {
	FetchListings(ctx context.Context, day time.Time) ([]IPO, error)
}

// PremiumFetcher returns the latest premium/discount for each ETF code.
type PremiumFetcher interface {
	FetchPremiums(ctx context.Context, codes []string) ([]PremiumQuote, error)
}
