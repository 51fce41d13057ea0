package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"etfwatch/internal/retry"
)

const (
	dateLayout    = "20060102"
	listingWindow = 45 * 24 * time.Hour
	quoteWindow   = 10 * 24 * time.Hour
)

var hundred = decimal.NewFromInt(100)

// TokenFunc resolves the API token at call time so a missing credential only
// fails the jobs that actually need it.
type TokenFunc func() (string, error)

// TushareOptions parameterise the Tushare Pro client.
type TushareOptions struct {
	BaseURL string
	Token   TokenFunc
	Timeout time.Duration
}

// Tushare queries the Tushare Pro HTTP API.
type Tushare struct {
	opts    TushareOptions
	client  *http.Client
	logger  zerolog.Logger
	baseURL string
}

// NewTushare constructs a Tushare client.
func NewTushare(opts TushareOptions, logger zerolog.Logger) *Tushare {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://api.tushare.pro"
	}
	return &Tushare{
		opts:    opts,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "tushare_fetcher").Logger(),
		baseURL: baseURL,
	}
}

type tushareRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params"`
	Fields  string            `json:"fields"`
}

type tushareResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Fields []string `json:"fields"`
		Items  [][]any  `json:"items"`
	} `json:"data"`
}

// row gives name-based access to one result item.
type row map[string]any

func (r row) str(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case float64:
		return decimal.NewFromFloat(v).String()
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func (r row) dec(key string) decimal.Decimal {
	s := r.str(key)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (t *Tushare) query(ctx context.Context, api string, params map[string]string, fields []string) ([]row, error) {
	if t.opts.Token == nil {
		return nil, retry.Permanent(errors.New("tushare token resolver not configured"))
	}
	token, err := t.opts.Token()
	if err != nil {
		return nil, retry.Permanent(err)
	}

	body, err := json.Marshal(tushareRequest{
		APIName: api,
		Token:   token,
		Params:  params,
		Fields:  strings.Join(fields, ","),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tushare request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create tushare request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tushare %s: %w", api, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tushare response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tushare %s: http %d", api, resp.StatusCode)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var res tushareResponse
	if err := dec.Decode(&res); err != nil {
		return nil, fmt.Errorf("decode tushare response: %w", err)
	}
	if res.Code != 0 {
		return nil, fmt.Errorf("tushare %s error %d: %s", api, res.Code, res.Msg)
	}
	if res.Data == nil {
		return nil, nil
	}

	rows := make([]row, 0, len(res.Data.Items))
	for _, item := range res.Data.Items {
		r := make(row, len(res.Data.Fields))
		for i, f := range res.Data.Fields {
			if i < len(item) {
				r[f] = item[i]
			}
		}
		rows = append(rows, r)
	}
	t.logger.Debug().Str("api", api).Int("rows", len(rows)).Msg("tushare query complete")
	return rows, nil
}

var newShareFields = []string{"ts_code", "sub_code", "name", "ipo_date", "issue_date", "price", "pe", "limit_amount"}

func toIPO(r row) IPO {
	return IPO{
		Code:        r.str("ts_code"),
		SubCode:     r.str("sub_code"),
		Name:        r.str("name"),
		IPODate:     r.str("ipo_date"),
		IssueDate:   r.str("issue_date"),
		Price:       r.dec("price"),
		PE:          r.dec("pe"),
		LimitAmount: r.dec("limit_amount"),
	}
}

// FetchSubscriptions returns IPOs whose subscription day is day.
func (t *Tushare) FetchSubscriptions(ctx context.Context, day time.Time) ([]IPO, error) {
	d := day.Format(dateLayout)
	rows, err := t.query(ctx, "new_share", map[string]string{"start_date": d, "end_date": d}, newShareFields)
	if err != nil {
		return nil, err
	}
	ipos := make([]IPO, 0, len(rows))
	for _, r := range rows {
		if ipo := toIPO(r); ipo.IPODate == d {
			ipos = append(ipos, ipo)
		}
	}
	return ipos, nil
}

// FetchListings returns IPOs whose listing day is day. new_share filters on
// the subscription date, so a trailing window is scanned.
func (t *Tushare) FetchListings(ctx context.Context, day time.Time) ([]IPO, error) {
	d := day.Format(dateLayout)
	start := day.Add(-listingWindow).Format(dateLayout)
	rows, err := t.query(ctx, "new_share", map[string]string{"start_date": start, "end_date": d}, newShareFields)
	if err != nil {
		return nil, err
	}
	ipos := make([]IPO, 0)
	for _, r := range rows {
		if ipo := toIPO(r); ipo.IssueDate == d {
			ipos = append(ipos, ipo)
		}
	}
	return ipos, nil
}

// FetchPremiums pairs the latest fund_daily close with the latest fund_nav
// unit NAV per code. Codes with no NAV are skipped.
func (t *Tushare) FetchPremiums(ctx context.Context, codes []string) ([]PremiumQuote, error) {
	now := time.Now()
	start := now.Add(-quoteWindow).Format(dateLayout)
	end := now.Format(dateLayout)

	quotes := make([]PremiumQuote, 0, len(codes))
	for _, code := range codes {
		daily, err := t.query(ctx, "fund_daily",
			map[string]string{"ts_code": code, "start_date": start, "end_date": end},
			[]string{"ts_code", "trade_date", "close"})
		if err != nil {
			return nil, err
		}
		navs, err := t.query(ctx, "fund_nav",
			map[string]string{"ts_code": code, "start_date": start, "end_date": end},
			[]string{"ts_code", "nav_date", "unit_nav"})
		if err != nil {
			return nil, err
		}

		lastClose, tradeDate, ok := latest(daily, "trade_date", "close")
		if !ok {
			continue
		}
		nav, _, ok := latest(navs, "nav_date", "unit_nav")
		if !ok || nav.IsZero() {
			t.logger.Debug().Str("code", code).Msg("no nav available, skipping")
			continue
		}

		quotes = append(quotes, PremiumQuote{
			Code:       code,
			TradeDate:  tradeDate,
			Close:      lastClose,
			NAV:        nav,
			PremiumPct: lastClose.Div(nav).Sub(decimal.NewFromInt(1)).Mul(hundred),
		})
	}
	return quotes, nil
}

func latest(rows []row, dateKey, valueKey string) (decimal.Decimal, string, bool) {
	if len(rows) == 0 {
		return decimal.Decimal{}, "", false
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].str(dateKey) > rows[j].str(dateKey) })
	return rows[0].dec(valueKey), rows[0].str(dateKey), true
}

var (
	_ SubscriptionFetcher = (*Tushare)(nil)
	_ ListingFetcher      = (*Tushare)(nil)
	_ PremiumFetcher      = (*Tushare)(nil)
)
