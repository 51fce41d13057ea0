package storage

import (
	"context"
	"fmt"
	"time"

	"etfwatch/internal/config"
)

// Event names a notification that must go out at most once per mark.
type Event string

const (
	// EventNewStockPushed covers the daily IPO subscription message.
	EventNewStockPushed Event = "new_stock_pushed"
	// EventListingPushed covers the newly listed stocks message.
	EventListingPushed Event = "listing_pushed"
	// EventArbitrageStatus covers the arbitrage opportunity message.
	EventArbitrageStatus Event = "arbitrage_status"
)

// Events lists every known event in a stable order.
func Events() []Event {
	return []Event{EventNewStockPushed, EventListingPushed, EventArbitrageStatus}
}

// ParseEvent validates an event name supplied by an operator.
func ParseEvent(name string) (Event, error) {
	for _, e := range Events() {
		if string(e) == name {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown event %q", name)
}

// MarkInfo is recorded alongside a mark for diagnosis. At is the time the
// notification went out; zero means the store's own clock.
type MarkInfo struct {
	RunID string
	Note  string
	At    time.Time
}

func (i MarkInfo) markedAt(now func() time.Time) time.Time {
	if i.At.IsZero() {
		return now().UTC()
	}
	return i.At.UTC()
}

// FlagRecord is the persisted state of one event.
type FlagRecord struct {
	Event    Event     `json:"event"`
	Marked   bool      `json:"-"`
	MarkedAt time.Time `json:"marked_at"`
	RunID    string    `json:"run_id,omitempty"`
	Note     string    `json:"note,omitempty"`
}

// FlagStore persists "already notified" markers.
//
// IsMarked fails open: a missing, unreadable or corrupt record reads as not
// marked. Once Mark returns nil, IsMarked returns true for that event, across
// restarts, until Reset is called. Get is IsMarked returning the record, so
// callers can tell when the mark was made.
type FlagStore interface {
	IsMarked(ctx context.Context, event Event) bool
	Get(ctx context.Context, event Event) (FlagRecord, bool)
	Mark(ctx context.Context, event Event, info MarkInfo) error
	Reset(ctx context.Context, event Event) error
	List(ctx context.Context) ([]FlagRecord, error)
}

// FlagPaths maps each event to its flag file under the configured data
// directories.
func FlagPaths(cfg *config.Config) map[Event]string {
	return map[Event]string{
		EventNewStockPushed:  cfg.NewStockPushedFlag(),
		EventListingPushed:   cfg.ListingPushedFlag(),
		EventArbitrageStatus: cfg.ArbitrageStatusFile(),
	}
}

// OpenFlagStore builds the backend selected by cfg.Flags.Backend. The
// returned closer is never nil.
func OpenFlagStore(ctx context.Context, cfg *config.Config) (FlagStore, func(), error) {
	switch cfg.Flags.Backend {
	case config.BackendSQLite:
		store, err := OpenSQLiteFlagStore(ctx, cfg.Flags.SQLitePath)
		if err != nil {
			return nil, func() {}, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.BackendPostgres:
		pool, err := NewPool(ctx, cfg.Flags.DatabaseDSN)
		if err != nil {
			return nil, func() {}, err
		}
		store := NewPostgresFlagStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, func() {}, err
		}
		return store, store.Close, nil
	case config.BackendDynamoDB:
		store, err := OpenDynamoFlagStore(ctx, cfg.Flags.AWSRegion, cfg.Flags.DynamoDBTable)
		if err != nil {
			return nil, func() {}, err
		}
		return store, func() {}, nil
	default:
		return NewFileFlagStore(FlagPaths(cfg)), func() {}, nil
	}
}
