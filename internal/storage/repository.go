package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgSchemaSQL = `CREATE TABLE IF NOT EXISTS notification_flags (
        event     TEXT PRIMARY KEY,
        marked_at TIMESTAMPTZ NOT NULL,
        run_id    TEXT NOT NULL DEFAULT '',
        note      TEXT NOT NULL DEFAULT ''
    );`

	pgUpsertFlagSQL = `INSERT INTO notification_flags (
        event,
        marked_at,
        run_id,
        note
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (event) DO UPDATE
    SET marked_at = EXCLUDED.marked_at,
        run_id    = EXCLUDED.run_id,
        note      = EXCLUDED.note;`

	pgSelectFlagSQL = `SELECT marked_at, run_id, note FROM notification_flags WHERE event = $1;`
	pgDeleteFlagSQL = `DELETE FROM notification_flags WHERE event = $1;`
)

// PostgresFlagStore keeps flags in a shared PostgreSQL table, for deployments
// where jobs run on hosts without a common filesystem.
type PostgresFlagStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresFlagStore wires a pgx pool into a flag store.
func NewPostgresFlagStore(pool *pgxpool.Pool) *PostgresFlagStore {
	return &PostgresFlagStore{pool: pool, now: time.Now}
}

// Close releases the underlying pool resources.
func (s *PostgresFlagStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PostgresFlagStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the flag table when missing.
func (s *PostgresFlagStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, pgSchemaSQL); err != nil {
		return storageErr("create flag schema", "", err)
	}
	return nil
}

// IsMarked reports whether a row exists; any query error reads as unmarked.
func (s *PostgresFlagStore) IsMarked(ctx context.Context, event Event) bool {
	_, ok, _ := s.read(ctx, event)
	return ok
}

// Get returns the stored row; query errors read as unmarked.
func (s *PostgresFlagStore) Get(ctx context.Context, event Event) (FlagRecord, bool) {
	rec, ok, _ := s.read(ctx, event)
	return rec, ok
}

func (s *PostgresFlagStore) read(ctx context.Context, event Event) (FlagRecord, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return FlagRecord{}, false, err
	}
	rec := FlagRecord{Event: event}
	err = pool.QueryRow(ctx, pgSelectFlagSQL, string(event)).Scan(&rec.MarkedAt, &rec.RunID, &rec.Note)
	if errors.Is(err, pgx.ErrNoRows) {
		return FlagRecord{Event: event}, false, nil
	}
	if err != nil {
		return FlagRecord{Event: event}, false, err
	}
	rec.Marked = true
	return rec, true, nil
}

// Mark upserts the flag row.
func (s *PostgresFlagStore) Mark(ctx context.Context, event Event, info MarkInfo) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, pgUpsertFlagSQL, string(event), info.markedAt(s.now), info.RunID, info.Note); err != nil {
		return storageErr("mark flag", string(event), err)
	}
	return nil
}

// Reset deletes the flag row.
func (s *PostgresFlagStore) Reset(ctx context.Context, event Event) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, pgDeleteFlagSQL, string(event)); err != nil {
		return storageErr("reset flag", string(event), err)
	}
	return nil
}

// List returns one record per known event. Unlike IsMarked, query errors are
// surfaced so an operator sees a broken database.
func (s *PostgresFlagStore) List(ctx context.Context) ([]FlagRecord, error) {
	records := make([]FlagRecord, 0, len(Events()))
	for _, event := range Events() {
		rec, _, err := s.read(ctx, event)
		if err != nil {
			return nil, storageErr("list flags", "", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

var _ FlagStore = (*PostgresFlagStore)(nil)
