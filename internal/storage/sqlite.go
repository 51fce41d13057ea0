package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteSchemaSQL = `CREATE TABLE IF NOT EXISTS notification_flags (
        event     TEXT PRIMARY KEY,
        marked_at TEXT NOT NULL,
        run_id    TEXT NOT NULL DEFAULT '',
        note      TEXT NOT NULL DEFAULT ''
    );`

	sqliteUpsertFlagSQL = `INSERT INTO notification_flags (event, marked_at, run_id, note)
    VALUES (?, ?, ?, ?)
    ON CONFLICT (event) DO UPDATE
    SET marked_at = excluded.marked_at,
        run_id    = excluded.run_id,
        note      = excluded.note;`

	sqliteSelectFlagSQL = `SELECT marked_at, run_id, note FROM notification_flags WHERE event = ?;`
	sqliteDeleteFlagSQL = `DELETE FROM notification_flags WHERE event = ?;`
)

// SQLiteFlagStore keeps flags in a local SQLite database. Each mark is a
// single transactional upsert, so a crash leaves either the old or new row.
type SQLiteFlagStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenSQLiteFlagStore opens (creating if needed) the database at path.
func OpenSQLiteFlagStore(ctx context.Context, path string) (*SQLiteFlagStore, error) {
	if path == "" {
		return nil, storageErr("open sqlite", path, fmt.Errorf("path is empty"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, storageErr("create directory", filepath.Dir(path), err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, storageErr("open sqlite", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchemaSQL); err != nil {
		db.Close()
		return nil, storageErr("create sqlite schema", path, err)
	}
	return &SQLiteFlagStore{db: db, path: path, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLiteFlagStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// IsMarked reports whether event has a row; query errors read as unmarked.
func (s *SQLiteFlagStore) IsMarked(ctx context.Context, event Event) bool {
	_, ok, _ := s.read(ctx, event)
	return ok
}

// Get returns the stored row; query errors read as unmarked.
func (s *SQLiteFlagStore) Get(ctx context.Context, event Event) (FlagRecord, bool) {
	rec, ok, _ := s.read(ctx, event)
	return rec, ok
}

func (s *SQLiteFlagStore) read(ctx context.Context, event Event) (FlagRecord, bool, error) {
	var markedAt, runID, note string
	err := s.db.QueryRowContext(ctx, sqliteSelectFlagSQL, string(event)).Scan(&markedAt, &runID, &note)
	if errors.Is(err, sql.ErrNoRows) {
		return FlagRecord{Event: event}, false, nil
	}
	if err != nil {
		return FlagRecord{Event: event}, false, err
	}
	ts, err := time.Parse(time.RFC3339Nano, markedAt)
	if err != nil {
		return FlagRecord{Event: event}, false, nil
	}
	return FlagRecord{Event: event, Marked: true, MarkedAt: ts, RunID: runID, Note: note}, true, nil
}

// Mark upserts the flag row.
func (s *SQLiteFlagStore) Mark(ctx context.Context, event Event, info MarkInfo) error {
	markedAt := info.markedAt(s.now).Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, sqliteUpsertFlagSQL, string(event), markedAt, info.RunID, info.Note); err != nil {
		return storageErr("mark flag", s.path, err)
	}
	return nil
}

// Reset deletes the flag row.
func (s *SQLiteFlagStore) Reset(ctx context.Context, event Event) error {
	if _, err := s.db.ExecContext(ctx, sqliteDeleteFlagSQL, string(event)); err != nil {
		return storageErr("reset flag", s.path, err)
	}
	return nil
}

// List returns one record per known event. Unlike IsMarked, query errors
// are surfaced.
func (s *SQLiteFlagStore) List(ctx context.Context) ([]FlagRecord, error) {
	records := make([]FlagRecord, 0, len(Events()))
	for _, event := range Events() {
		rec, _, err := s.read(ctx, event)
		if err != nil {
			return nil, storageErr("list flags", s.path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

var _ FlagStore = (*SQLiteFlagStore)(nil)
