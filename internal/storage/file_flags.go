package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileFlagStore keeps one JSON record per event at a fixed path.
type FileFlagStore struct {
	paths map[Event]string
	now   func() time.Time
}

// NewFileFlagStore wires event paths into a store.
func NewFileFlagStore(paths map[Event]string) *FileFlagStore {
	copied := make(map[Event]string, len(paths))
	for k, v := range paths {
		copied[k] = v
	}
	return &FileFlagStore{paths: copied, now: time.Now}
}

// Path returns the flag file for event, or "" when unknown.
func (s *FileFlagStore) Path(event Event) string {
	return s.paths[event]
}

// IsMarked reports whether a valid record for event exists.
func (s *FileFlagStore) IsMarked(_ context.Context, event Event) bool {
	_, ok := s.read(event)
	return ok
}

// Get returns the record for event when IsMarked would report true.
func (s *FileFlagStore) Get(_ context.Context, event Event) (FlagRecord, bool) {
	return s.read(event)
}

func (s *FileFlagStore) read(event Event) (FlagRecord, bool) {
	path, ok := s.paths[event]
	if !ok {
		return FlagRecord{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return FlagRecord{}, false
	}
	var rec FlagRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return FlagRecord{}, false
	}
	if rec.Event != event || rec.MarkedAt.IsZero() {
		return FlagRecord{}, false
	}
	rec.Marked = true
	return rec, true
}

// Mark writes the record to a temp file in the same directory, syncs it and
// renames it over the flag path. A crash before the rename leaves the prior
// state intact.
func (s *FileFlagStore) Mark(_ context.Context, event Event, info MarkInfo) error {
	path, ok := s.paths[event]
	if !ok {
		return storageErr("mark flag", string(event), fmt.Errorf("unknown event"))
	}

	rec := FlagRecord{
		Event:    event,
		MarkedAt: info.markedAt(s.now),
		RunID:    info.RunID,
		Note:     info.Note,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return storageErr("encode flag", path, err)
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return storageErr("create directory", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return storageErr("create temp flag", dir, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return storageErr("write temp flag", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return storageErr("sync temp flag", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return storageErr("close temp flag", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return storageErr("replace flag", path, err)
	}
	committed = true

	// Persist the rename itself; not every platform allows syncing a directory.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}

// Reset removes the flag so the next run notifies again.
func (s *FileFlagStore) Reset(_ context.Context, event Event) error {
	path, ok := s.paths[event]
	if !ok {
		return storageErr("reset flag", string(event), fmt.Errorf("unknown event"))
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageErr("reset flag", path, err)
	}
	return nil
}

// List returns one record per known event; unmarked events have Marked=false.
func (s *FileFlagStore) List(_ context.Context) ([]FlagRecord, error) {
	records := make([]FlagRecord, 0, len(s.paths))
	for _, event := range Events() {
		if _, ok := s.paths[event]; !ok {
			continue
		}
		rec, ok := s.read(event)
		if !ok {
			rec = FlagRecord{Event: event}
		}
		records = append(records, rec)
	}
	return records, nil
}

var _ FlagStore = (*FileFlagStore)(nil)
