package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlagPaths(root string) map[Event]string {
	return map[Event]string{
		EventNewStockPushed:  filepath.Join(root, "new_stock", "new_stock_pushed.flag"),
		EventListingPushed:   filepath.Join(root, "new_stock", "listing_pushed.flag"),
		EventArbitrageStatus: filepath.Join(root, "arbitrage", "arbitrage_status.flag.json"),
	}
}

// flagStoreContract exercises the invariants every backend must satisfy.
// reopen simulates a process restart against the same storage location.
func flagStoreContract(t *testing.T, open func() FlagStore) {
	t.Helper()
	ctx := context.Background()
	store := open()

	for _, e := range Events() {
		assert.False(t, store.IsMarked(ctx, e), "%s must start unmarked", e)
	}

	_, ok := store.Get(ctx, EventNewStockPushed)
	assert.False(t, ok)

	sentAt := time.Date(2025, 8, 15, 9, 30, 0, 0, time.FixedZone("CST", 8*3600))
	require.NoError(t, store.Mark(ctx, EventNewStockPushed, MarkInfo{RunID: "run-1", Note: "3 IPOs", At: sentAt}))
	for i := 0; i < 3; i++ {
		assert.True(t, store.IsMarked(ctx, EventNewStockPushed))
	}
	rec, ok := store.Get(ctx, EventNewStockPushed)
	require.True(t, ok)
	assert.True(t, rec.MarkedAt.Equal(sentAt), "marked_at %s", rec.MarkedAt)
	assert.Equal(t, "run-1", rec.RunID)
	assert.False(t, store.IsMarked(ctx, EventListingPushed), "marking one event must not mark another")

	restarted := open()
	assert.True(t, restarted.IsMarked(ctx, EventNewStockPushed), "mark must survive a restart")

	records, err := restarted.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, len(Events()))
	assert.Equal(t, EventNewStockPushed, records[0].Event)
	assert.True(t, records[0].Marked)
	assert.Equal(t, "run-1", records[0].RunID)
	assert.False(t, records[1].Marked)

	require.NoError(t, restarted.Reset(ctx, EventNewStockPushed))
	assert.False(t, restarted.IsMarked(ctx, EventNewStockPushed))
	_, ok = restarted.Get(ctx, EventNewStockPushed)
	assert.False(t, ok)
	require.NoError(t, restarted.Reset(ctx, EventNewStockPushed), "reset of an unmarked event is a no-op")
}

func TestFileFlagStoreContract(t *testing.T) {
	root := t.TempDir()
	flagStoreContract(t, func() FlagStore { return NewFileFlagStore(testFlagPaths(root)) })
}

func TestFileFlagStoreCorruptOrForeignRecordReadsUnmarked(t *testing.T) {
	root := t.TempDir()
	paths := testFlagPaths(root)
	store := NewFileFlagStore(paths)
	ctx := context.Background()

	path := paths[EventListingPushed]
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	for _, content := range []string{"", "{not json", "2025-08-15 09:30", `{"event":"new_stock_pushed","marked_at":"2025-08-15T01:30:00Z"}`} {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		assert.False(t, store.IsMarked(ctx, EventListingPushed), "content %q", content)
	}

	require.NoError(t, store.Mark(ctx, EventListingPushed, MarkInfo{}))
	assert.True(t, store.IsMarked(ctx, EventListingPushed))
}

func TestFileFlagStoreUnreadableReadsUnmarked(t *testing.T) {
	root := t.TempDir()
	paths := testFlagPaths(root)
	store := NewFileFlagStore(paths)

	// A directory where the flag file should be cannot be read as a record.
	require.NoError(t, os.MkdirAll(paths[EventArbitrageStatus], 0o755))
	assert.False(t, store.IsMarked(context.Background(), EventArbitrageStatus))
}

func TestFileFlagStoreLeftoverTempFileIsIgnored(t *testing.T) {
	root := t.TempDir()
	paths := testFlagPaths(root)
	store := NewFileFlagStore(paths)
	ctx := context.Background()

	// Simulates a crash after the temp write but before the rename.
	path := paths[EventNewStockPushed]
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	tmp := filepath.Join(filepath.Dir(path), ".new_stock_pushed.flag.tmp-123")
	require.NoError(t, os.WriteFile(tmp, []byte(`{"event":"new_stock_pushed","marked_at":"2025-08-15T01:30:00Z"}`), 0o644))

	assert.False(t, store.IsMarked(ctx, EventNewStockPushed))

	require.NoError(t, store.Mark(ctx, EventNewStockPushed, MarkInfo{}))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"new_stock_pushed.flag", ".new_stock_pushed.flag.tmp-123"}, names,
		"mark must not leave its own temp file behind")
}

func TestFileFlagStoreUnknownEvent(t *testing.T) {
	store := NewFileFlagStore(testFlagPaths(t.TempDir()))
	ctx := context.Background()

	assert.False(t, store.IsMarked(ctx, Event("nope")))
	var storageErr *StorageError
	assert.ErrorAs(t, store.Mark(ctx, Event("nope"), MarkInfo{}), &storageErr)
}

func TestParseEvent(t *testing.T) {
	e, err := ParseEvent("listing_pushed")
	require.NoError(t, err)
	assert.Equal(t, EventListingPushed, e)

	_, err = ParseEvent("weekly_report")
	assert.Error(t, err)
}
