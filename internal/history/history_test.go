// ABOUTME: Tests for the SQLite message ledger: schema creation, recording
// ABOUTME: and recent-message queries.

package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-bridge/internal/bridge"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	// The parent directory does not exist yet; Open must create it.
	path := filepath.Join(t.TempDir(), "coven", "bridge.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, bridge.Record{
		Direction: bridge.DirectionOutbound,
		Text:      "hello",
		MessageID: "m-1",
		At:        time.Now(),
	}))
	require.NoError(t, store.Record(ctx, bridge.Record{
		Direction: bridge.DirectionInbound,
		Text:      "hi there",
		At:        time.Now(),
	}))

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "hi there", entries[0].Text)
	assert.Equal(t, bridge.DirectionInbound, entries[0].Direction)
	assert.Empty(t, entries[0].MessageID)

	assert.Equal(t, "hello", entries[1].Text)
	assert.Equal(t, bridge.DirectionOutbound, entries[1].Direction)
	assert.Equal(t, "m-1", entries[1].MessageID)
	assert.False(t, entries[1].At.IsZero())
}

func TestRecentLimit(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, bridge.Record{
			Direction: bridge.DirectionOutbound,
			Text:      "msg",
			At:        time.Now(),
		}))
	}

	entries, err := store.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRecentEmpty(t *testing.T) {
	store := openStore(t)

	entries, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecordRejectsUnknownDirection(t *testing.T) {
	store := openStore(t)

	err := store.Record(context.Background(), bridge.Record{
		Direction: "sideways",
		Text:      "msg",
		At:        time.Now(),
	})
	assert.Error(t, err)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, bridge.Record{
		Direction: bridge.DirectionOutbound,
		Text:      "persisted",
		At:        time.Now(),
	}))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "persisted", entries[0].Text)
}
