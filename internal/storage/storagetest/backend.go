// Package storagetest holds the behaviour every storage.Backend must share.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpstore/internal/storage"
)

// Factory returns a fresh, empty backend. Cleanup is the caller's concern.
type Factory func(t *testing.T) storage.Backend

// RunBackendTests runs the shared backend checks against newBackend.
func RunBackendTests(t *testing.T, newBackend Factory) {
	t.Run("GetMissing", func(t *testing.T) {
		b := newBackend(t)
		_, ok, err := b.GetRecord(context.Background(), "nonexistent")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("PutGet", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		rec := storage.NewRecord("UADER-FCyT-IS2", map[string]string{"cp": "3260", "sede": "FCyT"})

		require.NoError(t, b.PutRecord(ctx, rec))

		got, ok, err := b.GetRecord(ctx, rec.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, rec.Equal(got), "got %+v", got)
	})

	t.Run("PutReplaces", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		require.NoError(t, b.PutRecord(ctx, storage.NewRecord("A", map[string]string{"x": "1", "y": "2"})))
		require.NoError(t, b.PutRecord(ctx, storage.NewRecord("A", map[string]string{"x": "3"})))

		got, ok, err := b.GetRecord(ctx, "A")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, map[string]string{"x": "3"}, got.Fields)

		all, err := b.ListRecords(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("ListRecords", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		for _, id := range []string{"B", "A", "C"} {
			require.NoError(t, b.PutRecord(ctx, storage.NewRecord(id, map[string]string{"name": id})))
		}

		all, err := b.ListRecords(ctx)
		require.NoError(t, err)
		storage.SortRecords(all)
		require.Len(t, all, 3)
		assert.Equal(t, "A", all[0].ID)
		assert.Equal(t, "B", all[1].ID)
		assert.Equal(t, "C", all[2].ID)
		assert.Equal(t, "B", all[1].Fields["name"])
	})

	t.Run("AppendListLog", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		entries := []storage.LogEntry{
			{UUID: "a1b2c3d4e5f6", SessionID: "s1", Action: "set", Timestamp: ts, ID: "A"},
			{UUID: "a1b2c3d4e5f6", SessionID: "s1", Action: "list", Timestamp: ts.Add(time.Second)},
			{UUID: "a1b2c3d4e5f6", SessionID: "s1", Action: "get", Timestamp: ts.Add(2 * time.Second), ID: "A"},
		}
		for _, e := range entries {
			require.NoError(t, b.AppendLog(ctx, e))
		}

		got, err := b.ListLog(ctx)
		require.NoError(t, err)
		require.Len(t, got, len(entries))
		for i := range entries {
			assert.Equal(t, entries[i].Action, got[i].Action)
			assert.Equal(t, entries[i].ID, got[i].ID)
			assert.Equal(t, entries[i].SessionID, got[i].SessionID)
			assert.True(t, entries[i].Timestamp.Equal(got[i].Timestamp), "timestamp %d", i)
		}
	})

	t.Run("ConcurrentAppend", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = b.AppendLog(ctx, storage.LogEntry{
					UUID:      "a1b2c3d4e5f6",
					SessionID: fmt.Sprintf("s%d", i),
					Action:    "list",
					Timestamp: time.Now().UTC(),
				})
			}(i)
		}
		wg.Wait()

		got, err := b.ListLog(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 20)
	})
}
