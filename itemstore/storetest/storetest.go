// Package storetest holds the behavior every itemstore.Store must share.
package storetest

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lostboard/vismatch/embedding"
	"github.com/lostboard/vismatch/item"
	"github.com/lostboard/vismatch/itemstore"
	"github.com/lostboard/vismatch/testutil"
)

// Run exercises s. s must start empty.
func Run(t *testing.T, s itemstore.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	rng := testutil.NewRNG(42)

	lost := item.Record{
		ID:          "lost-1",
		Type:        item.Lost,
		Title:       "Black umbrella",
		Description: "Folding, wooden handle",
		Category:    "Accessories",
		Station:     "Central",
		TrainNumber: "IC 512",
		Date:        "2025-06-01",
		PhotoURL:    "https://example.com/umbrella.jpg",
		Embedding:   rng.Embedding(32),
		PostedBy:    "alice@example.com",
		Status:      item.StatusActive,
		CreatedAt:   base,
	}
	found := item.Record{
		ID:        "found-1",
		Type:      item.Found,
		Title:     "Umbrella",
		Station:   "Harbor",
		PhotoURL:  "https://example.com/found.jpg",
		Status:    item.StatusActive,
		CreatedAt: base.Add(time.Hour),
	}

	t.Run("get missing", func(t *testing.T) {
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, itemstore.ErrNotFound)
	})

	t.Run("put and get", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, lost))
		require.NoError(t, s.Put(ctx, found))

		got, err := s.Get(ctx, lost.ID)
		require.NoError(t, err)
		assert.True(t, lost.CreatedAt.Equal(got.CreatedAt))
		got.CreatedAt = lost.CreatedAt
		assert.Equal(t, lost, got)
		assert.True(t, lost.Embedding.Equal(got.Embedding), "embedding must round-trip exactly")

		got, err = s.Get(ctx, found.ID)
		require.NoError(t, err)
		assert.False(t, got.HasEmbedding())
	})

	t.Run("list newest first", func(t *testing.T) {
		recs, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "found-1", recs[0].ID)
		assert.Equal(t, "lost-1", recs[1].ID)
		assert.True(t, recs[1].Embedding.Equal(lost.Embedding))
	})

	t.Run("replace", func(t *testing.T) {
		changed := found
		changed.Title = "Red umbrella"
		require.NoError(t, s.Put(ctx, changed))

		got, err := s.Get(ctx, found.ID)
		require.NoError(t, err)
		assert.Equal(t, "Red umbrella", got.Title)

		recs, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})

	t.Run("set embedding", func(t *testing.T) {
		e := rng.Embedding(32)
		require.NoError(t, s.SetEmbedding(ctx, found.ID, e))
		got, err := s.Get(ctx, found.ID)
		require.NoError(t, err)
		assert.True(t, e.Equal(got.Embedding))

		require.NoError(t, s.SetEmbedding(ctx, found.ID, nil))
		got, err = s.Get(ctx, found.ID)
		require.NoError(t, err)
		assert.False(t, got.HasEmbedding())

		assert.ErrorIs(t, s.SetEmbedding(ctx, "nope", e), itemstore.ErrNotFound)
	})

	t.Run("rejects invalid records", func(t *testing.T) {
		assert.Error(t, s.Put(ctx, item.Record{Type: item.Lost}))
		assert.Error(t, s.Put(ctx, item.Record{ID: "x", Type: "Stolen"}))
		assert.Error(t, s.Put(ctx, item.Record{
			ID: "nan", Type: item.Lost,
			Embedding: embedding.Embedding{1, float32(math.NaN())},
		}))
	})

	t.Run("concurrent puts", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec := found
				rec.ID = "c-" + string(rune('a'+i))
				rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
				assert.NoError(t, s.Put(ctx, rec))
			}()
		}
		wg.Wait()

		recs, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, recs, 10)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, lost.ID))
		require.NoError(t, s.Delete(ctx, lost.ID))
		_, err := s.Get(ctx, lost.ID)
		assert.ErrorIs(t, err, itemstore.ErrNotFound)
	})
}
