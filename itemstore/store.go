// Package itemstore persists lost-and-found posts together with their
// embeddings.
package itemstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/lostboard/vismatch/embedding"
	"github.com/lostboard/vismatch/item"
)

// ErrNotFound is returned when no item has the requested ID.
var ErrNotFound = errors.New("itemstore: item not found")

// Store persists item records. Implementations are safe for concurrent use.
type Store interface {
	// Put inserts rec or replaces the item with the same ID.
	Put(ctx context.Context, rec item.Record) error
	// Get returns the item with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (item.Record, error)
	// List returns every item, newest first.
	List(ctx context.Context) ([]item.Record, error)
	// SetEmbedding replaces the embedding of an existing item. A nil
	// embedding clears it.
	SetEmbedding(ctx context.Context, id string, e embedding.Embedding) error
	// Delete removes the item. Deleting a missing item is not an error.
	Delete(ctx context.Context, id string) error
	Close() error
}

// Validate checks a record before it is written.
func Validate(rec *item.Record) error {
	if rec.ID == "" {
		return errors.New("itemstore: empty item id")
	}
	if !rec.Type.Valid() {
		return fmt.Errorf("itemstore: item %s: invalid type %q", rec.ID, rec.Type)
	}
	if rec.Embedding.Present() {
		if err := rec.Embedding.Validate(0); err != nil {
			return fmt.Errorf("itemstore: item %s: %w", rec.ID, err)
		}
	}
	return nil
}

// SortNewestFirst orders records by descending CreatedAt, then by ID.
func SortNewestFirst(recs []item.Record) {
	slices.SortStableFunc(recs, func(a, b item.Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
