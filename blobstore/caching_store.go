package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// CachingStore fronts a remote BlobStore with a local one. Reads are served
// from the local copy when present; otherwise the blob is fetched from the
// remote store, written locally and then served. Weight files are immutable
// once published, so the copy never goes stale unless the blob is replaced
// through this store.
type CachingStore struct {
	remote BlobStore
	local  BlobStore
}

// NewCachingStore creates a new CachingStore.
func NewCachingStore(remote, local BlobStore) *CachingStore {
	return &CachingStore{remote: remote, local: local}
}

// Open serves from the local copy, filling it from remote on a miss.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.local.Open(ctx, name)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	rb, err := s.remote.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rb.Close() }()

	data, err := io.ReadAll(rb)
	if err != nil {
		return nil, fmt.Errorf("blobstore: fetch %s: %w", name, err)
	}
	if err := s.local.Put(ctx, name, data); err != nil {
		return nil, fmt.Errorf("blobstore: cache %s: %w", name, err)
	}
	return NewBytesBlob(data), nil
}

// Put writes through to remote and drops the local copy.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.remote.Put(ctx, name, data); err != nil {
		return err
	}
	return s.local.Delete(ctx, name)
}

// Delete removes the blob from both stores.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	if err := s.remote.Delete(ctx, name); err != nil {
		return err
	}
	return s.local.Delete(ctx, name)
}

// List lists the remote store.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.remote.List(ctx, prefix)
}
