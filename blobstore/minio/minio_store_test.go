package minio

import (
	"context"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lostboard/vismatch/blobstore"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	store := NewStore(client, "vismatch-test", "weights/")
	require.NoError(t, store.EnsureBucket(ctx))

	_, err = store.Open(ctx, "missing.vmnw")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "test.vmnw", data))

	b, err := store.Open(ctx, "test.vmnw")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), b.Size())
	got, err := io.ReadAll(b)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	assert.Equal(t, data, got)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "test.vmnw")

	require.NoError(t, store.Delete(ctx, "test.vmnw"))
	_, err = store.Open(ctx, "test.vmnw")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
