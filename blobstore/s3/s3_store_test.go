package s3

import (
	"bytes"
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lostboard/vismatch/blobstore"
)

// fakeS3 is an in-memory S3 for unit tests. Multipart uploads are not
// supported; tests keep blobs below the part size.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte // bucket/key -> data
	puts    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func objKey(bucket, key *string) string { return aws.ToString(bucket) + "/" + aws.ToString(key) }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[objKey(in.Bucket, in.Key)] = data
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[objKey(in.Bucket, in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[objKey(in.Bucket, in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objKey(in.Bucket, in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := aws.ToString(in.Bucket) + "/"
	prefix := bucket + aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, strings.TrimPrefix(k, bucket))
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	panic("fakeS3: multipart upload not supported")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	panic("fakeS3: multipart upload not supported")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	panic("fakeS3: multipart upload not supported")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

var _ Client = (*fakeS3)(nil)

func TestStore(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := NewStore(fake, "models", "prod/")

	_, err := store.Open(ctx, "mobilenet.vmnw")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	ok, err := store.Exists(ctx, "mobilenet.vmnw")
	require.NoError(t, err)
	assert.False(t, ok)

	payload := bytes.Repeat([]byte("w"), 4096)
	require.NoError(t, store.Put(ctx, "mobilenet.vmnw", payload))
	require.NoError(t, store.Put(ctx, "compact.vmnw", []byte("c")))
	assert.Equal(t, 2, fake.puts)
	assert.Contains(t, fake.objects, "models/prod/mobilenet.vmnw")

	ok, err = store.Exists(ctx, "mobilenet.vmnw")
	require.NoError(t, err)
	assert.True(t, ok)

	b, err := store.Open(ctx, "mobilenet.vmnw")
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), b.Size())
	got, err := io.ReadAll(b)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	assert.Equal(t, payload, got)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"compact.vmnw", "mobilenet.vmnw"}, names)

	names, err = store.List(ctx, "mob")
	require.NoError(t, err)
	assert.Equal(t, []string{"mobilenet.vmnw"}, names)

	require.NoError(t, store.Delete(ctx, "mobilenet.vmnw"))
	_, err = store.Open(ctx, "mobilenet.vmnw")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestIntegration_S3Store(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("Skipping S3 integration test: S3_BUCKET not set")
	}

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx)
	require.NoError(t, err)

	store := NewStore(s3.NewFromConfig(cfg), bucket, "vismatch-test/")
	data := bytes.Repeat([]byte{0xab}, 1<<20)
	require.NoError(t, store.Put(ctx, "blob", data))
	t.Cleanup(func() { _ = store.Delete(ctx, "blob") })

	b, err := store.Open(ctx, "blob")
	require.NoError(t, err)
	defer b.Close()
	got, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
