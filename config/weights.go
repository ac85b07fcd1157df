package config

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/lostboard/vismatch/blobstore"
	blobminio "github.com/lostboard/vismatch/blobstore/minio"
	blobs3 "github.com/lostboard/vismatch/blobstore/s3"
	"github.com/lostboard/vismatch/model"
)

// WeightsSource is a parsed weight location.
type WeightsSource struct {
	// Scheme is "file", "s3" or "minio"; empty when no weights are set.
	Scheme string
	// Bucket is set for s3 and minio; for files it is the directory.
	Bucket string
	// Name is the object key or file name.
	Name string
}

// ParseWeights parses a weight location: a file path, s3://bucket/key or
// minio://bucket/key.
func ParseWeights(raw string) (WeightsSource, error) {
	if raw == "" {
		return WeightsSource{}, nil
	}
	if !strings.Contains(raw, "://") {
		return WeightsSource{Scheme: "file", Bucket: filepath.Dir(raw), Name: filepath.Base(raw)}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return WeightsSource{}, fmt.Errorf("config: %sWEIGHTS: %w", Prefix, err)
	}
	key := strings.TrimPrefix(path.Clean("/"+u.Path), "/")
	switch u.Scheme {
	case "s3", "minio":
		if u.Host == "" || key == "" {
			return WeightsSource{}, fmt.Errorf("config: %sWEIGHTS %q needs a bucket and a key", Prefix, raw)
		}
		return WeightsSource{Scheme: u.Scheme, Bucket: u.Host, Name: key}, nil
	case "file":
		p := filepath.FromSlash(u.Path)
		return WeightsSource{Scheme: "file", Bucket: filepath.Dir(p), Name: filepath.Base(p)}, nil
	default:
		return WeightsSource{}, fmt.Errorf("config: unsupported %sWEIGHTS scheme %q", Prefix, u.Scheme)
	}
}

// WeightsStore opens the blob store that holds the weight file and returns
// it with the blob name. ok is false when no weights are configured.
func (c *Config) WeightsStore(ctx context.Context) (store blobstore.BlobStore, name string, ok bool, err error) {
	src, err := ParseWeights(c.Model.Weights)
	if err != nil || src.Scheme == "" {
		return nil, "", false, err
	}

	switch src.Scheme {
	case "file":
		return blobstore.NewLocalStore(src.Bucket), src.Name, true, nil
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, "", false, fmt.Errorf("config: load aws config: %w", err)
		}
		store = blobs3.NewStore(awss3.NewFromConfig(awsCfg), src.Bucket, "")
	case "minio":
		client, err := minio.New(c.Minio.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
			Secure: c.Minio.UseSSL,
		})
		if err != nil {
			return nil, "", false, fmt.Errorf("config: minio client: %w", err)
		}
		store = blobminio.NewStore(client, src.Bucket, "")
	}

	if c.Model.CacheDir != "" {
		store = blobstore.NewCachingStore(store, blobstore.NewLocalStore(filepath.Join(c.Model.CacheDir, src.Scheme, src.Bucket)))
	}
	return store, src.Name, true, nil
}

// WeightsLoader returns a model.Loader for the configured weights, or nil
// when none are configured.
func (c *Config) WeightsLoader(ctx context.Context) (model.Loader, error) {
	store, name, ok, err := c.WeightsStore(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return model.FromBlob(store, name), nil
}
