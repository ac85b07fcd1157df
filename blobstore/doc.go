// Package blobstore abstracts where model weight files live.
//
// A BlobStore hands out whole blobs as streams; the model loader decodes the
// weight file straight from the stream. Implementations must be safe for
// concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: a directory on the local file system
//   - MemoryStore: in-process map, for tests
//   - CachingStore: keeps a local copy of blobs read from a remote store
//   - s3.Store: Amazon S3 with multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
package blobstore
