// Package s3 provides an S3 implementation of the blobstore.BlobStore
// interface for publishing and loading model weight files.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "models/")
//	mgr := model.NewManager(model.FromBlob(store, "mobilenet_v1.vmnw"))
//
// Uploads go through the SDK upload manager, which switches to multipart
// uploads for blobs larger than UploadConfig.PartSize.
package s3
