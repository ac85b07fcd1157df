// Package minio provides a BlobStore implementation using the MinIO client.
//
// It works with MinIO and any other S3-compatible service (Ceph, Garage,
// SeaweedFS) and needs no AWS dependencies, which suits self-hosted
// deployments that keep model weights next to the application.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	store := minioblob.NewStore(client, "models", "")
package minio
