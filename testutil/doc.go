// Package testutil provides testing utilities for vismatch.
//
// This package is intended for use in tests only. It provides a seeded,
// goroutine-safe RNG for reproducible embeddings, synthetic photos and a
// small HTTP image server that can simulate slow or private resources.
//
// # Random Embeddings
//
//	rng := testutil.NewRNG(seed)
//	e := rng.Embedding(1024)        // uniform [-1, 1)
//	u := rng.UnitEmbedding(1024)    // on the unit hypersphere
//
// # Photos
//
//	img := testutil.Checkerboard(64, 64, 8, color.White, color.Black)
//	srv := testutil.NewImageServer(t, map[string][]byte{"/a.png": testutil.PNG(t, img)})
package testutil
