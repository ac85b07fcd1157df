// Package vismatch matches lost and found posts by how their photos look.
//
// A photo is fetched, decoded and run through a convolutional feature network
// whose pooled output is a fixed-length embedding. Embeddings are stored with
// the post. When a post is viewed, its embedding is compared with every post
// of the opposite type and the closest few are reported.
//
// # Quick Start
//
//	ctx := context.Background()
//	m := vismatch.New(
//	    vismatch.WithWeights(blobstore.NewLocalStore("./models"), "mobilenet.vmnw"),
//	    vismatch.WithLogger(vismatch.NewTextLogger(slog.LevelInfo)),
//	)
//
//	// Optional: load the network before the first request.
//	if err := m.EnsureModelReady(ctx); err != nil {
//	    log.Printf("model not ready yet: %v", err)
//	}
//
//	emb, err := m.ExtractEmbedding(ctx, photoURL)
//	if err != nil && vismatch.Recoverable(err) {
//	    // Store the post without an embedding.
//	}
//
//	outcome := m.FindMatches(post, allPosts)
//	for _, match := range outcome.Matches {
//	    fmt.Println(match.Title, match.Similarity)
//	}
//
// # Similarity
//
// Similarity is the cosine similarity of two embeddings mapped onto 0..100:
// round((cos+1)/2*100). Identical directions score 100, orthogonal vectors
// 50 and opposite vectors 0. An all-zero embedding scores 0 against anything.
//
// # Matching
//
// By default only candidates scoring strictly above 40 are reported, at most
// 3 of them, best first. Candidates without an embedding never match and
// candidates whose embedding length differs from the query are skipped.
//
// # Errors
//
// Failures are reported as *Error values carrying an ErrorKind. Use
// errors.Is with the Err* sentinels or KindOf to branch on the kind. Image
// and model failures are recoverable: the post can still be stored, just
// without an embedding.
//
// # Process-wide Matcher
//
// Default returns a Matcher configured from VISMATCH_* environment variables
// (see package config). It is created on first use and shared by every
// caller, so the network is loaded at most once per process.
package vismatch
