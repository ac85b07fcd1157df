// Package distance provides the vector primitives used by similarity scoring.
//
// Embeddings are stored as float32 but every reduction here accumulates in
// float64, so scores do not drift with vector length or summation order.
//
// # Usage
//
//	dot := distance.Dot(a, b)
//	cos, ok := distance.Cosine(a, b)
package distance
