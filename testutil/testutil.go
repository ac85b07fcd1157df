package testutil

import (
	"math"
	"math/rand"
	"sync"

	"github.com/lostboard/vismatch/embedding"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// Embedding returns a vector with components in [-1, 1).
func (r *RNG) Embedding(dim int) embedding.Embedding {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := make(embedding.Embedding, dim)
	for i := range e {
		e[i] = r.rand.Float32()*2 - 1
	}
	return e
}

// Embeddings returns num vectors of length dim sharing one backing array.
func (r *RNG) Embeddings(num, dim int) []embedding.Embedding {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	out := make([]embedding.Embedding, num)
	for i := range num {
		vec := data[i*dim : (i+1)*dim : (i+1)*dim]
		for j := range vec {
			vec[j] = r.rand.Float32()*2 - 1
		}
		out[i] = vec
	}
	return out
}

// UnitEmbedding generates a single L2-normalized random vector.
// Uses a Gaussian distribution for uniform coverage of the sphere.
func (r *RNG) UnitEmbedding(dim int) embedding.Embedding {
	r.mu.Lock()
	defer r.mu.Unlock()

	vec := make(embedding.Embedding, dim)
	var norm float64
	for j := range vec {
		v := r.rand.NormFloat64()
		vec[j] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		norm = 1
	}

	inv := 1.0 / math.Sqrt(norm)
	for j := range vec {
		vec[j] = float32(float64(vec[j]) * inv)
	}
	return vec
}

// Perturb returns a copy of e with Gaussian noise of the given spread added to
// every component. Small spreads produce near-duplicates.
func (r *RNG) Perturb(e embedding.Embedding, spread float32) embedding.Embedding {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(embedding.Embedding, len(e))
	for i, v := range e {
		out[i] = v + float32(r.rand.NormFloat64())*spread
	}
	return out
}

// FillGaussian fills dst with values from a standard normal distribution.
func (r *RNG) FillGaussian(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = float32(r.rand.NormFloat64())
	}
}
