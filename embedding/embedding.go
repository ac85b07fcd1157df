// Package embedding defines the fixed-length image fingerprint produced by the
// feature extractor and compared by the similarity scorer.
//
// An Embedding is a plain []float32. It is deliberately not tied to any tensor
// library: the only operations the matcher needs are elementwise multiply,
// sum and square root. Persisted embeddings are ordered lists of numbers and
// must round-trip exactly; float32 values formatted with the shortest
// 32-bit representation parse back to the identical bit pattern.
package embedding

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// ReferenceDim is the embedding length of the reference network
// (convnet.MobileNetV1).
const ReferenceDim = 1024

// ErrEmpty is returned by Validate for a nil or zero-length embedding.
var ErrEmpty = errors.New("embedding: empty")

// ErrInvalidLength indicates an embedding whose length differs from the
// dimension the caller expects.
type ErrInvalidLength struct {
	Expected int
	Actual   int
}

func (e *ErrInvalidLength) Error() string {
	return fmt.Sprintf("embedding: invalid length: expected %d, got %d", e.Expected, e.Actual)
}

// ErrNonFinite indicates a NaN or infinite component.
type ErrNonFinite struct {
	Index int
	Value float32
}

func (e *ErrNonFinite) Error() string {
	return fmt.Sprintf("embedding: non-finite value %v at index %d", e.Value, e.Index)
}

// Embedding is an ordered, fixed-length feature vector.
type Embedding []float32

// Dim returns the number of components.
func (e Embedding) Dim() int { return len(e) }

// Present reports whether the embedding carries any data. Items whose
// extraction failed are stored with an absent embedding.
func (e Embedding) Present() bool { return len(e) > 0 }

// IsZero reports whether every component is zero (including the empty case).
func (e Embedding) IsZero() bool {
	for _, v := range e {
		if v != 0 {
			return false
		}
	}
	return true
}

// Clone returns a copy that does not share storage with e.
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	return slices.Clone(e)
}

// Equal reports bit-for-bit equality.
func (e Embedding) Equal(other Embedding) bool {
	if len(e) != len(other) {
		return false
	}
	for i := range e {
		if math.Float32bits(e[i]) != math.Float32bits(other[i]) {
			return false
		}
	}
	return true
}

// Validate checks the write-time invariants: non-empty, of length dim (when
// dim > 0) and free of NaN/Inf. Validating at write time is what keeps
// dimension mismatches out of the ranking path.
func (e Embedding) Validate(dim int) error {
	if len(e) == 0 {
		return ErrEmpty
	}
	if dim > 0 && len(e) != dim {
		return &ErrInvalidLength{Expected: dim, Actual: len(e)}
	}
	for i, v := range e {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &ErrNonFinite{Index: i, Value: v}
		}
	}
	return nil
}

// FromFloat64 converts a float64 slice, e.g. decoded from a document store
// that only knows double precision numbers.
func FromFloat64(src []float64) Embedding {
	if src == nil {
		return nil
	}
	out := make(Embedding, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out
}

// FormatComponent renders a single component with the shortest representation
// that parses back to the same float32.
func FormatComponent(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

// ParseComponent is the inverse of FormatComponent.
func ParseComponent(s string) (float32, error) {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("embedding: parse component %q: %w", s, err)
	}
	return float32(f), nil
}
