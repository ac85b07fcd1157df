// Package similarity turns the cosine of two embeddings into the integer
// percentage shown next to a match.
package similarity

import (
	"fmt"
	"math"

	"github.com/lostboard/vismatch/distance"
	"github.com/lostboard/vismatch/embedding"
)

const (
	// Min is the lowest score, reached by exactly opposite vectors and by any
	// zero-magnitude input.
	Min = 0
	// Max is the score of two vectors pointing in the same direction.
	Max = 100
)

// ErrDimensionMismatch indicates that two embeddings of different length were
// compared. This is a data-integrity bug, not a runtime fluke: embeddings are
// validated when they are written.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("similarity: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Score returns round((cos(a, b) + 1) / 2 * 100) in [0, 100].
//
// Either vector having zero magnitude yields 0; so does a non-finite cosine.
// Embeddings of different length yield *ErrDimensionMismatch.
func Score(a, b embedding.Embedding) (int, error) {
	if len(a) != len(b) {
		return 0, &ErrDimensionMismatch{Expected: len(a), Actual: len(b)}
	}
	cos, ok := distance.Cosine(a, b)
	if !ok {
		return Min, nil
	}
	return FromCosine(cos), nil
}

// FromCosine maps a cosine in [-1, 1] onto the integer percentage scale.
func FromCosine(cos float64) int {
	if math.IsNaN(cos) || math.IsInf(cos, 0) {
		return Min
	}
	s := int(math.Round((cos + 1) / 2 * 100))
	return max(Min, min(Max, s))
}
