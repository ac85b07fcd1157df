package similarity

import (
	"math"
	"testing"

	"github.com/lostboard/vismatch/embedding"
	"github.com/lostboard/vismatch/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		a, b embedding.Embedding
		want int
	}{
		{"Identical", embedding.Embedding{1, 2, 3}, embedding.Embedding{1, 2, 3}, 100},
		{"SameDirection", embedding.Embedding{1, 0, 0}, embedding.Embedding{5, 0, 0}, 100},
		{"Opposite", embedding.Embedding{1, 2, 3}, embedding.Embedding{-1, -2, -3}, 0},
		{"Orthogonal", embedding.Embedding{1, 0, 0}, embedding.Embedding{0, 1, 0}, 50},
		{"Diagonal", embedding.Embedding{1, 0}, embedding.Embedding{1, 1}, 85},
		{"ZeroLeft", embedding.Embedding{0, 0, 0}, embedding.Embedding{1, 2, 3}, 0},
		{"ZeroRight", embedding.Embedding{1, 2, 3}, embedding.Embedding{0, 0, 0}, 0},
		{"BothZero", embedding.Embedding{0, 0}, embedding.Embedding{0, 0}, 0},
		{"BothEmpty", embedding.Embedding{}, embedding.Embedding{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Score(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScoreDimensionMismatch(t *testing.T) {
	_, err := Score(embedding.Embedding{1, 2, 3}, embedding.Embedding{1, 2})
	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 2, dm.Actual)
	assert.Contains(t, err.Error(), "expected 3, got 2")
}

func TestScoreBoundsRandom(t *testing.T) {
	rng := testutil.NewRNG(4711)

	for i := 0; i < 200; i++ {
		a := rng.Embedding(64)
		b := rng.Embedding(64)

		s, err := Score(a, b)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, s, Min)
		assert.LessOrEqual(t, s, Max)

		self, err := Score(a, a)
		require.NoError(t, err)
		assert.Equal(t, Max, self)

		neg := make(embedding.Embedding, len(a))
		for j := range a {
			neg[j] = -a[j]
		}
		opp, err := Score(a, neg)
		require.NoError(t, err)
		assert.Equal(t, Min, opp)
	}
}

func TestScoreIsSymmetric(t *testing.T) {
	rng := testutil.NewRNG(7)
	a, b := rng.Embedding(32), rng.Embedding(32)

	ab, err := Score(a, b)
	require.NoError(t, err)
	ba, err := Score(b, a)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
}

func TestFromCosine(t *testing.T) {
	assert.Equal(t, 100, FromCosine(1))
	assert.Equal(t, 0, FromCosine(-1))
	assert.Equal(t, 50, FromCosine(0))
	assert.Equal(t, 100, FromCosine(1.0000001))
	assert.Equal(t, 0, FromCosine(-1.0000001))
	assert.Equal(t, 0, FromCosine(math.NaN()))
	assert.Equal(t, 0, FromCosine(math.Inf(1)))
}
