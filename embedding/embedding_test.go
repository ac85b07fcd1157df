package embedding

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		e       Embedding
		dim     int
		wantErr any
	}{
		{"Valid", Embedding{1, 2, 3}, 3, nil},
		{"AnyDim", Embedding{1, 2}, 0, nil},
		{"Empty", nil, 3, ErrEmpty},
		{"WrongLength", Embedding{1, 2}, 3, &ErrInvalidLength{}},
		{"NaN", Embedding{1, float32(math.NaN()), 3}, 3, &ErrNonFinite{}},
		{"Inf", Embedding{float32(math.Inf(1))}, 1, &ErrNonFinite{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.e.Validate(tt.dim)
			switch want := tt.wantErr.(type) {
			case nil:
				assert.NoError(t, err)
			case error:
				if want == ErrEmpty {
					assert.ErrorIs(t, err, ErrEmpty)
					return
				}
				assert.IsType(t, want, err)
			}
		})
	}
}

func TestInvalidLengthMessage(t *testing.T) {
	err := Embedding{1}.Validate(4)
	var il *ErrInvalidLength
	require.ErrorAs(t, err, &il)
	assert.Equal(t, 4, il.Expected)
	assert.Equal(t, 1, il.Actual)
}

func TestPresentAndZero(t *testing.T) {
	assert.False(t, Embedding(nil).Present())
	assert.False(t, Embedding{}.Present())
	assert.True(t, Embedding{0}.Present())

	assert.True(t, Embedding{0, 0}.IsZero())
	assert.False(t, Embedding{0, 1e-30}.IsZero())
}

func TestCloneDoesNotAlias(t *testing.T) {
	e := Embedding{1, 2, 3}
	c := e.Clone()
	c[0] = 42
	assert.Equal(t, float32(1), e[0])
	assert.Nil(t, Embedding(nil).Clone())
}

func TestJSONRoundTripIsExact(t *testing.T) {
	e := Embedding{0.1, 1.0 / 3.0, -2.5e-38, 3.4028235e38, 1e-45, 0}

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var back Embedding
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, e.Equal(back), "round trip changed bits: %v -> %v", e, back)
}

func TestComponentRoundTrip(t *testing.T) {
	for _, v := range []float32{0, 0.1, -7.25, 1.0 / 3.0, math.MaxFloat32, math.SmallestNonzeroFloat32} {
		s := FormatComponent(v)
		got, err := ParseComponent(s)
		require.NoError(t, err)
		assert.Equal(t, math.Float32bits(v), math.Float32bits(got), s)
	}

	_, err := ParseComponent("nope")
	assert.Error(t, err)
}

func TestFromFloat64(t *testing.T) {
	assert.Nil(t, FromFloat64(nil))
	assert.Equal(t, Embedding{1, 0.5}, FromFloat64([]float64{1, 0.5}))
}
