package convnet

import (
	"math"
	"math/rand/v2"
)

// Random builds a network for arch with He-initialized weights drawn from a
// PCG stream seeded with seed. The same arch and seed always yield the same
// parameters, which makes it useful for tests and for development without a
// pretrained weight file.
func Random(arch Arch, seed uint64, optFns ...NetworkOption) (*Network, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	layers := make([]Layer, len(arch.Layers))
	for i, spec := range arch.Layers {
		std := math.Sqrt(2 / float64(spec.FanIn()))
		w := make([]float32, spec.WeightCount())
		for j := range w {
			w[j] = float32(rng.NormFloat64() * std)
		}
		b := make([]float32, spec.Out)
		for j := range b {
			b[j] = float32(rng.NormFloat64() * 0.01)
		}
		layers[i] = Layer{LayerSpec: spec, Weights: w, Bias: b}
	}
	return New(arch, layers, optFns...)
}
