package convnet

import (
	"errors"
	"fmt"
)

// Kind identifies a layer's convolution type.
type Kind uint8

const (
	// KindConv is a dense k×k convolution across all input channels.
	KindConv Kind = iota + 1
	// KindDepthwise convolves every channel with its own k×k filter.
	KindDepthwise
	// KindPointwise is a 1×1 convolution mixing channels.
	KindPointwise
)

func (k Kind) String() string {
	switch k {
	case KindConv:
		return "conv"
	case KindDepthwise:
		return "depthwise"
	case KindPointwise:
		return "pointwise"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// Activation is applied to a layer's output.
type Activation uint8

const (
	ActNone Activation = iota
	ActReLU
	ActReLU6
)

func (a Activation) apply(v float32) float32 {
	switch a {
	case ActReLU:
		return max(0, v)
	case ActReLU6:
		return max(0, min(6, v))
	default:
		return v
	}
}

// LayerSpec is the shape of one layer. Padding is always "same" (k/2).
type LayerSpec struct {
	Kind   Kind
	In     int
	Out    int
	Kernel int
	Stride int
	Act    Activation
}

// WeightCount returns the number of kernel weights the layer holds.
func (s LayerSpec) WeightCount() int {
	switch s.Kind {
	case KindConv:
		return s.Out * s.In * s.Kernel * s.Kernel
	case KindDepthwise:
		return s.Out * s.Kernel * s.Kernel
	case KindPointwise:
		return s.Out * s.In
	default:
		return 0
	}
}

// FanIn is the number of inputs contributing to one output value.
func (s LayerSpec) FanIn() int {
	switch s.Kind {
	case KindConv:
		return s.In * s.Kernel * s.Kernel
	case KindDepthwise:
		return s.Kernel * s.Kernel
	default:
		return s.In
	}
}

// outSize is the spatial output size for an input of size n.
func (s LayerSpec) outSize(n int) int {
	pad := s.Kernel / 2
	return (n+2*pad-s.Kernel)/s.Stride + 1
}

const (
	maxLayers    = 1024
	maxChannels  = 1 << 16
	maxKernel    = 15
	maxStride    = 8
	maxInputSize = 4096
)

// ErrInvalidArch is wrapped by every architecture validation failure.
var ErrInvalidArch = errors.New("convnet: invalid architecture")

// Arch describes a feed-forward feature network: an input of
// InputChannels×InputSize×InputSize followed by Layers and a global average
// pool. The embedding length is the last layer's output channel count.
type Arch struct {
	Name          string
	InputSize     int
	InputChannels int
	Layers        []LayerSpec
}

// Dim returns the embedding length produced by the architecture.
func (a Arch) Dim() int {
	if len(a.Layers) == 0 {
		return 0
	}
	return a.Layers[len(a.Layers)-1].Out
}

// Validate checks that consecutive layers connect and that every size is
// within sane bounds.
func (a Arch) Validate() error {
	if a.InputSize <= 0 || a.InputSize > maxInputSize {
		return fmt.Errorf("%w: input size %d", ErrInvalidArch, a.InputSize)
	}
	if a.InputChannels <= 0 || a.InputChannels > maxChannels {
		return fmt.Errorf("%w: input channels %d", ErrInvalidArch, a.InputChannels)
	}
	if len(a.Layers) == 0 || len(a.Layers) > maxLayers {
		return fmt.Errorf("%w: %d layers", ErrInvalidArch, len(a.Layers))
	}

	ch, size := a.InputChannels, a.InputSize
	for i, l := range a.Layers {
		if l.In != ch {
			return fmt.Errorf("%w: layer %d expects %d channels, previous layer yields %d", ErrInvalidArch, i, l.In, ch)
		}
		if l.Out <= 0 || l.Out > maxChannels {
			return fmt.Errorf("%w: layer %d output channels %d", ErrInvalidArch, i, l.Out)
		}
		if l.Kernel <= 0 || l.Kernel > maxKernel || l.Kernel%2 == 0 {
			return fmt.Errorf("%w: layer %d kernel %d", ErrInvalidArch, i, l.Kernel)
		}
		if l.Stride <= 0 || l.Stride > maxStride {
			return fmt.Errorf("%w: layer %d stride %d", ErrInvalidArch, i, l.Stride)
		}
		switch l.Kind {
		case KindConv:
		case KindDepthwise:
			if l.In != l.Out {
				return fmt.Errorf("%w: depthwise layer %d maps %d to %d channels", ErrInvalidArch, i, l.In, l.Out)
			}
		case KindPointwise:
			if l.Kernel != 1 || l.Stride != 1 {
				return fmt.Errorf("%w: pointwise layer %d must be 1x1 stride 1", ErrInvalidArch, i)
			}
		default:
			return fmt.Errorf("%w: layer %d kind %v", ErrInvalidArch, i, l.Kind)
		}
		if l.Act > ActReLU6 {
			return fmt.Errorf("%w: layer %d activation %d", ErrInvalidArch, i, l.Act)
		}
		ch = l.Out
		size = l.outSize(size)
		if size <= 0 {
			return fmt.Errorf("%w: layer %d collapses spatial size", ErrInvalidArch, i)
		}
	}
	return nil
}

// MobileNetV1 is the reference feature extractor: a 224×224 RGB input, a
// strided stem and thirteen depthwise-separable blocks ending in 1024
// channels, so embeddings have 1024 components.
func MobileNetV1() Arch {
	layers := []LayerSpec{
		{Kind: KindConv, In: 3, Out: 32, Kernel: 3, Stride: 2, Act: ActReLU6},
	}
	blocks := []struct{ out, stride int }{
		{64, 1}, {128, 2}, {128, 1}, {256, 2}, {256, 1}, {512, 2},
		{512, 1}, {512, 1}, {512, 1}, {512, 1}, {512, 1},
		{1024, 2}, {1024, 1},
	}
	ch := 32
	for _, b := range blocks {
		layers = append(layers,
			LayerSpec{Kind: KindDepthwise, In: ch, Out: ch, Kernel: 3, Stride: b.stride, Act: ActReLU6},
			LayerSpec{Kind: KindPointwise, In: ch, Out: b.out, Kernel: 1, Stride: 1, Act: ActReLU6},
		)
		ch = b.out
	}
	return Arch{
		Name:          "mobilenet_v1_1.0_224",
		InputSize:     224,
		InputChannels: 3,
		Layers:        layers,
	}
}

// Compact is a four-layer depthwise-separable network for small inputs. It
// produces dim-length embeddings and is cheap enough for tests and
// development builds.
func Compact(inputSize, dim int) Arch {
	return Arch{
		Name:          fmt.Sprintf("compact_%d_%d", inputSize, dim),
		InputSize:     inputSize,
		InputChannels: 3,
		Layers: []LayerSpec{
			{Kind: KindConv, In: 3, Out: 8, Kernel: 3, Stride: 2, Act: ActReLU6},
			{Kind: KindDepthwise, In: 8, Out: 8, Kernel: 3, Stride: 1, Act: ActReLU6},
			{Kind: KindPointwise, In: 8, Out: 16, Kernel: 1, Stride: 1, Act: ActReLU6},
			{Kind: KindPointwise, In: 16, Out: dim, Kernel: 1, Stride: 1, Act: ActReLU},
		},
	}
}
