package convnet

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ErrInputShape is returned by Forward for an input of the wrong length.
var ErrInputShape = errors.New("convnet: input does not match network shape")

// Layer is a LayerSpec plus its trained parameters. Batch normalization is
// expected to be folded into Weights and Bias.
type Layer struct {
	LayerSpec
	Weights []float32
	Bias    []float32
}

// Network is an immutable, loaded feature network. It is safe for
// concurrent use; every Forward call works on its own buffers.
type Network struct {
	arch    Arch
	layers  []Layer
	workers int
}

// NetworkOption configures a Network.
type NetworkOption func(*Network)

// WithWorkers bounds the goroutines used per layer. n <= 0 uses GOMAXPROCS.
func WithWorkers(n int) NetworkOption {
	return func(net *Network) {
		if n <= 0 {
			n = runtime.GOMAXPROCS(0)
		}
		net.workers = n
	}
}

// New assembles a Network after checking every layer against arch.
func New(arch Arch, layers []Layer, optFns ...NetworkOption) (*Network, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	if len(layers) != len(arch.Layers) {
		return nil, fmt.Errorf("%w: %d parameter sets for %d layers", ErrInvalidArch, len(layers), len(arch.Layers))
	}
	for i, l := range layers {
		if l.LayerSpec != arch.Layers[i] {
			return nil, fmt.Errorf("%w: layer %d spec differs from architecture", ErrInvalidArch, i)
		}
		if len(l.Weights) != l.WeightCount() {
			return nil, fmt.Errorf("%w: layer %d has %d weights, want %d", ErrInvalidArch, i, len(l.Weights), l.WeightCount())
		}
		if len(l.Bias) != l.Out {
			return nil, fmt.Errorf("%w: layer %d has %d biases, want %d", ErrInvalidArch, i, len(l.Bias), l.Out)
		}
	}

	net := &Network{
		arch:    arch,
		layers:  layers,
		workers: runtime.GOMAXPROCS(0),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(net)
		}
	}
	return net, nil
}

// Arch returns the network architecture.
func (n *Network) Arch() Arch { return n.arch }

// Name returns the architecture name.
func (n *Network) Name() string { return n.arch.Name }

// Dim returns the embedding length.
func (n *Network) Dim() int { return n.arch.Dim() }

// InputSize returns the square input edge in pixels.
func (n *Network) InputSize() int { return n.arch.InputSize }

// InputChannels returns the number of input planes.
func (n *Network) InputChannels() int { return n.arch.InputChannels }

// Params returns the total number of trained parameters.
func (n *Network) Params() int {
	var p int
	for _, l := range n.layers {
		p += len(l.Weights) + len(l.Bias)
	}
	return p
}

// Forward runs a CHW float32 input through every layer and global-average
// pools the final feature map. Only the pooled vector escapes; intermediate
// feature maps are dropped as soon as the next layer has consumed them.
//
// The result is deterministic: every output value is accumulated in a fixed
// order regardless of how channels are spread over goroutines.
func (n *Network) Forward(ctx context.Context, input []float32) ([]float32, error) {
	size := n.arch.InputSize
	if want := n.arch.InputChannels * size * size; len(input) != want {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrInputShape, len(input), want)
	}

	cur, h, w := input, size, size
	for i := range n.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur, h, w = n.apply(&n.layers[i], cur, h, w)
	}
	return globalAvgPool(cur, n.Dim(), h*w), nil
}

func (n *Network) apply(l *Layer, in []float32, h, w int) ([]float32, int, int) {
	oh, ow := l.outSize(h), l.outSize(w)
	out := make([]float32, l.Out*oh*ow)

	var perChannel func(o int)
	switch l.Kind {
	case KindConv:
		perChannel = func(o int) { convChannel(l, in, out, o, h, w, oh, ow) }
	case KindDepthwise:
		perChannel = func(o int) { depthwiseChannel(l, in, out, o, h, w, oh, ow) }
	case KindPointwise:
		perChannel = func(o int) { pointwiseChannel(l, in, out, o, h*w) }
	}

	n.parallelChannels(l.Out, perChannel)
	return out, oh, ow
}

// parallelChannels runs fn for every output channel, split into contiguous
// ranges over at most n.workers goroutines.
func (n *Network) parallelChannels(channels int, fn func(o int)) {
	if n.workers <= 1 || channels < 2*n.workers {
		for o := 0; o < channels; o++ {
			fn(o)
		}
		return
	}

	chunk := (channels + n.workers - 1) / n.workers
	var g errgroup.Group
	g.SetLimit(n.workers)
	for lo := 0; lo < channels; lo += chunk {
		hi := min(lo+chunk, channels)
		g.Go(func() error {
			for o := lo; o < hi; o++ {
				fn(o)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func convChannel(l *Layer, in, out []float32, o, h, w, oh, ow int) {
	k, s, pad := l.Kernel, l.Stride, l.Kernel/2
	dst := out[o*oh*ow : (o+1)*oh*ow]
	kw := l.Weights[o*l.In*k*k : (o+1)*l.In*k*k]

	for y := 0; y < oh; y++ {
		for x := 0; x < ow; x++ {
			sum := l.Bias[o]
			for c := 0; c < l.In; c++ {
				plane := in[c*h*w : (c+1)*h*w]
				kc := kw[c*k*k : (c+1)*k*k]
				for ky := 0; ky < k; ky++ {
					iy := y*s + ky - pad
					if iy < 0 || iy >= h {
						continue
					}
					row := plane[iy*w : (iy+1)*w]
					for kx := 0; kx < k; kx++ {
						ix := x*s + kx - pad
						if ix < 0 || ix >= w {
							continue
						}
						sum += kc[ky*k+kx] * row[ix]
					}
				}
			}
			dst[y*ow+x] = l.Act.apply(sum)
		}
	}
}

func depthwiseChannel(l *Layer, in, out []float32, c, h, w, oh, ow int) {
	k, s, pad := l.Kernel, l.Stride, l.Kernel/2
	plane := in[c*h*w : (c+1)*h*w]
	dst := out[c*oh*ow : (c+1)*oh*ow]
	kc := l.Weights[c*k*k : (c+1)*k*k]

	for y := 0; y < oh; y++ {
		for x := 0; x < ow; x++ {
			sum := l.Bias[c]
			for ky := 0; ky < k; ky++ {
				iy := y*s + ky - pad
				if iy < 0 || iy >= h {
					continue
				}
				row := plane[iy*w : (iy+1)*w]
				for kx := 0; kx < k; kx++ {
					ix := x*s + kx - pad
					if ix < 0 || ix >= w {
						continue
					}
					sum += kc[ky*k+kx] * row[ix]
				}
			}
			dst[y*ow+x] = l.Act.apply(sum)
		}
	}
}

func pointwiseChannel(l *Layer, in, out []float32, o, hw int) {
	dst := out[o*hw : (o+1)*hw]
	b := l.Bias[o]
	for p := range dst {
		dst[p] = b
	}
	row := l.Weights[o*l.In : (o+1)*l.In]
	for c, wv := range row {
		if wv == 0 {
			continue
		}
		src := in[c*hw : (c+1)*hw]
		for p := range dst {
			dst[p] += wv * src[p]
		}
	}
	for p := range dst {
		dst[p] = l.Act.apply(dst[p])
	}
}

func globalAvgPool(fm []float32, channels, hw int) []float32 {
	out := make([]float32, channels)
	inv := 1 / float64(hw)
	for c := 0; c < channels; c++ {
		var sum float64
		for _, v := range fm[c*hw : (c+1)*hw] {
			sum += float64(v)
		}
		out[c] = float32(sum * inv)
	}
	return out
}
