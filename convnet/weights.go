package convnet

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Weight file layout (little endian):
//
//	magic "VMNW" | version u16 | compression u8 | reserved u8
//	-- body, compressed as a single stream --
//	input size u32 | input channels u32 | name len u16 | name
//	layer count u32
//	per layer: kind u8 | act u8 | kernel u8 | stride u8 | in u32 | out u32
//	           weights [WeightCount]f32 | bias [out]f32
const (
	weightsMagic   = "VMNW"
	weightsVersion = 1
	maxNameLen     = 256
)

// Compression selects how the body of a weight file is stored.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}

// ParseCompression is the inverse of Compression.String.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("convnet: unknown compression %q", s)
	}
}

// ErrBadWeights is wrapped by every decoding failure caused by file content.
var ErrBadWeights = errors.New("convnet: malformed weight file")

// Encode writes net to w in the weight file format.
func Encode(w io.Writer, net *Network, comp Compression) error {
	var hdr [8]byte
	copy(hdr[:4], weightsMagic)
	binary.LittleEndian.PutUint16(hdr[4:6], weightsVersion)
	hdr[6] = byte(comp)
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("convnet: write header: %w", err)
	}

	var (
		body   io.Writer
		closer io.Closer
	)
	switch comp {
	case CompressionNone:
		body = w
	case CompressionZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return fmt.Errorf("convnet: zstd writer: %w", err)
		}
		body, closer = enc, enc
	case CompressionLZ4:
		zw := lz4.NewWriter(w)
		body, closer = zw, zw
	default:
		return fmt.Errorf("convnet: unknown compression %d", comp)
	}

	bw := bufio.NewWriterSize(body, 1<<16)
	if err := encodeBody(bw, net); err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("convnet: flush body: %w", err)
	}
	if closer != nil {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("convnet: close %s stream: %w", comp, err)
		}
	}
	return nil
}

func encodeBody(w io.Writer, net *Network) error {
	a := net.arch
	if len(a.Name) > maxNameLen {
		return fmt.Errorf("convnet: name longer than %d bytes", maxNameLen)
	}
	le := binary.LittleEndian
	put := func(v any) error { return binary.Write(w, le, v) }

	if err := put([]uint32{uint32(a.InputSize), uint32(a.InputChannels)}); err != nil {
		return err
	}
	if err := put(uint16(len(a.Name))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, a.Name); err != nil {
		return err
	}
	if err := put(uint32(len(net.layers))); err != nil {
		return err
	}
	for _, l := range net.layers {
		if err := put([]uint8{uint8(l.Kind), uint8(l.Act), uint8(l.Kernel), uint8(l.Stride)}); err != nil {
			return err
		}
		if err := put([]uint32{uint32(l.In), uint32(l.Out)}); err != nil {
			return err
		}
		if err := put(l.Weights); err != nil {
			return err
		}
		if err := put(l.Bias); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads a weight file and returns the assembled network.
func Decode(r io.Reader, optFns ...NetworkOption) (*Network, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrBadWeights, err)
	}
	if string(hdr[:4]) != weightsMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadWeights, hdr[:4])
	}
	if v := binary.LittleEndian.Uint16(hdr[4:6]); v != weightsVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadWeights, v)
	}

	var body io.Reader
	switch comp := Compression(hdr[6]); comp {
	case CompressionNone:
		body = r
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("convnet: zstd reader: %w", err)
		}
		defer dec.Close()
		body = dec
	case CompressionLZ4:
		body = lz4.NewReader(r)
	default:
		return nil, fmt.Errorf("%w: unknown compression %d", ErrBadWeights, comp)
	}

	arch, layers, err := decodeBody(bufio.NewReaderSize(body, 1<<16))
	if err != nil {
		return nil, err
	}
	return New(arch, layers, optFns...)
}

func decodeBody(r io.Reader) (Arch, []Layer, error) {
	le := binary.LittleEndian
	get := func(what string, v any) error {
		if err := binary.Read(r, le, v); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrBadWeights, what, err)
		}
		return nil
	}

	var dims [2]uint32
	if err := get("input shape", &dims); err != nil {
		return Arch{}, nil, err
	}
	var nameLen uint16
	if err := get("name length", &nameLen); err != nil {
		return Arch{}, nil, err
	}
	if nameLen > maxNameLen {
		return Arch{}, nil, fmt.Errorf("%w: name length %d", ErrBadWeights, nameLen)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return Arch{}, nil, fmt.Errorf("%w: name: %w", ErrBadWeights, err)
	}
	var count uint32
	if err := get("layer count", &count); err != nil {
		return Arch{}, nil, err
	}
	if count == 0 || count > maxLayers {
		return Arch{}, nil, fmt.Errorf("%w: layer count %d", ErrBadWeights, count)
	}

	arch := Arch{
		Name:          string(name),
		InputSize:     int(dims[0]),
		InputChannels: int(dims[1]),
		Layers:        make([]LayerSpec, 0, count),
	}
	layers := make([]Layer, 0, count)
	for i := uint32(0); i < count; i++ {
		var small [4]uint8
		if err := get("layer header", &small); err != nil {
			return Arch{}, nil, err
		}
		var io2 [2]uint32
		if err := get("layer channels", &io2); err != nil {
			return Arch{}, nil, err
		}
		spec := LayerSpec{
			Kind:   Kind(small[0]),
			Act:    Activation(small[1]),
			Kernel: int(small[2]),
			Stride: int(small[3]),
			In:     int(io2[0]),
			Out:    int(io2[1]),
		}
		// Bound sizes before allocating anything a corrupt file asked for.
		if spec.In <= 0 || spec.In > maxChannels || spec.Out <= 0 || spec.Out > maxChannels || spec.Kernel > maxKernel {
			return Arch{}, nil, fmt.Errorf("%w: layer %d shape %+v", ErrBadWeights, i, spec)
		}
		l := Layer{
			LayerSpec: spec,
			Weights:   make([]float32, spec.WeightCount()),
			Bias:      make([]float32, spec.Out),
		}
		if err := get("weights", l.Weights); err != nil {
			return Arch{}, nil, err
		}
		if err := get("bias", l.Bias); err != nil {
			return Arch{}, nil, err
		}
		arch.Layers = append(arch.Layers, spec)
		layers = append(layers, l)
	}
	return arch, layers, nil
}
