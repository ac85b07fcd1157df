// Package extractor turns a decoded photo into an embedding by running it
// through the feature network up to the pooled feature layer.
package extractor

import (
	"context"
	"image"
	"log/slog"
	"time"

	"golang.org/x/image/draw"

	"github.com/lostboard/vismatch/embedding"
	"github.com/lostboard/vismatch/model"
	"github.com/lostboard/vismatch/resource"
)

// Extractor computes embeddings. It is safe for concurrent use.
type Extractor struct {
	models *model.Manager
	rc     *resource.Controller
	logger *slog.Logger
	scaler draw.Scaler
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithResourceController bounds concurrent forward passes.
func WithResourceController(rc *resource.Controller) Option {
	return func(e *Extractor) { e.rc = rc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithScaler replaces the bilinear resampler.
func WithScaler(s draw.Scaler) Option {
	return func(e *Extractor) {
		if s != nil {
			e.scaler = s
		}
	}
}

// New returns an Extractor that takes its network from models.
func New(models *model.Manager, optFns ...Option) *Extractor {
	e := &Extractor{
		models: models,
		logger: slog.New(slog.DiscardHandler),
		scaler: draw.BiLinear,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(e)
		}
	}
	return e
}

// Extract ensures the model is ready, then resizes img to the network input,
// normalizes it and returns the pooled feature vector. Only the vector
// outlives the call.
func (e *Extractor) Extract(ctx context.Context, img image.Image) (embedding.Embedding, error) {
	net, err := e.models.Network(ctx)
	if err != nil {
		return nil, err
	}

	if err := e.rc.AcquireExtraction(ctx); err != nil {
		return nil, err
	}
	defer e.rc.ReleaseExtraction()

	start := time.Now()
	input := Preprocess(img, net.InputSize(), e.scaler)
	out, err := net.Forward(ctx, input)
	if err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "embedding extracted",
		slog.Int("dim", len(out)),
		slog.Duration("duration", time.Since(start)),
	)
	return embedding.Embedding(out), nil
}

// Preprocess scales img to size×size with s and returns it as a CHW float32
// tensor with RGB values mapped from [0,255] to [-1,1]. Alpha is dropped.
func Preprocess(img image.Image, size int, s draw.Scaler) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	s.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := size * size
	out := make([]float32, 3*plane)
	for i := 0; i < plane; i++ {
		px := dst.Pix[i*4 : i*4+3 : i*4+3]
		out[i] = float32(px[0])/127.5 - 1
		out[plane+i] = float32(px[1])/127.5 - 1
		out[2*plane+i] = float32(px[2])/127.5 - 1
	}
	return out
}
