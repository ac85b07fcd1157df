package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// Checkerboard renders a w×h board with square cells of the given size.
func Checkerboard(w, h, cell int, a, b color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if ((x/cell)+(y/cell))%2 == 0 {
				img.Set(x, y, a)
			} else {
				img.Set(x, y, b)
			}
		}
	}
	return img
}

// Gradient renders a horizontal gradient from c0 to c1.
func Gradient(w, h int, c0, c1 color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		t := float64(x) / float64(max(1, w-1))
		c := color.RGBA{
			R: lerp(c0.R, c1.R, t),
			G: lerp(c0.G, c1.G, t),
			B: lerp(c0.B, c1.B, t),
			A: 0xff,
		}
		for y := 0; y < h; y++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}

// PNG encodes img as PNG.
func PNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// JPEG encodes img as JPEG with quality 90.
func JPEG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// ImageServer is an httptest server that serves fixed bodies by path.
//
// Paths not present in the map answer 404. Stall makes every request block
// until the client gives up, which is how timeouts are simulated.
type ImageServer struct {
	*httptest.Server

	hits  atomic.Int64
	stall atomic.Bool
}

// NewImageServer starts a server and registers its shutdown with t.Cleanup.
func NewImageServer(t testing.TB, bodies map[string][]byte) *ImageServer {
	t.Helper()

	s := &ImageServer{}
	done := make(chan struct{})
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		if s.stall.Load() {
			select {
			case <-r.Context().Done():
			case <-done:
			case <-time.After(time.Minute):
			}
			return
		}
		switch r.URL.Path {
		case "/private":
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(func() {
		close(done)
		s.Close()
	})
	return s
}

// Stall toggles stalled responses.
func (s *ImageServer) Stall(on bool) { s.stall.Store(on) }

// Hits returns the number of requests served so far.
func (s *ImageServer) Hits() int64 { return s.hits.Load() }

// URLFor returns the absolute URL for path.
func (s *ImageServer) URLFor(path string) string { return s.Server.URL + path }
