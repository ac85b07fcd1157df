// Package imageload fetches a photo over HTTP and decodes it into pixels.
//
// Every Load is bounded by a hard timeout and performs no retries. JPEG,
// PNG, GIF, WebP and BMP are supported.
package imageload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/lostboard/vismatch/resource"
)

const (
	// DefaultTimeout bounds one fetch-and-decode.
	DefaultTimeout = 15 * time.Second
	// DefaultMaxBytes caps the encoded body size.
	DefaultMaxBytes = 20 << 20
)

// Decoded is a decoded photo. It is owned by a single extraction and must
// be released as soon as the embedding has been computed.
type Decoded struct {
	Image  image.Image
	Format string
	// Reserved is the decode memory held against the resource controller.
	Reserved int64

	once    sync.Once
	release func()
}

// Release drops the pixel buffer and returns its memory reservation. It is
// safe to call more than once.
func (d *Decoded) Release() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.Image = nil
		if d.release != nil {
			d.release()
		}
	})
}

// Loader fetches and decodes images. It is safe for concurrent use.
type Loader struct {
	client    *http.Client
	timeout   time.Duration
	maxBytes  int64
	rc        *resource.Controller
	logger    *slog.Logger
	userAgent string
}

// Option configures a Loader.
type Option func(*Loader)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithMaxBytes overrides DefaultMaxBytes. Non-positive values are ignored.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithHTTPClient sets the client used for fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		if c != nil {
			l.client = c
		}
	}
}

// WithResourceController applies fetch rate, throughput and decode memory
// limits.
func WithResourceController(rc *resource.Controller) Option {
	return func(l *Loader) { l.rc = rc }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every fetch.
func WithUserAgent(ua string) Option {
	return func(l *Loader) { l.userAgent = ua }
}

// New returns a Loader with the given options applied.
func New(optFns ...Option) *Loader {
	l := &Loader{
		client:    http.DefaultClient,
		timeout:   DefaultTimeout,
		maxBytes:  DefaultMaxBytes,
		logger:    slog.New(slog.DiscardHandler),
		userAgent: "vismatch/1",
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(l)
		}
	}
	return l
}

// Timeout returns the configured hard timeout.
func (l *Loader) Timeout() time.Duration { return l.timeout }

// Load fetches rawURL and decodes it.
//
// Errors are ErrTimeout, *FetchError or *DecodeError. If ctx itself ends
// first, its error is returned unchanged. On any error nothing stays
// reserved and no partial buffer is kept.
func (l *Loader) Load(ctx context.Context, rawURL string) (*Decoded, error) {
	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	d, err := l.load(tctx, rawURL)
	if err != nil {
		err = l.classify(ctx, tctx, err)
		l.logger.WarnContext(ctx, "image load failed",
			slog.String("url", rawURL),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err),
		)
		return nil, err
	}

	l.logger.DebugContext(ctx, "image loaded",
		slog.String("url", rawURL),
		slog.String("format", d.Format),
		slog.Int("width", d.Image.Bounds().Dx()),
		slog.Int("height", d.Image.Bounds().Dy()),
		slog.Duration("duration", time.Since(start)),
	)
	return d, nil
}

// classify maps deadline errors of the loader's own timeout to ErrTimeout
// and passes the caller's cancellation through.
func (l *Loader) classify(parent, tctx context.Context, err error) error {
	if perr := parent.Err(); perr != nil {
		return perr
	}
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, l.timeout)
	}
	return err
}

func (l *Loader) load(ctx context.Context, rawURL string) (*Decoded, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		if err == nil {
			err = errors.New("not an absolute http(s) URL")
		}
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	if err := l.rc.WaitFetch(ctx); err != nil {
		return nil, err
	}

	data, err := l.fetch(ctx, u.String())
	if err != nil {
		return nil, err
	}
	return l.decode(ctx, rawURL, data)
}

func (l *Loader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "image/*")
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}
	if resp.ContentLength > l.maxBytes {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("%w: content length %d", ErrTooLarge, resp.ContentLength)}
	}

	body := io.LimitReader(resource.NewRateLimitedReader(ctx, resp.Body, l.rc), l.maxBytes+1)
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if int64(len(data)) > l.maxBytes {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("%w: more than %d bytes", ErrTooLarge, l.maxBytes)}
	}
	return data, nil
}

func (l *Loader) decode(ctx context.Context, rawURL string, data []byte) (*Decoded, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{URL: rawURL, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeError{URL: rawURL, Format: format, Err: fmt.Errorf("empty image %dx%d", cfg.Width, cfg.Height)}
	}

	need := int64(cfg.Width) * int64(cfg.Height) * 4
	if err := l.rc.AcquireMemory(ctx, need); err != nil {
		var be *resource.ErrBudgetExceeded
		if errors.As(err, &be) {
			return nil, &DecodeError{URL: rawURL, Format: format, Err: err}
		}
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		l.rc.ReleaseMemory(need)
		return nil, &DecodeError{URL: rawURL, Format: format, Err: err}
	}
	if err := ctx.Err(); err != nil {
		l.rc.ReleaseMemory(need)
		return nil, err
	}

	return &Decoded{
		Image:    img,
		Format:   format,
		Reserved: need,
		release:  func() { l.rc.ReleaseMemory(need) },
	}, nil
}
