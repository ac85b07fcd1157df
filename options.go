package vismatch

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lostboard/vismatch/blobstore"
	"github.com/lostboard/vismatch/convnet"
	"github.com/lostboard/vismatch/model"
	"github.com/lostboard/vismatch/ranker"
	"github.com/lostboard/vismatch/resource"
)

// DevSeed seeds the development network used when no weights are configured.
const DevSeed = 0x76697321

type options struct {
	loader           model.Loader
	metricsCollector MetricsCollector
	logger           *Logger
	fetchTimeout     time.Duration
	maxImageBytes    int64
	httpClient       *http.Client
	resources        *resource.Controller
	threshold        int
	limit            int
	tieBreak         ranker.Comparator
	parallelism      int
}

// Option configures a Matcher.
type Option func(*options)

// WithModelLoader sets how the feature network is loaded. Without it the
// Matcher uses a MobileNetV1 with deterministic random weights, which is
// only useful for development.
func WithModelLoader(load model.Loader) Option {
	return func(o *options) {
		o.loader = load
	}
}

// WithWeights loads the network from the weight file name in store.
//
// Example with a local directory:
//
//	m := vismatch.New(vismatch.WithWeights(blobstore.NewLocalStore("./models"), "mobilenet.vmnw"))
func WithWeights(store blobstore.BlobStore, name string) Option {
	return func(o *options) {
		o.loader = model.FromBlob(store, name)
	}
}

// WithNetwork uses an already loaded network.
func WithNetwork(net *convnet.Network) Option {
	return func(o *options) {
		o.loader = model.Static(net)
	}
}

// WithFetchTimeout bounds fetching and decoding one photo. The default is
// imageload.DefaultTimeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) {
		o.fetchTimeout = d
	}
}

// WithMaxImageBytes caps the size of a downloaded photo.
func WithMaxImageBytes(n int64) Option {
	return func(o *options) {
		o.maxImageBytes = n
	}
}

// WithHTTPClient replaces the client used to fetch photos.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithResourceController bounds decode memory, concurrent extractions and
// the fetch rate.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithThreshold overrides the default match threshold of 40. Only
// similarities strictly above it are reported.
func WithThreshold(threshold int) Option {
	return func(o *options) {
		o.threshold = threshold
	}
}

// WithLimit overrides the default cap of 3 matches.
func WithLimit(limit int) Option {
	return func(o *options) {
		o.limit = limit
	}
}

// WithTieBreak orders matches of equal similarity, e.g. ranker.ByRecency.
// By default they keep the candidate order.
func WithTieBreak(c ranker.Comparator) Option {
	return func(o *options) {
		o.tieBreak = c
	}
}

// WithRankParallelism scores large candidate pools on up to n goroutines.
func WithRankParallelism(n int) Option {
	return func(o *options) {
		o.parallelism = n
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vismatch.BasicMetricsCollector{}
//	m := vismatch.New(vismatch.WithMetricsCollector(metrics))
//	// ... use m ...
//	stats := metrics.GetStats()
//	fmt.Printf("Extractions: %d, timeouts: %d\n", stats.ExtractCount, stats.ExtractTimeouts)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		threshold:        ranker.DefaultThreshold,
		limit:            ranker.DefaultLimit,
		parallelism:      1,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
