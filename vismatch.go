package vismatch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/lostboard/vismatch/config"
	"github.com/lostboard/vismatch/convnet"
	"github.com/lostboard/vismatch/embedding"
	"github.com/lostboard/vismatch/extractor"
	"github.com/lostboard/vismatch/imageload"
	"github.com/lostboard/vismatch/item"
	"github.com/lostboard/vismatch/model"
	"github.com/lostboard/vismatch/ranker"
	"github.com/lostboard/vismatch/resource"
	"github.com/lostboard/vismatch/similarity"
)

// Matcher is the entry point for extracting and comparing photo embeddings.
// It is safe for concurrent use.
type Matcher struct {
	models    *model.Manager
	images    *imageload.Loader
	extractor *extractor.Extractor

	rankOpts []ranker.Option
	logger   *Logger
	metrics  MetricsCollector
}

// New creates a Matcher. The network is not loaded until the first call
// that needs it, or an explicit EnsureModelReady.
func New(optFns ...Option) *Matcher {
	o := applyOptions(optFns)

	m := &Matcher{
		logger:  o.logger,
		metrics: o.metricsCollector,
		rankOpts: []ranker.Option{
			ranker.WithThreshold(o.threshold),
			ranker.WithLimit(o.limit),
			ranker.WithTieBreak(o.tieBreak),
			ranker.WithParallelism(o.parallelism),
		},
	}

	load := o.loader
	if load == nil {
		o.logger.Warn("no model weights configured, using random development weights",
			"arch", convnet.MobileNetV1().Name,
		)
		load = model.FromRandom(convnet.MobileNetV1(), DevSeed)
	}
	m.models = model.NewManager(load,
		model.WithLogger(o.logger.Logger),
		model.WithLoadHook(func(d time.Duration, err error) {
			m.metrics.RecordModelLoad(d, err)
		}),
	)

	imgOpts := []imageload.Option{
		imageload.WithResourceController(o.resources),
		imageload.WithLogger(o.logger.Logger),
	}
	if o.fetchTimeout > 0 {
		imgOpts = append(imgOpts, imageload.WithTimeout(o.fetchTimeout))
	}
	if o.maxImageBytes > 0 {
		imgOpts = append(imgOpts, imageload.WithMaxBytes(o.maxImageBytes))
	}
	if o.httpClient != nil {
		imgOpts = append(imgOpts, imageload.WithHTTPClient(o.httpClient))
	}
	m.images = imageload.New(imgOpts...)

	m.extractor = extractor.New(m.models,
		extractor.WithResourceController(o.resources),
		extractor.WithLogger(o.logger.Logger),
	)
	return m
}

// FromConfig creates a Matcher from cfg. Options in optFns are applied after
// the ones derived from cfg.
func FromConfig(ctx context.Context, cfg *config.Config, optFns ...Option) (*Matcher, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger := NewLogger(cfg.LogHandler(os.Stderr))
	logger.Debug("configuring matcher", "level", level.String(), "weights", cfg.Model.Weights)

	load, err := cfg.WeightsLoader(ctx)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithLogger(logger),
		WithFetchTimeout(cfg.Fetch.Timeout),
		WithMaxImageBytes(cfg.Fetch.MaxImageBytes),
		WithResourceController(resource.NewController(cfg.Resources())),
		WithThreshold(cfg.Match.Threshold),
		WithLimit(cfg.Match.Limit),
	}
	if load != nil {
		opts = append(opts, WithModelLoader(load))
	}
	return New(append(opts, optFns...)...), nil
}

var defaultMatcher = sync.OnceValues(func() (*Matcher, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return FromConfig(context.Background(), cfg)
})

// Default returns the process-wide Matcher configured from the environment.
// It is built once; later calls return the same Matcher (or the same error).
func Default() (*Matcher, error) {
	return defaultMatcher()
}

// EnsureModelReady loads the network if it is not loaded yet. Concurrent
// callers share one load. If ctx ends first the load continues in the
// background and ctx's error is returned.
func (m *Matcher) EnsureModelReady(ctx context.Context) error {
	return translateError("EnsureModelReady", m.models.EnsureReady(ctx))
}

// EmbeddingDim returns the length of the embeddings the loaded network
// produces, or 0 while no network is loaded.
func (m *Matcher) EmbeddingDim() int {
	if net := m.models.Current(); net != nil {
		return net.Dim()
	}
	return 0
}

// ModelState reports the lifecycle state of the network.
func (m *Matcher) ModelState() model.State {
	return m.models.State()
}

// ExtractEmbedding fetches the photo at imageURL and returns its embedding.
// The decoded image is released before returning.
func (m *Matcher) ExtractEmbedding(ctx context.Context, imageURL string) (embedding.Embedding, error) {
	start := time.Now()
	emb, err := m.extractURL(ctx, imageURL)
	err = translateError("ExtractEmbedding", err)

	d := time.Since(start)
	m.metrics.RecordExtract(d, err)
	m.logger.LogExtract(ctx, imageURL, len(emb), d, err)
	if err != nil {
		return nil, err
	}
	return emb, nil
}

func (m *Matcher) extractURL(ctx context.Context, imageURL string) (embedding.Embedding, error) {
	if err := m.awaitModel(ctx); err != nil {
		return nil, err
	}
	dec, err := m.images.Load(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	defer dec.Release()
	return m.extractor.Extract(ctx, dec.Image)
}

// awaitModel waits for the network no longer than one extraction may take.
// A load still running at that point fails this extraction with a
// *model.LoadError; the load itself carries on for later callers.
func (m *Matcher) awaitModel(ctx context.Context) error {
	wait := m.images.Timeout()
	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	err := m.models.EnsureReady(wctx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return &model.LoadError{Err: fmt.Errorf("%w after %s", model.ErrLoadPending, wait)}
	}
	return err
}

// ExtractImage returns the embedding of an already decoded image.
func (m *Matcher) ExtractImage(ctx context.Context, img image.Image) (embedding.Embedding, error) {
	emb, err := m.extractor.Extract(ctx, img)
	if err != nil {
		return nil, translateError("ExtractImage", err)
	}
	return emb, nil
}

// ScoreSimilarity returns the similarity of a and b on 0..100. Embeddings of
// different length yield an error of kind KindDimensionMismatch.
func (m *Matcher) ScoreSimilarity(a, b embedding.Embedding) (int, error) {
	s, err := similarity.Score(a, b)
	if err != nil {
		return similarity.Min, translateError("ScoreSimilarity", err)
	}
	return s, nil
}

// RankMatches ranks candidates against query using the Matcher's threshold,
// limit and tie-break. optFns override them for this call.
func (m *Matcher) RankMatches(query embedding.Embedding, candidates []item.Record, optFns ...ranker.Option) []ranker.Match {
	opts := append(append([]ranker.Option(nil), m.rankOpts...), optFns...)
	matches, st := ranker.RankWithStats(query, candidates, opts...)

	m.metrics.RecordRank(st.Candidates, st.Matched, st.Duration)
	m.logger.LogRank(context.Background(), st)
	return matches
}

// MatchState describes the outcome of FindMatches.
type MatchState int

const (
	// MatchPending: the query post has no embedding yet.
	MatchPending MatchState = iota
	// MatchNone: nothing scored above the threshold.
	MatchNone
	// MatchFound: at least one match.
	MatchFound
)

func (s MatchState) String() string {
	switch s {
	case MatchPending:
		return "Pending"
	case MatchNone:
		return "NoMatches"
	case MatchFound:
		return "Found"
	default:
		return fmt.Sprintf("MatchState(%d)", int(s))
	}
}

// MatchOutcome is the result of FindMatches.
type MatchOutcome struct {
	State   MatchState
	Matches []ranker.Match
}

// FindMatches ranks the posts in pool that can match query: posts of the
// opposite type other than query itself. pool may contain anything; it is
// filtered here and never modified.
func (m *Matcher) FindMatches(query item.Record, pool []item.Record, optFns ...ranker.Option) MatchOutcome {
	if !query.HasEmbedding() {
		return MatchOutcome{State: MatchPending, Matches: []ranker.Match{}}
	}

	candidates := make([]item.Record, 0, len(pool))
	for i := range pool {
		if query.CandidateFor(&pool[i]) {
			candidates = append(candidates, pool[i])
		}
	}

	matches := m.RankMatches(query.Embedding, candidates, optFns...)
	if len(matches) == 0 {
		return MatchOutcome{State: MatchNone, Matches: matches}
	}
	return MatchOutcome{State: MatchFound, Matches: matches}
}
