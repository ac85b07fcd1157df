package vismatch

import (
	"context"
	"errors"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lostboard/vismatch/convnet"
	"github.com/lostboard/vismatch/embedding"
	"github.com/lostboard/vismatch/item"
	"github.com/lostboard/vismatch/model"
	"github.com/lostboard/vismatch/ranker"
	"github.com/lostboard/vismatch/testutil"
)

func compactLoader() model.Loader {
	return model.FromRandom(convnet.Compact(32, 16), 11)
}

func newTestMatcher(t *testing.T, optFns ...Option) *Matcher {
	t.Helper()
	return New(append([]Option{WithModelLoader(compactLoader())}, optFns...)...)
}

func photoServer(t *testing.T) *testutil.ImageServer {
	t.Helper()
	board := testutil.Checkerboard(64, 64, 8, color.White, color.Black)
	grad := testutil.Gradient(64, 64, color.RGBA{R: 200, A: 255}, color.RGBA{B: 200, A: 255})
	return testutil.NewImageServer(t, map[string][]byte{
		"/board.png":  testutil.PNG(t, board),
		"/board.jpg":  testutil.JPEG(t, board),
		"/grad.png":   testutil.PNG(t, grad),
		"/broken.png": []byte("this is not an image"),
	})
}

func TestExtractEmbedding(t *testing.T) {
	srv := photoServer(t)
	m := newTestMatcher(t)
	ctx := context.Background()

	a, err := m.ExtractEmbedding(ctx, srv.URLFor("/board.png"))
	require.NoError(t, err)
	assert.Len(t, a, 16)
	assert.Equal(t, model.Ready, m.ModelState())

	again, err := m.ExtractEmbedding(ctx, srv.URLFor("/board.png"))
	require.NoError(t, err)
	assert.True(t, a.Equal(again), "same photo must give the same embedding")

	self, err := m.ScoreSimilarity(a, again)
	require.NoError(t, err)
	assert.Equal(t, 100, self)

	jpg, err := m.ExtractEmbedding(ctx, srv.URLFor("/board.jpg"))
	require.NoError(t, err)
	s, err := m.ScoreSimilarity(a, jpg)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, s, 90, "re-encoding should barely move the embedding")
}

func TestExtractEmbeddingErrorKinds(t *testing.T) {
	srv := photoServer(t)
	m := newTestMatcher(t, WithFetchTimeout(200*time.Millisecond))
	ctx := context.Background()
	require.NoError(t, m.EnsureModelReady(ctx))

	tests := []struct {
		name string
		path string
		kind ErrorKind
		is   error
	}{
		{"not found", "/missing.png", KindImageFetchFailed, ErrImageFetchFailed},
		{"forbidden", "/private", KindImageFetchFailed, ErrImageFetchFailed},
		{"not an image", "/broken.png", KindImageDecodeFailed, ErrImageDecodeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb, err := m.ExtractEmbedding(ctx, srv.URLFor(tt.path))
			require.Error(t, err)
			assert.Nil(t, emb)
			kind, ok := KindOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, kind)
			assert.ErrorIs(t, err, tt.is)
			assert.True(t, Recoverable(err))
		})
	}
}

func TestExtractEmbeddingTimeout(t *testing.T) {
	srv := photoServer(t)
	srv.Stall(true)
	m := newTestMatcher(t, WithFetchTimeout(100*time.Millisecond))

	start := time.Now()
	_, err := m.ExtractEmbedding(context.Background(), srv.URLFor("/board.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageLoadTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "ExtractEmbedding", e.Op)
}

func TestExtractEmbeddingCallerCancel(t *testing.T) {
	srv := photoServer(t)
	srv.Stall(true)
	m := newTestMatcher(t)
	require.NoError(t, m.EnsureModelReady(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := m.ExtractEmbedding(ctx, srv.URLFor("/board.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, classified := KindOf(err)
	assert.False(t, classified)
}

func TestExtractEmbeddingModelLoadFailure(t *testing.T) {
	srv := photoServer(t)
	var calls atomic.Int32
	m := New(WithModelLoader(func(context.Context) (*convnet.Network, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("weights unavailable")
		}
		return convnet.Random(convnet.Compact(32, 16), 11)
	}))

	_, err := m.ExtractEmbedding(context.Background(), srv.URLFor("/board.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelLoad)
	assert.True(t, Recoverable(err))
	assert.Equal(t, model.Failed, m.ModelState())
	assert.Zero(t, srv.Hits(), "photo must not be fetched without a model")

	emb, err := m.ExtractEmbedding(context.Background(), srv.URLFor("/board.png"))
	require.NoError(t, err, "next call retries the load")
	assert.Len(t, emb, 16)
	assert.Equal(t, model.Ready, m.ModelState())
}

func TestExtractEmbeddingStalledModelLoad(t *testing.T) {
	srv := photoServer(t)
	release := make(chan struct{})
	var loads atomic.Int32
	m := New(
		WithModelLoader(func(context.Context) (*convnet.Network, error) {
			loads.Add(1)
			<-release
			return convnet.Random(convnet.Compact(32, 16), 11)
		}),
		WithFetchTimeout(100*time.Millisecond),
	)

	type result struct {
		emb embedding.Embedding
		err error
	}
	done := make(chan result, 1)
	go func() {
		emb, err := m.ExtractEmbedding(context.Background(), srv.URLFor("/board.png"))
		done <- result{emb, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-time.After(3 * time.Second):
		close(release)
		t.Fatal("extraction kept waiting for a stalled model load")
	}
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, ErrModelLoad)
	assert.ErrorIs(t, res.err, model.ErrLoadPending)
	assert.NotErrorIs(t, res.err, context.DeadlineExceeded)
	kind, ok := KindOf(res.err)
	require.True(t, ok)
	assert.Equal(t, KindModelLoad, kind)
	assert.Equal(t, model.Loading, m.ModelState(), "load keeps running")
	assert.Zero(t, srv.Hits())
	assert.Zero(t, m.EmbeddingDim())

	close(release)
	emb, err := m.ExtractEmbedding(context.Background(), srv.URLFor("/board.png"))
	require.NoError(t, err)
	assert.Len(t, emb, 16)
	assert.Equal(t, int32(1), loads.Load(), "the stalled load is reused, not restarted")
	assert.Equal(t, 16, m.EmbeddingDim())
}

func TestExtractEmbeddingCallerDeadlineWhileLoading(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m := New(WithModelLoader(func(context.Context) (*convnet.Network, error) {
		<-release
		return convnet.Random(convnet.Compact(32, 16), 11)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := m.ExtractEmbedding(ctx, "http://127.0.0.1:1/never.png")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, classified := KindOf(err)
	assert.False(t, classified)
}

func TestEnsureModelReadyLoadsOnce(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	m := New(WithModelLoader(func(ctx context.Context) (*convnet.Network, error) {
		loads.Add(1)
		<-release
		return convnet.Random(convnet.Compact(16, 8), 1)
	}))

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = m.EnsureModelReady(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return m.ModelState() == model.Loading }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), loads.Load())
	assert.NoError(t, m.EnsureModelReady(context.Background()))
	assert.Equal(t, int32(1), loads.Load())
}

func TestScoreSimilarityDimensionMismatch(t *testing.T) {
	m := newTestMatcher(t)
	_, err := m.ScoreSimilarity(embedding.Embedding{1, 2, 3}, embedding.Embedding{1, 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.False(t, Recoverable(err))
}

func TestRankMatchesScenario(t *testing.T) {
	m := newTestMatcher(t)
	candidates := []item.Record{
		{ID: "A", Type: item.Found, Embedding: embedding.Embedding{1, 0, 0}},
		{ID: "B", Type: item.Found, Embedding: embedding.Embedding{0, 1, 0}},
		{ID: "C", Type: item.Found},
	}

	got := m.RankMatches(embedding.Embedding{1, 0, 0}, candidates)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].ID)
	assert.Equal(t, 100, got[0].Similarity)
	assert.Equal(t, "B", got[1].ID)
	assert.Equal(t, 50, got[1].Similarity)
}

func TestRankMatchesUsesMatcherDefaults(t *testing.T) {
	candidates := []item.Record{
		{ID: "A", Embedding: embedding.Embedding{1, 0}},
		{ID: "B", Embedding: embedding.Embedding{1, 0.2}},
		{ID: "C", Embedding: embedding.Embedding{0, 1}},
		{ID: "D", Embedding: embedding.Embedding{1, 1}},
	}
	q := embedding.Embedding{1, 0}

	assert.Len(t, newTestMatcher(t).RankMatches(q, candidates), 3)
	assert.Len(t, newTestMatcher(t, WithLimit(10)).RankMatches(q, candidates), 4)
	assert.Len(t, newTestMatcher(t, WithThreshold(90)).RankMatches(q, candidates), 2)
	assert.Len(t, newTestMatcher(t, WithThreshold(90)).RankMatches(q, candidates, ranker.WithThreshold(99)), 1)
}

func TestFindMatches(t *testing.T) {
	m := newTestMatcher(t)
	now := time.Now()
	lost := item.Record{ID: "q", Type: item.Lost, Embedding: embedding.Embedding{1, 0}}
	pool := []item.Record{
		lost,
		{ID: "other-lost", Type: item.Lost, Embedding: embedding.Embedding{1, 0}},
		{ID: "found-far", Type: item.Found, Embedding: embedding.Embedding{-1, 0}, CreatedAt: now},
		{ID: "found-near", Type: item.Found, Embedding: embedding.Embedding{1, 0.1}, CreatedAt: now},
	}

	t.Run("pending without embedding", func(t *testing.T) {
		q := lost
		q.Embedding = nil
		out := m.FindMatches(q, pool)
		assert.Equal(t, MatchPending, out.State)
		assert.Empty(t, out.Matches)
	})

	t.Run("found excludes self and same type", func(t *testing.T) {
		out := m.FindMatches(lost, pool)
		assert.Equal(t, MatchFound, out.State)
		require.Len(t, out.Matches, 1)
		assert.Equal(t, "found-near", out.Matches[0].ID)
	})

	t.Run("no matches", func(t *testing.T) {
		out := m.FindMatches(lost, pool[:3])
		assert.Equal(t, MatchNone, out.State)
		assert.Empty(t, out.Matches)
	})

	assert.Equal(t, "NoMatches", MatchNone.String())
}

func TestMetricsCollected(t *testing.T) {
	srv := photoServer(t)
	metrics := &BasicMetricsCollector{}
	m := newTestMatcher(t, WithMetricsCollector(metrics), WithFetchTimeout(100*time.Millisecond))
	ctx := context.Background()

	_, err := m.ExtractEmbedding(ctx, srv.URLFor("/grad.png"))
	require.NoError(t, err)
	_, err = m.ExtractEmbedding(ctx, srv.URLFor("/missing.png"))
	require.Error(t, err)
	srv.Stall(true)
	_, err = m.ExtractEmbedding(ctx, srv.URLFor("/grad.png"))
	require.Error(t, err)
	m.RankMatches(embedding.Embedding{1}, []item.Record{{ID: "x", Embedding: embedding.Embedding{1}}})

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.ModelLoadCount)
	assert.Equal(t, int64(0), stats.ModelLoadErrors)
	assert.Equal(t, int64(3), stats.ExtractCount)
	assert.Equal(t, int64(2), stats.ExtractErrors)
	assert.Equal(t, int64(1), stats.ExtractTimeouts)
	assert.Equal(t, int64(1), stats.RankCount)
	assert.Equal(t, int64(1), stats.RankMatched)
}
