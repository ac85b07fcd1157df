package board

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lostboard/vismatch"
	"github.com/lostboard/vismatch/convnet"
	"github.com/lostboard/vismatch/embedding"
	"github.com/lostboard/vismatch/item"
	"github.com/lostboard/vismatch/itemstore"
	"github.com/lostboard/vismatch/model"
	"github.com/lostboard/vismatch/ranker"
	"github.com/lostboard/vismatch/testutil"
)

type fixture struct {
	svc   *Service
	store *itemstore.MemoryStore
	srv   *testutil.ImageServer
}

func newFixture(t *testing.T, optFns ...vismatch.Option) *fixture {
	t.Helper()
	board := testutil.Checkerboard(48, 48, 6, color.White, color.Black)
	grad := testutil.Gradient(48, 48, color.RGBA{G: 220, A: 255}, color.RGBA{R: 30, A: 255})
	srv := testutil.NewImageServer(t, map[string][]byte{
		"/umbrella.png": testutil.PNG(t, board),
		"/wallet.png":   testutil.PNG(t, grad),
	})

	m := vismatch.New(append([]vismatch.Option{
		vismatch.WithModelLoader(model.FromRandom(convnet.Compact(32, 16), 3)),
		vismatch.WithFetchTimeout(200 * time.Millisecond),
	}, optFns...)...)

	var seq atomic.Int64
	base := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	store := itemstore.NewMemoryStore()
	svc := New(m, store,
		WithIDGenerator(func() string { return fmt.Sprintf("item-%d", seq.Add(1)) }),
		WithClock(func() time.Time { return base.Add(time.Duration(seq.Load()) * time.Minute) }),
	)
	return &fixture{svc: svc, store: store, srv: srv}
}

func TestPostAnalyzesPhoto(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Post(ctx, PostRequest{
		Type:     item.Found,
		Title:    "  Black umbrella ",
		Station:  "Central",
		PhotoURL: f.srv.URLFor("/umbrella.png"),
		PostedBy: "bob",
	})
	require.NoError(t, err)
	assert.True(t, res.Analyzed)
	assert.Empty(t, res.Warning)
	assert.Equal(t, "Black umbrella", res.Item.Title)
	assert.Equal(t, item.StatusActive, res.Item.Status)
	assert.Len(t, res.Item.Embedding, 16)

	stored, err := f.store.Get(ctx, res.Item.ID)
	require.NoError(t, err)
	assert.True(t, res.Item.Embedding.Equal(stored.Embedding))
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestPostTimeoutStillCreatesItem(t *testing.T) {
	f := newFixture(t, vismatch.WithFetchTimeout(100*time.Millisecond))
	f.srv.Stall(true)
	ctx := context.Background()

	res, err := f.svc.Post(ctx, PostRequest{
		Type:     item.Lost,
		Title:    "Wallet",
		PhotoURL: f.srv.URLFor("/wallet.png"),
	})
	require.NoError(t, err)
	assert.False(t, res.Analyzed)
	assert.Equal(t, WarnNotAnalyzed, res.Warning)
	assert.ErrorIs(t, res.Cause, vismatch.ErrImageLoadTimeout)

	stored, err := f.store.Get(ctx, res.Item.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasEmbedding())

	view, err := f.svc.View(ctx, res.Item.ID)
	require.NoError(t, err)
	assert.Equal(t, vismatch.MatchPending, view.Outcome.State)
}

func TestPostModelLoadFailureDegrades(t *testing.T) {
	f := newFixture(t, vismatch.WithModelLoader(func(context.Context) (*convnet.Network, error) {
		return nil, errors.New("no weights")
	}))

	res, err := f.svc.Post(context.Background(), PostRequest{
		Type:     item.Found,
		Title:    "Keys",
		PhotoURL: f.srv.URLFor("/umbrella.png"),
	})
	require.NoError(t, err)
	assert.False(t, res.Analyzed)
	assert.ErrorIs(t, res.Cause, vismatch.ErrModelLoad)
}

func TestPostStalledModelLoadDegrades(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	f := newFixture(t,
		vismatch.WithFetchTimeout(100*time.Millisecond),
		vismatch.WithModelLoader(func(context.Context) (*convnet.Network, error) {
			<-release
			return convnet.Random(convnet.Compact(32, 16), 3)
		}),
	)

	done := make(chan struct{})
	var (
		res PostResult
		err error
	)
	go func() {
		defer close(done)
		res, err = f.svc.Post(context.Background(), PostRequest{
			Type:     item.Lost,
			Title:    "Gloves",
			PhotoURL: f.srv.URLFor("/umbrella.png"),
		})
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("post kept waiting for the model")
	}

	require.NoError(t, err)
	assert.False(t, res.Analyzed)
	assert.Equal(t, WarnNotAnalyzed, res.Warning)
	assert.ErrorIs(t, res.Cause, vismatch.ErrModelLoad)

	stored, err := f.store.Get(context.Background(), res.Item.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasEmbedding())
}

func TestPostRejectsEmbeddingOfWrongLength(t *testing.T) {
	m := &recordingMatcher{emb: embedding.Embedding{1, 0, 0}, dim: 2}
	store := itemstore.NewMemoryStore()
	svc := New(m, store)
	ctx := context.Background()

	res, err := svc.Post(ctx, PostRequest{Type: item.Found, Title: "Hat", PhotoURL: "https://example.com/hat.png"})
	require.NoError(t, err)
	assert.False(t, res.Analyzed)
	assert.ErrorIs(t, res.Cause, vismatch.ErrDimensionMismatch)

	stored, err := store.Get(ctx, res.Item.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasEmbedding())

	_, err = svc.Reanalyze(ctx, res.Item.ID)
	assert.ErrorIs(t, err, vismatch.ErrDimensionMismatch)
	var invalid *embedding.ErrInvalidLength
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 2, invalid.Expected)
	assert.Equal(t, 3, invalid.Actual)

	m.emb, m.dim = embedding.Embedding{0.5, 0.5}, 2
	rec, err := svc.Reanalyze(ctx, res.Item.ID)
	require.NoError(t, err)
	assert.Len(t, rec.Embedding, 2)
}

func TestPostValidation(t *testing.T) {
	f := newFixture(t)
	tests := map[string]PostRequest{
		"type":  {Type: "Stolen", Title: "x", PhotoURL: "https://x"},
		"title": {Type: item.Lost, Title: "  ", PhotoURL: "https://x"},
		"photo": {Type: item.Lost, Title: "x", PhotoURL: " "},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Post(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidPost)
		})
	}
	recs, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestPostCallerCancelStoresNothing(t *testing.T) {
	f := newFixture(t, vismatch.WithFetchTimeout(10*time.Second))
	f.srv.Stall(true)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.svc.Post(ctx, PostRequest{Type: item.Lost, Title: "Bag", PhotoURL: f.srv.URLFor("/wallet.png")})
	require.Error(t, err)

	recs, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

type recordingMatcher struct {
	urls []string
	emb  embedding.Embedding
	dim  int
}

func (r *recordingMatcher) EnsureModelReady(context.Context) error { return nil }

func (r *recordingMatcher) ExtractEmbedding(_ context.Context, url string) (embedding.Embedding, error) {
	r.urls = append(r.urls, url)
	if r.emb != nil {
		return r.emb, nil
	}
	return embedding.Embedding{1, 0}, nil
}

func (r *recordingMatcher) EmbeddingDim() int { return r.dim }

func (r *recordingMatcher) FindMatches(q item.Record, pool []item.Record, optFns ...ranker.Option) vismatch.MatchOutcome {
	return vismatch.MatchOutcome{State: vismatch.MatchNone}
}

func TestPostNormalizesShareLink(t *testing.T) {
	m := &recordingMatcher{}
	svc := New(m, itemstore.NewMemoryStore())

	res, err := svc.Post(context.Background(), PostRequest{
		Type:     item.Lost,
		Title:    "Scarf",
		PhotoURL: "https://drive.google.com/file/d/1AbCdEfGhIjKlMnOpQrStUvWxYz012345/view?usp=sharing",
	})
	require.NoError(t, err)
	want := "https://drive.google.com/thumbnail?id=1AbCdEfGhIjKlMnOpQrStUvWxYz012345&sz=w1000"
	assert.Equal(t, []string{want}, m.urls)
	assert.Equal(t, want, res.Item.PhotoURL)
	_, err = uuid.Parse(res.Item.ID)
	assert.NoError(t, err)
}

func TestViewFindsOppositeTypeMatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	post := func(typ item.Type, title, path string) item.Record {
		res, err := f.svc.Post(ctx, PostRequest{Type: typ, Title: title, PhotoURL: f.srv.URLFor(path)})
		require.NoError(t, err)
		require.True(t, res.Analyzed)
		return res.Item
	}
	lost := post(item.Lost, "My umbrella", "/umbrella.png")
	found := post(item.Found, "Umbrella at Central", "/umbrella.png")
	sameSide := post(item.Lost, "Another umbrella", "/umbrella.png")

	view, err := f.svc.View(ctx, lost.ID)
	require.NoError(t, err)
	assert.Equal(t, lost.ID, view.Item.ID)
	assert.Equal(t, vismatch.MatchFound, view.Outcome.State)
	require.NotEmpty(t, view.Outcome.Matches)
	assert.Equal(t, found.ID, view.Outcome.Matches[0].ID)
	assert.Equal(t, 100, view.Outcome.Matches[0].Similarity)
	for _, m := range view.Outcome.Matches {
		assert.NotEqual(t, sameSide.ID, m.ID)
		assert.NotEqual(t, lost.ID, m.ID)
	}

	view, err = f.svc.View(ctx, found.ID, ranker.WithThreshold(100))
	require.NoError(t, err)
	assert.Equal(t, vismatch.MatchNone, view.Outcome.State)
}

func TestViewMissingItem(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.View(context.Background(), "nope")
	assert.ErrorIs(t, err, itemstore.ErrNotFound)
}

func TestReanalyze(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.srv.Stall(true)
	res, err := f.svc.Post(ctx, PostRequest{Type: item.Found, Title: "Wallet", PhotoURL: f.srv.URLFor("/wallet.png")})
	require.NoError(t, err)
	require.False(t, res.Analyzed)

	f.srv.Stall(false)
	rec, err := f.svc.Reanalyze(ctx, res.Item.ID)
	require.NoError(t, err)
	assert.True(t, rec.HasEmbedding())

	stored, err := f.store.Get(ctx, res.Item.ID)
	require.NoError(t, err)
	assert.True(t, rec.Embedding.Equal(stored.Embedding))
}
