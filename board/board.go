// Package board implements the post and view flows of the lost-and-found
// board on top of a Matcher and an item store.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lostboard/vismatch"
	"github.com/lostboard/vismatch/embedding"
	"github.com/lostboard/vismatch/item"
	"github.com/lostboard/vismatch/itemstore"
	"github.com/lostboard/vismatch/ranker"
	"github.com/lostboard/vismatch/sharelink"
)

// WarnNotAnalyzed is reported when a post was stored without an embedding.
const WarnNotAnalyzed = "couldn't analyze the photo, but the item was posted; make sure the image link is public"

// ErrInvalidPost is wrapped by every validation failure of a PostRequest.
var ErrInvalidPost = errors.New("board: invalid post")

// Matcher is the part of *vismatch.Matcher the board needs.
type Matcher interface {
	EnsureModelReady(ctx context.Context) error
	ExtractEmbedding(ctx context.Context, imageURL string) (embedding.Embedding, error)
	EmbeddingDim() int
	FindMatches(query item.Record, pool []item.Record, optFns ...ranker.Option) vismatch.MatchOutcome
}

// Service runs the board flows. It is safe for concurrent use.
type Service struct {
	matcher Matcher
	store   itemstore.Store
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for post timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the random UUID item IDs.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// New creates a Service.
func New(m Matcher, store itemstore.Store, optFns ...Option) *Service {
	s := &Service{
		matcher: m,
		store:   store,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(s)
		}
	}
	return s
}

// Warm starts loading the model in the background so the first post does
// not pay for it. Failures are logged; the next extraction retries.
func (s *Service) Warm(ctx context.Context) {
	go func() {
		if err := s.matcher.EnsureModelReady(ctx); err != nil {
			s.logger.WarnContext(ctx, "model warm-up failed", slog.Any("error", err))
		}
	}()
}

// PostRequest is a new lost or found item as submitted by a user.
type PostRequest struct {
	Type        item.Type `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Station     string    `json:"station"`
	TrainNumber string    `json:"trainNumber,omitempty"`
	Date        string    `json:"date,omitempty"`
	PhotoURL    string    `json:"photoUrl"`
	PostedBy    string    `json:"postedBy,omitempty"`
}

func (r *PostRequest) validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: type must be Lost or Found, got %q", ErrInvalidPost, r.Type)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidPost)
	}
	if strings.TrimSpace(r.PhotoURL) == "" {
		return fmt.Errorf("%w: photo link is required", ErrInvalidPost)
	}
	return nil
}

// PostResult is the stored item plus how the photo analysis went.
type PostResult struct {
	Item item.Record `json:"item"`
	// Analyzed is false when the item was stored without an embedding.
	Analyzed bool   `json:"analyzed"`
	Warning  string `json:"warning,omitempty"`
	// Cause is the extraction error behind Warning.
	Cause error `json:"-"`
}

// Post stores a new item. The photo link is normalized and analyzed first;
// if analysis fails the item is stored anyway, without an embedding, and
// the result carries a warning. Only validation, store failures and the
// caller's own cancellation make Post fail.
func (s *Service) Post(ctx context.Context, req PostRequest) (PostResult, error) {
	if err := req.validate(); err != nil {
		return PostResult{}, err
	}

	rec := item.Record{
		ID:          s.newID(),
		Type:        req.Type,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Category:    req.Category,
		Station:     req.Station,
		TrainNumber: req.TrainNumber,
		Date:        req.Date,
		PhotoURL:    sharelink.Normalize(req.PhotoURL),
		PostedBy:    req.PostedBy,
		Status:      item.StatusActive,
	}
	logger := s.logger.With(slog.String("item", rec.ID))

	res := PostResult{Analyzed: true}
	emb, err := s.extract(ctx, "Post", rec.PhotoURL)
	switch {
	case err == nil:
		rec.Embedding = emb
	case ctx.Err() != nil:
		return PostResult{}, err
	default:
		kind, _ := vismatch.KindOf(err)
		logger.WarnContext(ctx, "posting without embedding",
			slog.String("url", rec.PhotoURL),
			slog.String("kind", kind.String()),
			slog.Any("error", err),
		)
		res = PostResult{Analyzed: false, Warning: WarnNotAnalyzed, Cause: err}
	}

	rec.CreatedAt = s.now()
	if err := s.store.Put(ctx, rec); err != nil {
		return PostResult{}, fmt.Errorf("board: store item: %w", err)
	}
	logger.InfoContext(ctx, "item posted",
		slog.String("type", string(rec.Type)),
		slog.Bool("analyzed", res.Analyzed),
	)

	res.Item = rec
	return res, nil
}

// Item returns a stored item or itemstore.ErrNotFound.
func (s *Service) Item(ctx context.Context, id string) (item.Record, error) {
	return s.store.Get(ctx, id)
}

// ViewResult is an item and its visual matches.
type ViewResult struct {
	Item    item.Record           `json:"item"`
	Outcome vismatch.MatchOutcome `json:"-"`
}

// View loads the item and, when it has an embedding, ranks every item of
// the opposite type against it. A missing item yields itemstore.ErrNotFound.
func (s *Service) View(ctx context.Context, id string, optFns ...ranker.Option) (ViewResult, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return ViewResult{}, err
	}
	if !rec.HasEmbedding() {
		return ViewResult{Item: rec, Outcome: s.matcher.FindMatches(rec, nil)}, nil
	}

	pool, err := s.store.List(ctx)
	if err != nil {
		return ViewResult{}, fmt.Errorf("board: load candidates: %w", err)
	}
	return ViewResult{Item: rec, Outcome: s.matcher.FindMatches(rec, pool, optFns...)}, nil
}

// Reanalyze extracts the embedding of an item stored without one, e.g.
// after its photo was made public.
func (s *Service) Reanalyze(ctx context.Context, id string) (item.Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return item.Record{}, err
	}
	emb, err := s.extract(ctx, "Reanalyze", rec.PhotoURL)
	if err != nil {
		return item.Record{}, err
	}
	if err := s.store.SetEmbedding(ctx, id, emb); err != nil {
		return item.Record{}, fmt.Errorf("board: store embedding: %w", err)
	}
	rec.Embedding = emb
	return rec, nil
}

// extract returns the photo's embedding after checking it against the
// loaded network, so that only comparable embeddings reach the store.
func (s *Service) extract(ctx context.Context, op, photoURL string) (embedding.Embedding, error) {
	emb, err := s.matcher.ExtractEmbedding(ctx, photoURL)
	if err != nil {
		return nil, err
	}
	if err := emb.Validate(s.matcher.EmbeddingDim()); err != nil {
		return nil, &vismatch.Error{Kind: vismatch.KindDimensionMismatch, Op: op, Err: err}
	}
	return emb, nil
}
