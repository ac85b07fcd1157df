// Package ranker orders a candidate pool by visual similarity to a query
// embedding and keeps the best few.
//
// Ranking is pure: it performs no I/O, never mutates its inputs and returns a
// fresh result slice. Candidates without an embedding score 0 and candidates
// whose embedding length differs from the query are skipped; neither makes
// the call fail.
package ranker

import (
	"cmp"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lostboard/vismatch/embedding"
	"github.com/lostboard/vismatch/item"
	"github.com/lostboard/vismatch/similarity"
)

const (
	// DefaultThreshold is the similarity a candidate must exceed to be
	// reported.
	DefaultThreshold = 40
	// DefaultLimit caps the number of reported matches.
	DefaultLimit = 3

	// Pools smaller than this are always scored on the calling goroutine.
	parallelMinCandidates = 512
)

// Match is a candidate record annotated with its similarity to the query.
// The embedded record's Embedding shares storage with the candidate and
// must be treated as read-only.
type Match struct {
	item.Record
	Similarity int `json:"similarity"`
}

// Comparator orders two records with equal similarity. It follows the
// cmp.Compare convention; returning 0 keeps the input order.
type Comparator func(a, b *item.Record) int

// ByRecency puts newer records first.
func ByRecency(a, b *item.Record) int {
	return b.CreatedAt.Compare(a.CreatedAt)
}

// Options configures a ranking call.
type Options struct {
	// Threshold is exclusive: only similarities strictly greater are kept.
	Threshold int
	// Limit is the maximum number of matches; <= 0 yields none.
	Limit int
	// TieBreak orders equal similarities. nil keeps the input order.
	TieBreak Comparator
	// Parallelism bounds the number of scoring goroutines for large pools.
	// Values <= 1 score sequentially.
	Parallelism int
}

// Option mutates Options.
type Option func(*Options)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(threshold int) Option {
	return func(o *Options) { o.Threshold = threshold }
}

// WithLimit overrides DefaultLimit.
func WithLimit(limit int) Option {
	return func(o *Options) { o.Limit = limit }
}

// WithTieBreak installs a secondary order among equal similarities.
func WithTieBreak(c Comparator) Option {
	return func(o *Options) { o.TieBreak = c }
}

// WithParallelism scores large pools on up to n goroutines. n <= 0 uses
// GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(o *Options) {
		if n <= 0 {
			n = runtime.GOMAXPROCS(0)
		}
		o.Parallelism = n
	}
}

// DefaultOptions returns the defaults used when no option is given.
func DefaultOptions() Options {
	return Options{
		Threshold:   DefaultThreshold,
		Limit:       DefaultLimit,
		Parallelism: 1,
	}
}

func applyOptions(optFns []Option) Options {
	o := DefaultOptions()
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// Stats describes what happened to the candidate pool.
type Stats struct {
	Candidates int
	// Scored counts candidates that had a comparable embedding.
	Scored int
	// Missing counts candidates without an embedding.
	Missing int
	// Skipped counts candidates whose embedding could not be compared.
	Skipped  int
	Matched  int
	Duration time.Duration
}

// Rank returns up to Limit matches with similarity above Threshold, sorted by
// descending similarity. Equal similarities keep their input order unless a
// TieBreak is configured.
func Rank(query embedding.Embedding, candidates []item.Record, optFns ...Option) []Match {
	matches, _ := RankWithStats(query, candidates, optFns...)
	return matches
}

// RankWithStats is Rank plus a per-call summary for logging and metrics.
func RankWithStats(query embedding.Embedding, candidates []item.Record, optFns ...Option) ([]Match, Stats) {
	start := time.Now()
	o := applyOptions(optFns)

	st := Stats{Candidates: len(candidates)}
	if len(candidates) == 0 || o.Limit <= 0 {
		st.Duration = time.Since(start)
		return []Match{}, st
	}

	scores := make([]int, len(candidates))
	states := make([]outcome, len(candidates))
	scoreRange := func(lo, hi int) {
		for i := lo; i < hi; i++ {
			scores[i], states[i] = scoreOne(query, &candidates[i])
		}
	}

	if o.Parallelism > 1 && len(candidates) >= parallelMinCandidates {
		chunk := (len(candidates) + o.Parallelism - 1) / o.Parallelism
		var g errgroup.Group
		g.SetLimit(o.Parallelism)
		for lo := 0; lo < len(candidates); lo += chunk {
			hi := min(lo+chunk, len(candidates))
			g.Go(func() error {
				scoreRange(lo, hi)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		scoreRange(0, len(candidates))
	}

	// Sorting happens once, after every score is known, so the output does
	// not depend on goroutine scheduling.
	keep := make([]int, 0, min(len(candidates), 64))
	for i, s := range states {
		switch s {
		case outcomeMissing:
			st.Missing++
		case outcomeSkipped:
			st.Skipped++
		default:
			st.Scored++
			if scores[i] > o.Threshold {
				keep = append(keep, i)
			}
		}
	}

	slices.SortStableFunc(keep, func(a, b int) int {
		if c := cmp.Compare(scores[b], scores[a]); c != 0 {
			return c
		}
		if o.TieBreak != nil {
			return o.TieBreak(&candidates[a], &candidates[b])
		}
		return 0
	})

	if len(keep) > o.Limit {
		keep = keep[:o.Limit]
	}

	out := make([]Match, len(keep))
	for i, idx := range keep {
		out[i] = Match{Record: candidates[idx], Similarity: scores[idx]}
	}

	st.Matched = len(out)
	st.Duration = time.Since(start)
	return out, st
}

type outcome uint8

const (
	outcomeScored outcome = iota
	outcomeMissing
	outcomeSkipped
)

func scoreOne(query embedding.Embedding, c *item.Record) (int, outcome) {
	if !c.Embedding.Present() {
		return similarity.Min, outcomeMissing
	}
	s, err := similarity.Score(query, c.Embedding)
	if err != nil {
		return similarity.Min, outcomeSkipped
	}
	return s, outcomeScored
}
