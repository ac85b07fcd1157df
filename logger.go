package vismatch

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/lostboard/vismatch/ranker"
)

// Logger wraps slog.Logger with matcher-specific helpers so that every
// component logs with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// LogExtract logs an embedding extraction.
func (l *Logger) LogExtract(ctx context.Context, url string, dim int, duration time.Duration, err error) {
	if err != nil {
		kind, _ := KindOf(err)
		l.WarnContext(ctx, "extract failed",
			"url", url,
			"kind", kind.String(),
			"duration", duration,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "extract completed",
			"url", url,
			"dimension", dim,
			"duration", duration,
		)
	}
}

// LogRank logs a ranking call.
func (l *Logger) LogRank(ctx context.Context, st ranker.Stats) {
	if st.Skipped > 0 {
		l.WarnContext(ctx, "rank skipped candidates with mismatched embeddings",
			"candidates", st.Candidates,
			"skipped", st.Skipped,
			"matched", st.Matched,
		)
		return
	}
	l.DebugContext(ctx, "rank completed",
		"candidates", st.Candidates,
		"scored", st.Scored,
		"missing", st.Missing,
		"matched", st.Matched,
		"duration", st.Duration,
	)
}
