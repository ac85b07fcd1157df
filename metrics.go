package vismatch

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; see the
// promcollector package for a Prometheus implementation.
type MetricsCollector interface {
	// RecordModelLoad is called after each model load attempt.
	RecordModelLoad(duration time.Duration, err error)

	// RecordExtract is called after each embedding extraction from a URL.
	// err is nil on success; otherwise KindOf(err) tells what went wrong.
	RecordExtract(duration time.Duration, err error)

	// RecordRank is called after each ranking call.
	RecordRank(candidates, matched int, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordModelLoad(time.Duration, error) {}
func (NoopMetricsCollector) RecordExtract(time.Duration, error)   {}
func (NoopMetricsCollector) RecordRank(int, int, time.Duration)   {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ModelLoadCount    atomic.Int64
	ModelLoadErrors   atomic.Int64
	ExtractCount      atomic.Int64
	ExtractErrors     atomic.Int64
	ExtractTimeouts   atomic.Int64
	ExtractTotalNanos atomic.Int64
	RankCount         atomic.Int64
	RankCandidates    atomic.Int64
	RankMatched       atomic.Int64
	RankTotalNanos    atomic.Int64
}

// RecordModelLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordModelLoad(_ time.Duration, err error) {
	b.ModelLoadCount.Add(1)
	if err != nil {
		b.ModelLoadErrors.Add(1)
	}
}

// RecordExtract implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExtract(duration time.Duration, err error) {
	b.ExtractCount.Add(1)
	b.ExtractTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ExtractErrors.Add(1)
		if kind, ok := KindOf(err); ok && kind == KindImageLoadTimeout {
			b.ExtractTimeouts.Add(1)
		}
	}
}

// RecordRank implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRank(candidates, matched int, duration time.Duration) {
	b.RankCount.Add(1)
	b.RankCandidates.Add(int64(candidates))
	b.RankMatched.Add(int64(matched))
	b.RankTotalNanos.Add(duration.Nanoseconds())
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ModelLoadCount:  b.ModelLoadCount.Load(),
		ModelLoadErrors: b.ModelLoadErrors.Load(),
		ExtractCount:    b.ExtractCount.Load(),
		ExtractErrors:   b.ExtractErrors.Load(),
		ExtractTimeouts: b.ExtractTimeouts.Load(),
		ExtractAvgNanos: avg(b.ExtractTotalNanos.Load(), b.ExtractCount.Load()),
		RankCount:       b.RankCount.Load(),
		RankCandidates:  b.RankCandidates.Load(),
		RankMatched:     b.RankMatched.Load(),
		RankAvgNanos:    avg(b.RankTotalNanos.Load(), b.RankCount.Load()),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ModelLoadCount  int64
	ModelLoadErrors int64
	ExtractCount    int64
	ExtractErrors   int64
	ExtractTimeouts int64
	ExtractAvgNanos int64
	RankCount       int64
	RankCandidates  int64
	RankMatched     int64
	RankAvgNanos    int64
}
