// Package promcollector reports matcher metrics to Prometheus.
package promcollector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lostboard/vismatch"
)

// Collector implements vismatch.MetricsCollector.
type Collector struct {
	opLatency  *prometheus.HistogramVec
	extracts   *prometheus.CounterVec
	modelLoads *prometheus.CounterVec
	candidates prometheus.Histogram
	matched    prometheus.Histogram
}

// New creates a Collector and registers it with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vismatch_operation_latency_seconds",
			Help:    "Latency of matcher operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "status"}),
		extracts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vismatch_extractions_total",
			Help: "Embedding extractions by outcome",
		}, []string{"outcome"}),
		modelLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vismatch_model_loads_total",
			Help: "Model load attempts by status",
		}, []string{"status"}),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vismatch_rank_candidates",
			Help:    "Candidate pool size per ranking call",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		matched: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vismatch_rank_matches",
			Help:    "Matches returned per ranking call",
			Buckets: prometheus.LinearBuckets(0, 1, 6),
		}),
	}

	for _, col := range []prometheus.Collector{c.opLatency, c.extracts, c.modelLoads, c.candidates, c.matched} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordModelLoad implements vismatch.MetricsCollector.
func (c *Collector) RecordModelLoad(d time.Duration, err error) {
	c.opLatency.WithLabelValues("model_load", status(err)).Observe(d.Seconds())
	c.modelLoads.WithLabelValues(status(err)).Inc()
}

// RecordExtract implements vismatch.MetricsCollector. Failures are counted
// per error kind.
func (c *Collector) RecordExtract(d time.Duration, err error) {
	c.opLatency.WithLabelValues("extract", status(err)).Observe(d.Seconds())

	outcome := "success"
	if err != nil {
		outcome = "other"
		if kind, ok := vismatch.KindOf(err); ok {
			outcome = kind.String()
		}
	}
	c.extracts.WithLabelValues(outcome).Inc()
}

// RecordRank implements vismatch.MetricsCollector.
func (c *Collector) RecordRank(candidates, matched int, d time.Duration) {
	c.opLatency.WithLabelValues("rank", "success").Observe(d.Seconds())
	c.candidates.Observe(float64(candidates))
	c.matched.Observe(float64(matched))
}

var _ vismatch.MetricsCollector = (*Collector)(nil)
