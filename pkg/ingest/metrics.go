package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Rejection reason label values.
const (
	reasonDuplicate      = "duplicate"
	reasonErrored        = "errored"
	reasonHandoffFailure = "handoff_failure"
)

// Metrics exposes the ingestion counters.
type Metrics struct {
	batchesTotal   prometheus.Counter
	spansAccepted  prometheus.Counter
	spansRejected  *prometheus.CounterVec
	batchSpanCount prometheus.Histogram
}

// NewMetrics registers the ingestion metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		batchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "traceloft_ingest_batches_total",
			Help: "Total ingested OTLP batches.",
		}),
		spansAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "traceloft_ingest_spans_accepted_total",
			Help: "Spans newly stored with a successful sync hand-off.",
		}),
		spansRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traceloft_ingest_spans_rejected_total",
			Help: "Spans not accepted, partitioned by reason.",
		}, []string{"reason"}),
		batchSpanCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "traceloft_ingest_batch_span_count",
			Help:    "Span count per ingested batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
	reg.MustRegister(m.batchesTotal, m.spansAccepted, m.spansRejected, m.batchSpanCount)
	return m
}

// ObserveBatch records one batch outcome.
func (m *Metrics) ObserveBatch(totalSpans int, result *Result) {
	m.batchesTotal.Inc()
	m.batchSpanCount.Observe(float64(totalSpans))
	m.spansAccepted.Add(float64(result.AcceptedSpans))
	m.spansRejected.WithLabelValues(reasonDuplicate).Add(float64(result.Duplicates))
	m.spansRejected.WithLabelValues(reasonErrored).Add(float64(result.Errored))
	m.spansRejected.WithLabelValues(reasonHandoffFailure).Add(float64(result.HandoffFailures))
}
