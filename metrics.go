package linker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Batch article outcomes
const (
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// Metrics holds the Prometheus collectors of the engine.
// A nil *Metrics records nothing.
type Metrics struct {
	Rewrites                *prometheus.CounterVec
	LinksInserted           prometheus.Counter
	CandidateLookupFailures prometheus.Counter
	BatchArticles           *prometheus.CounterVec
	BatchRuns               *prometheus.CounterVec
	BatchDuration           prometheus.Histogram
}

// NewMetrics registers the engine collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Rewrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linker",
			Name:      "rewrites_total",
			Help:      "Bodies processed by the rewriter, by whether links were added.",
		}, []string{"changed"}),
		LinksInserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "linker",
			Name:      "links_inserted_total",
			Help:      "Internal links inserted into article bodies.",
		}),
		CandidateLookupFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "linker",
			Name:      "candidate_lookup_failures_total",
			Help:      "Candidate queries that failed and were treated as empty.",
		}),
		BatchArticles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linker",
			Name:      "batch_articles_total",
			Help:      "Articles handled by batch runs, by outcome.",
		}, []string{"outcome"}),
		BatchRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linker",
			Name:      "batch_runs_total",
			Help:      "Batch runs, by final status.",
		}, []string{"status"}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "linker",
			Name:      "batch_run_duration_seconds",
			Help:      "Wall time of batch runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

func (m *Metrics) observeRewrite(links int) {
	if m == nil {
		return
	}
	if links > 0 {
		m.Rewrites.WithLabelValues("true").Inc()
		m.LinksInserted.Add(float64(links))
		return
	}
	m.Rewrites.WithLabelValues("false").Inc()
}

func (m *Metrics) candidateLookupFailed() {
	if m == nil {
		return
	}
	m.CandidateLookupFailures.Inc()
}

func (m *Metrics) observeArticle(outcome string) {
	if m == nil {
		return
	}
	m.BatchArticles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeRun(status string, seconds float64) {
	if m == nil {
		return
	}
	m.BatchRuns.WithLabelValues(status).Inc()
	m.BatchDuration.Observe(seconds)
}
