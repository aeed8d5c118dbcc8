package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	syncedProd prometheus.Counter
	failedProd prometheus.Counter
	suggested  prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// ObserveSync records the outcome of a reconciliation pass.
func (m *Metrics) ObserveSync(synced, failed int) {
	if m == nil {
		return
	}
	if synced > 0 {
		m.syncedProd.Add(float64(synced))
	}
	if failed > 0 {
		m.failedProd.Add(float64(failed))
	}
}

// AddSuggestions counts rebalancing requests opened by the scheduler.
func (m *Metrics) AddSuggestions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.suggested.Add(float64(n))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockledger_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	synced := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockledger_inventory_synced_products_total",
		Help: "Products recomputed by scheduled reconciliation.",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockledger_inventory_sync_failures_total",
		Help: "Products whose scheduled recomputation failed.",
	})
	suggested := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockledger_rebalancing_suggested_total",
		Help: "Rebalancing requests opened from overstock suggestions.",
	})
	registerer.MustRegister(runs, failures, duration, synced, failed, suggested)
	return &Metrics{runs: runs, failures: failures, duration: duration, syncedProd: synced, failedProd: failed, suggested: suggested}
}
