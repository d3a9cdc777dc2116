// Package metrics exposes the Prometheus instruments of the watch service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "watch_service"

// Metrics groups the service's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	ScanPages       prometheus.Counter
	ScanErrors      prometheus.Counter
	ListingsScanned prometheus.Counter
	Runs            *prometheus.CounterVec
	NewMatches      prometheus.Counter
	RunDuration     prometheus.Histogram
	BatchWatches    prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScanPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_pages_total",
			Help:      "Catalog pages fetched by scans.",
		}),
		ScanErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_errors_total",
			Help:      "Scans aborted by a catalog error.",
		}),
		ListingsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_scanned_total",
			Help:      "Listings evaluated against criteria.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_runs_total",
			Help:      "Watch runs by outcome.",
		}, []string{"outcome"}),
		NewMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "new_matches_total",
			Help:      "Listings newly surfaced to watch owners.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "watch_run_duration_seconds",
			Help:      "Duration of a single watch run.",
			Buckets:   prometheus.DefBuckets,
		}),
		BatchWatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_watches",
			Help:      "Watches processed by the most recent run-all batch.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ScanPages, m.ScanErrors, m.ListingsScanned, m.Runs, m.NewMatches, m.RunDuration, m.BatchWatches)
	}
	return m
}

func (m *Metrics) PageFetched() {
	if m != nil {
		m.ScanPages.Inc()
	}
}

func (m *Metrics) ScanFailed() {
	if m != nil {
		m.ScanErrors.Inc()
	}
}

func (m *Metrics) ListingEvaluated() {
	if m != nil {
		m.ListingsScanned.Inc()
	}
}

// RunFinished records one run with its outcome label and new-match count.
func (m *Metrics) RunFinished(outcome string, newMatches int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(outcome).Inc()
	m.NewMatches.Add(float64(newMatches))
	m.RunDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) BatchFinished(watches int) {
	if m != nil {
		m.BatchWatches.Set(float64(watches))
	}
}
