// Package metrics exposes Prometheus collectors for the harvester service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvestPagesTotal          *prometheus.CounterVec
	harvestCandidatesTotal     *prometheus.CounterVec
	harvestRecordsStagedTotal  *prometheus.CounterVec
	importOutcomesTotal        *prometheus.CounterVec
	harvestJobsTotal           *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvestPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_pages_total",
				Help: "Total number of pages fetched, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		harvestCandidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_candidates_total",
				Help: "Total number of raw candidates produced, labeled by source.",
			},
			[]string{"source"},
		)

		harvestRecordsStagedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_records_staged_total",
				Help: "Total staged record outcomes, labeled by result (written, duplicate, rejected).",
			},
			[]string{"result"},
		)

		importOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "import_outcomes_total",
				Help: "Total import row outcomes, labeled by result (created, updated, skipped).",
			},
			[]string{"result"},
		)

		harvestJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_jobs_total",
				Help: "Total number of harvest jobs processed, labeled by terminal state.",
			},
			[]string{"state"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch increments the page fetch counter.
func ObserveFetch(site, outcome string) {
	harvestPagesTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveCandidates adds to the raw candidate counter for a source.
func ObserveCandidates(source string, n int) {
	if n > 0 {
		harvestCandidatesTotal.WithLabelValues(source).Add(float64(n))
	}
}

// ObserveStaged increments the staged record counter for a result.
func ObserveStaged(result string) {
	harvestRecordsStagedTotal.WithLabelValues(result).Inc()
}

// ObserveImport increments the import outcome counter for a result.
func ObserveImport(result string) {
	importOutcomesTotal.WithLabelValues(result).Inc()
}

// ObserveJob increments the job counter for the given terminal state.
func ObserveJob(state string) {
	harvestJobsTotal.WithLabelValues(state).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
