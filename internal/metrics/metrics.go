// Package metrics exposes Prometheus collectors for the harvester.
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
	fetchTotal                 *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	fetchRetriesTotal          *prometheus.CounterVec
	candidatesTotal            *prometheus.CounterVec
	parseFailuresTotal         *prometheus.CounterVec
	taxonomyMissesTotal        *prometheus.CounterVec
	recordsWrittenTotal        *prometheus.CounterVec
	runDurationSeconds         *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetch_total",
				Help: "Fetch attempts that finished, labeled by host and outcome.",
			},
			[]string{"host", "outcome"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetch_bytes_total",
				Help: "Bytes fetched, labeled by host.",
			},
			[]string{"host"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetch_retries_total",
				Help: "Fetch retries scheduled, labeled by host.",
			},
			[]string{"host"},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_candidates_total",
				Help: "Candidate document links extracted, labeled by session.",
			},
			[]string{"session"},
		)

		parseFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_parse_failures_total",
				Help: "Candidates skipped because a field could not be parsed.",
			},
			[]string{"session", "kind"},
		)

		taxonomyMissesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_taxonomy_misses_total",
				Help: "Author or topic values that did not resolve against the taxonomy.",
			},
			[]string{"kind"},
		)

		recordsWrittenTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_written_total",
				Help: "Records written to session snapshots.",
			},
			[]string{"session"},
		)

		runDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_run_duration_seconds",
				Help:    "Session run latency, labeled by session and status.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"session", "status"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
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

// SanitizeHost extracts a lowercase hostname, or "unknown".
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch counts one finished fetch attempt.
func ObserveFetch(rawURL, outcome string, bytesFetched int) {
	Init()
	host := SanitizeHost(rawURL)
	fetchTotal.WithLabelValues(host, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(host).Add(float64(bytesFetched))
	}
}

// ObserveRetry counts a scheduled retry.
func ObserveRetry(rawURL string) {
	Init()
	fetchRetriesTotal.WithLabelValues(SanitizeHost(rawURL)).Inc()
}

// ObserveCandidates adds extracted candidates for a session.
func ObserveCandidates(session string, n int) {
	Init()
	candidatesTotal.WithLabelValues(session).Add(float64(n))
}

// ObserveParseFailure counts a skipped candidate.
func ObserveParseFailure(session, kind string) {
	Init()
	parseFailuresTotal.WithLabelValues(session, kind).Inc()
}

// ObserveTaxonomyMiss counts an unresolved author or topic.
func ObserveTaxonomyMiss(kind string) {
	Init()
	taxonomyMissesTotal.WithLabelValues(kind).Inc()
}

// ObserveRecordsWritten adds snapshot records for a session.
func ObserveRecordsWritten(session string, n int) {
	Init()
	recordsWrittenTotal.WithLabelValues(session).Add(float64(n))
}

// ObserveRun records a session run latency.
func ObserveRun(session, status string, duration time.Duration) {
	Init()
	runDurationSeconds.WithLabelValues(session, status).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records a rate limiter wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest records an ops server request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
