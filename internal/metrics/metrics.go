// Package metrics exposes Prometheus collectors for the link pipeline and its
// HTTP API.
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

// Link outcomes recorded by ObserveLinks.
const (
	LinkEmitted  = "emitted"
	LinkRejected = "rejected"
)

var (
	linksTotal                 *prometheus.CounterVec
	parseFailuresTotal         prometheus.Counter
	idleTimeoutsTotal          prometheus.Counter
	fetchesInFlight            prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. Repeated calls are
// no-ops.
func Init() {
	once.Do(func() {
		linksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkpipe_links_total",
				Help: "Anchor references seen by the extract stage, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		parseFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "linkpipe_parse_failures_total",
				Help: "Pages whose markup could not be parsed.",
			},
		)

		idleTimeoutsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "linkpipe_idle_timeouts_total",
				Help: "Runs whose extract stage stopped on the idle timeout.",
			},
		)

		fetchesInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "linkpipe_fetches_in_flight",
				Help: "Fetches currently outstanding across all runs.",
			},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from rawURL, or "unknown".
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

// ObserveLinks adds n references with the given outcome.
func ObserveLinks(outcome string, n int) {
	if n <= 0 {
		return
	}
	linksTotal.WithLabelValues(outcome).Add(float64(n))
}

// ObserveParseFailure counts a page whose markup failed to parse.
func ObserveParseFailure() {
	parseFailuresTotal.Inc()
}

// ObserveIdleTimeout counts an extract stage that gave up waiting for pages.
func ObserveIdleTimeout() {
	idleTimeoutsTotal.Inc()
}

// IncFetchesInFlight marks a fetch as started.
func IncFetchesInFlight() {
	fetchesInFlight.Inc()
}

// DecFetchesInFlight marks a fetch as finished.
func DecFetchesInFlight() {
	fetchesInFlight.Dec()
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
