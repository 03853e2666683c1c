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
	harvesterIterationsTotal      *prometheus.CounterVec
	harvesterCursor               prometheus.Gauge
	harvesterCloneDurationSeconds prometheus.Histogram
	harvesterMaxWaitExceededTotal prometheus.Counter
	harvesterListingRequestsTotal *prometheus.CounterVec
	harvesterListingBytesTotal    *prometheus.CounterVec
	harvesterRateLimitSleepSecs   prometheus.Histogram
	harvesterSupervisorRestarts   prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvesterIterationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_iterations_total",
				Help: "Total number of crawl iterations, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		harvesterCursor = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_cursor",
				Help: "Last persisted repository ID cursor.",
			},
		)

		harvesterCloneDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_clone_duration_seconds",
				Help:    "Histogram of observed clone durations.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
			},
		)

		harvesterMaxWaitExceededTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_clone_max_wait_exceeded_total",
				Help: "Clones still running after the advisory wait ceiling.",
			},
		)

		harvesterListingRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_listing_requests_total",
				Help: "Total number of listing API requests, labeled by site and code.",
			},
			[]string{"site", "code"},
		)

		harvesterListingBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_listing_bytes_total",
				Help: "Total number of listing response bytes, labeled by site.",
			},
			[]string{"site"},
		)

		harvesterRateLimitSleepSecs = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_sleep_seconds",
				Help:    "Histogram of hourly rate limit pauses.",
				Buckets: []float64{60, 600, 1800, 2400, 3000, 3600},
			},
		)

		harvesterSupervisorRestarts = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_supervisor_restarts_total",
				Help: "Total number of supervised process restarts.",
			},
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

// ObserveIteration counts one crawl iteration by outcome.
func ObserveIteration(outcome string) {
	Init()
	harvesterIterationsTotal.WithLabelValues(outcome).Inc()
}

// SetCursor records the persisted cursor.
func SetCursor(cursor int64) {
	Init()
	harvesterCursor.Set(float64(cursor))
}

// ObserveClone records how long a clone was observed running.
func ObserveClone(duration time.Duration) {
	Init()
	harvesterCloneDurationSeconds.Observe(duration.Seconds())
}

// ObserveMaxWaitExceeded counts clones crossing the wait ceiling.
func ObserveMaxWaitExceeded() {
	Init()
	harvesterMaxWaitExceededTotal.Inc()
}

// ObserveListing records one listing request. A code of zero marks a
// transport failure.
func ObserveListing(site string, code int, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	harvesterListingRequestsTotal.WithLabelValues(sanitizedSite, strconv.Itoa(code)).Inc()
	if bytesFetched > 0 {
		harvesterListingBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveRateLimitSleep records an hourly window pause.
func ObserveRateLimitSleep(duration time.Duration) {
	Init()
	harvesterRateLimitSleepSecs.Observe(duration.Seconds())
}

// IncSupervisorRestarts counts a supervised restart.
func IncSupervisorRestarts() {
	Init()
	harvesterSupervisorRestarts.Inc()
}
