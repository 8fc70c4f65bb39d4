// Package metrics exposes Prometheus counters for the Zoho access layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the interface the token manager, executor and cache report to.
type Recorder interface {
	RecordRequest(method string, statusCode int, duration time.Duration)
	RecordNetworkError(method string)
	RecordTokenRefresh(success bool)
	RecordCacheLookup(resource string, hit bool)
	RecordTimeLog(success bool)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	requests      *prometheus.CounterVec
	networkErrors *prometheus.CounterVec
	latency       prometheus.Histogram
	refreshes     *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	timeLogs      *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callog_zoho_requests_total",
			Help: "Zoho API responses by method and status code",
		}, []string{"method", "status_code"}),
		networkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callog_zoho_network_errors_total",
			Help: "Zoho API calls that failed before a response",
		}, []string{"method"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "callog_zoho_request_duration_seconds",
			Help:    "Zoho API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callog_zoho_token_refresh_total",
			Help: "Access token refresh attempts by result",
		}, []string{"result"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callog_zoho_cache_lookups_total",
			Help: "Cache lookups by resource and result",
		}, []string{"resource", "result"}),
		timeLogs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callog_zoho_time_logs_total",
			Help: "Submitted time logs by result",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.requests,
		c.networkErrors,
		c.latency,
		c.refreshes,
		c.cacheLookups,
		c.timeLogs,
	)
	return c
}

func (c *Collector) RecordRequest(method string, statusCode int, duration time.Duration) {
	c.requests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.latency.Observe(duration.Seconds())
}

func (c *Collector) RecordNetworkError(method string) {
	c.networkErrors.WithLabelValues(method).Inc()
}

func (c *Collector) RecordTokenRefresh(success bool) {
	c.refreshes.WithLabelValues(result(success)).Inc()
}

func (c *Collector) RecordCacheLookup(resource string, hit bool) {
	label := "miss"
	if hit {
		label = "hit"
	}
	c.cacheLookups.WithLabelValues(resource, label).Inc()
}

func (c *Collector) RecordTimeLog(success bool) {
	c.timeLogs.WithLabelValues(result(success)).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Handler serves the metrics registered on gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything. Used when no registry is wired.
type Nop struct{}

func (Nop) RecordRequest(string, int, time.Duration) {}
func (Nop) RecordNetworkError(string)                {}
func (Nop) RecordTokenRefresh(bool)                  {}
func (Nop) RecordCacheLookup(string, bool)           {}
func (Nop) RecordTimeLog(bool)                       {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}
