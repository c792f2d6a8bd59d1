package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors holds the Prometheus series exported on /metrics.
type Collectors struct {
	registry *prometheus.Registry

	inFlight        prometheus.Gauge
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	heapUsed        prometheus.Gauge
	heapTotal       prometheus.Gauge
	rss             prometheus.Gauge
	authFailures    *prometheus.CounterVec
	revocations     *prometheus.CounterVec
}

// NewCollectors creates and registers HTTP, memory and auth series in a private registry.
func NewCollectors() *Collectors {
	reg := prometheus.NewRegistry()
	c := &Collectors{
		registry: reg,
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		heapUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "process_heap_used_bytes",
			Help: "Heap bytes in use at the last memory sample.",
		}),
		heapTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "process_heap_total_bytes",
			Help: "Heap bytes obtained from the OS at the last memory sample.",
		}),
		rss: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "process_memory_sys_bytes",
			Help: "Total bytes obtained from the OS at the last memory sample.",
		}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Rejected authentication attempts by error code.",
		}, []string{"code"}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_revocations_total",
			Help: "Token revocation attempts by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		c.inFlight, c.requestsTotal, c.requestDuration,
		c.heapUsed, c.heapTotal, c.rss,
		c.authFailures, c.revocations,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry exposes the underlying registry (build info, tests).
func (c *Collectors) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collectors) RequestStarted()  { c.inFlight.Inc() }
func (c *Collectors) RequestFinished() { c.inFlight.Dec() }

// ObserveRequest records a completed request. route is the matched mux pattern.
func (c *Collectors) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	labels := []string{MethodLabel(method), RouteLabel(route), strconv.Itoa(status)}
	c.requestsTotal.WithLabelValues(labels...).Inc()
	c.requestDuration.WithLabelValues(labels...).Observe(elapsed.Seconds())
}

// ObserveMemory records a memory sample.
func (c *Collectors) ObserveMemory(heapUsed, heapTotal, sys uint64) {
	c.heapUsed.Set(float64(heapUsed))
	c.heapTotal.Set(float64(heapTotal))
	c.rss.Set(float64(sys))
}

// AuthFailure counts a rejected authentication by its error code.
func (c *Collectors) AuthFailure(code string) {
	c.authFailures.WithLabelValues(code).Inc()
}

// Revocation counts a revocation write; ok=false means the store did not record it.
func (c *Collectors) Revocation(ok bool) {
	result := "recorded"
	if !ok {
		result = "dropped"
	}
	c.revocations.WithLabelValues(result).Inc()
}

// OtherRoute labels requests that matched no registered route.
const OtherRoute = "/other"

// RouteLabel turns a mux pattern such as "GET /api/admin/users/{id}/role" into a label.
// Unmatched requests and the catch-all pattern fold into OtherRoute so scanners cannot
// grow the series set.
func RouteLabel(pattern string) string {
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		pattern = strings.TrimSpace(pattern[i+1:])
	}
	if i := strings.IndexByte(pattern, '/'); i > 0 {
		// host-qualified pattern
		pattern = pattern[i:]
	}
	if pattern == "" || pattern == "/" {
		return OtherRoute
	}
	return pattern
}

// MethodLabel keeps standard methods and folds everything else into "OTHER".
func MethodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return method
	}
	return "OTHER"
}
