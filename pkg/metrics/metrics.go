package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records portal telemetry and backend latency as Prometheus
// series on its own registry.
type Collector struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	stale    *prometheus.CounterVec
	requests *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

// New builds a Collector with Go runtime and process collectors attached.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_events_total",
			Help: "Total portal telemetry events by name",
		}, []string{"event"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_stale_responses_total",
			Help: "Responses discarded because a newer request superseded them",
		}, []string{"component"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_backend_request_duration_ms",
			Help:    "Backend request duration in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
		}, []string{"path", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_backend_failures_total",
			Help: "Backend requests that returned no response or a non-2xx status",
		}, []string{"path"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.events,
		c.stale,
		c.requests,
		c.failures,
	)
	return c
}

// Record implements portal.Telemetry.
func (c *Collector) Record(_ context.Context, event string, _ map[string]any) {
	c.events.WithLabelValues(event).Inc()
	if strings.HasSuffix(event, ".stale") {
		c.stale.WithLabelValues(component(event)).Inc()
	}
}

// ObserveRequest implements backend.RequestObserver.
func (c *Collector) ObserveRequest(path string, status int, elapsed time.Duration) {
	c.requests.WithLabelValues(path, strconv.Itoa(status)).Observe(float64(elapsed.Milliseconds()))
	if status == 0 || status >= 300 {
		c.failures.WithLabelValues(path).Inc()
	}
}

// Registry exposes the registry for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry for scraping.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// component extracts "options" from "portal.options.stale".
func component(event string) string {
	parts := strings.Split(event, ".")
	if len(parts) < 3 {
		return event
	}
	return parts[len(parts)-2]
}
