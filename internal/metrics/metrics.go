// Package metrics exposes Prometheus counters for feed loads, mutations and
// the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/glabrego/moments-cli/internal/mutation"
)

// Collector holds every metric of the app in its own registry.
type Collector struct {
	registry *prometheus.Registry

	Mutations    *prometheus.CounterVec
	Loads        *prometheus.CounterVec
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		Mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mutations_total",
				Help:      "Mutation phase changes by timeline, kind and phase.",
			},
			[]string{"timeline", "kind", "phase"},
		),
		Loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_loads_total",
				Help:      "Feed loads by timeline, source and status.",
			},
			[]string{"timeline", "source", "status"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(c.Mutations, c.Loads, c.HTTPRequests, c.HTTPDuration)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveMutation returns a mutation subscriber that counts events for timeline.
func (c *Collector) ObserveMutation(timeline string) func(mutation.Event) {
	return func(ev mutation.Event) {
		c.Mutations.WithLabelValues(timeline, string(ev.Intent.Kind), string(ev.Phase)).Inc()
	}
}

// ObserveLoad counts one load attempt against source ("remote" or "cache").
func (c *Collector) ObserveLoad(timeline, source string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Loads.WithLabelValues(timeline, source, status).Inc()
}

// ObserveHTTP records one finished request.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
