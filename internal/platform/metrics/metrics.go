// Package metrics exposes indexing and HTTP measurements to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fhirindex"

// Metrics holds every collector on a private registry so several instances
// (tests, embedded servers) never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	// Per-resource indexing
	ResourcesTotal *prometheus.CounterVec
	ParamsTotal    *prometheus.CounterVec
	DanglingTotal  *prometheus.CounterVec
	IndexDuration  *prometheus.HistogramVec

	// Batch reindex
	BatchesTotal           *prometheus.CounterVec
	BatchResourcesTotal    *prometheus.CounterVec
	BatchDuration          prometheus.Histogram
	BatchParamsPerResource prometheus.Gauge

	// Index health
	HealthResources          prometheus.Gauge
	HealthParamsPerResource  prometheus.Gauge
	HealthZeroParamResources prometheus.Gauge
	HealthStaleResources     prometheus.Gauge
	HealthDangling           prometheus.Gauge
	Healthy                  prometheus.Gauge

	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates and registers all collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.ResourcesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resources_indexed_total",
			Help:      "Resources that reached a final indexing state, by type and state",
		},
		[]string{"resource_type", "state"},
	)
	m.ParamsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_params_extracted_total",
			Help:      "Search parameter records extracted",
		},
		[]string{"resource_type"},
	)
	m.DanglingTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dangling_references_total",
			Help:      "References that did not resolve to a stored resource",
		},
		[]string{"resource_type"},
	)
	m.IndexDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resource_index_duration_seconds",
			Help:      "Time to extract and persist one resource",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"resource_type"},
	)

	m.BatchesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reindex_batches_total",
			Help:      "Full reindex runs, by outcome",
		},
		[]string{"outcome"},
	)
	m.BatchResourcesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reindex_resources_total",
			Help:      "Resources handled by full reindex runs, by result",
		},
		[]string{"result"},
	)
	m.BatchDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reindex_duration_seconds",
			Help:      "Duration of full reindex runs",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		},
	)
	m.BatchParamsPerResource = f.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reindex_params_per_resource",
			Help:      "Mean type-specific search parameters per resource in the last full reindex",
		},
	)

	m.HealthResources = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "index_resources", Help: "Indexed resources",
	})
	m.HealthParamsPerResource = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "index_params_per_resource", Help: "Mean type-specific search parameters per indexed resource",
	})
	m.HealthZeroParamResources = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "index_zero_type_param_resources", Help: "Resources of supported types with no type-specific search parameters",
	})
	m.HealthStaleResources = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "index_stale_resources", Help: "Resources indexed under another registry version",
	})
	m.HealthDangling = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "index_dangling_references", Help: "Stored dangling references",
	})
	m.Healthy = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "index_healthy", Help: "1 when the last health check passed",
	})

	m.RequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)
	m.RequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveResource records one resource reaching a final state.
func (m *Metrics) ObserveResource(resourceType, state string, params, dangling int, elapsed time.Duration) {
	m.ResourcesTotal.WithLabelValues(resourceType, state).Inc()
	m.ParamsTotal.WithLabelValues(resourceType).Add(float64(params))
	if dangling > 0 {
		m.DanglingTotal.WithLabelValues(resourceType).Add(float64(dangling))
	}
	m.IndexDuration.WithLabelValues(resourceType).Observe(elapsed.Seconds())
}

// ObserveBatch records a finished full reindex. outcome is "healthy",
// "unhealthy" or "cancelled".
func (m *Metrics) ObserveBatch(outcome string, indexed, skipped, failed int, paramsPerResource float64, elapsed time.Duration) {
	m.BatchesTotal.WithLabelValues(outcome).Inc()
	m.BatchResourcesTotal.WithLabelValues("indexed").Add(float64(indexed))
	m.BatchResourcesTotal.WithLabelValues("skipped").Add(float64(skipped))
	m.BatchResourcesTotal.WithLabelValues("failed").Add(float64(failed))
	m.BatchDuration.Observe(elapsed.Seconds())
	if indexed > 0 {
		m.BatchParamsPerResource.Set(paramsPerResource)
	}
}

// SetHealth publishes the latest index health check.
func (m *Metrics) SetHealth(healthy bool, resources, zeroParam, stale, dangling int, paramsPerResource float64) {
	m.HealthResources.Set(float64(resources))
	m.HealthParamsPerResource.Set(paramsPerResource)
	m.HealthZeroParamResources.Set(float64(zeroParam))
	m.HealthStaleResources.Set(float64(stale))
	m.HealthDangling.Set(float64(dangling))
	if healthy {
		m.Healthy.Set(1)
	} else {
		m.Healthy.Set(0)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Middleware instruments request counts and latency by route template.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unknown"
			}
			method := c.Request().Method
			status := strconv.Itoa(c.Response().Status)
			m.RequestsTotal.WithLabelValues(method, route, status).Inc()
			m.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
