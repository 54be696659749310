package monitoring

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector owns the service's prometheus registry. Metric names
// are prefixed with the service name so dashboards can share queries
// across deployments.
type MetricsCollector struct {
	serviceName string
	registry    *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	activeConnections   prometheus.Gauge
}

// NewMetricsCollector builds a collector with its own registry plus the
// standard HTTP metrics and go runtime collectors.
func NewMetricsCollector(serviceName, version, commit string) *MetricsCollector {
	mc := &MetricsCollector{
		// Prometheus metric names cannot contain hyphens.
		serviceName: strings.ReplaceAll(serviceName, "-", "_"),
		registry:    prometheus.NewRegistry(),
	}

	mc.registry.MustRegister(collectors.NewGoCollector())
	mc.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mc.httpRequestsTotal = mc.NewCounter("http_requests_total",
		"Total number of HTTP requests", []string{"method", "endpoint", "status"})
	mc.httpRequestDuration = mc.NewHistogram("http_request_duration_seconds",
		"HTTP request duration in seconds", []string{"method", "endpoint"}, nil)

	mc.activeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: mc.serviceName + "_active_connections",
		Help: "Number of active connections",
	})
	mc.registry.MustRegister(mc.activeConnections)

	info := mc.NewGauge("service_info", "Service build information", []string{"version", "commit"})
	info.WithLabelValues(version, commit).Set(1)

	return mc
}

// NewCounter registers a service-prefixed counter vector.
func (mc *MetricsCollector) NewCounter(name, help string, labels []string) *prometheus.CounterVec {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: mc.serviceName + "_" + name,
		Help: help,
	}, labels)
	mc.registry.MustRegister(counter)
	return counter
}

// NewGauge registers a service-prefixed gauge vector.
func (mc *MetricsCollector) NewGauge(name, help string, labels []string) *prometheus.GaugeVec {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: mc.serviceName + "_" + name,
		Help: help,
	}, labels)
	mc.registry.MustRegister(gauge)
	return gauge
}

// NewHistogram registers a service-prefixed histogram vector. Nil buckets
// fall back to the prometheus defaults.
func (mc *MetricsCollector) NewHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    mc.serviceName + "_" + name,
		Help:    help,
		Buckets: buckets,
	}, labels)
	mc.registry.MustRegister(histogram)
	return histogram
}

// MetricsMiddleware observes request counts, durations and in-flight
// connections. The route template is used as the endpoint label so path
// parameters don't explode cardinality.
func (mc *MetricsCollector) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		mc.activeConnections.Inc()
		defer mc.activeConnections.Dec()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		mc.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
		mc.httpRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves this collector's registry.
func (mc *MetricsCollector) Handler() gin.HandlerFunc {
	handler := promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// CreateMutationMetrics creates the metric set for the optimistic
// mutation pipeline.
func (mc *MetricsCollector) CreateMutationMetrics() (
	*prometheus.CounterVec, // mutations_total
	*prometheus.CounterVec, // mutation_rollbacks_total
	*prometheus.HistogramVec, // mutation_commit_duration_seconds
) {
	mutations := mc.NewCounter("mutations_total", "Total optimistic mutations", []string{"intent", "status"})
	rollbacks := mc.NewCounter("mutation_rollbacks_total", "Optimistic mutations rolled back", []string{"intent"})
	duration := mc.NewHistogram("mutation_commit_duration_seconds", "Remote commit duration", []string{"intent"}, nil)
	return mutations, rollbacks, duration
}
