// Package metrics exposes the Prometheus collectors of the scheduler service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eslsoft/spacedrep/internal/infrastructure/config"
)

const defaultNamespace = "spacedrep"

// Collector holds all Prometheus metrics for the application. A nil *Collector
// is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Reviews        *prometheus.CounterVec
	ReviewInterval prometheus.Histogram
	ResponseTime   *prometheus.HistogramVec
	Fallbacks      *prometheus.CounterVec
	ItemsCreated   prometheus.Counter
	QueueBuilds    prometheus.Counter
	QueueSize      prometheus.Histogram
	StorageErrors  *prometheus.CounterVec
}

// NewCollector creates a collector registered on its own registry.
func NewCollector(cfg *config.Config) *Collector {
	namespace := defaultNamespace
	if cfg != nil && cfg.Metrics.Namespace != "" {
		namespace = cfg.Metrics.Namespace
	}
	return newCollector(namespace)
}

func newCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_total",
			Help:      "Recorded reviews by response quality",
		}, []string{"quality"}),
		ReviewInterval: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "review_interval_hours",
			Help:      "Interval assigned by the scheduler, in hours",
			Buckets:   []float64{1, 6, 24, 72, 168, 336, 720},
		}),
		ResponseTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "review_response_seconds",
			Help:      "Learner response time reported with a review",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"exercise_type"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "numeric_fallbacks_total",
			Help:      "Non-finite model values replaced by defaults",
		}, []string{"stage"}),
		ItemsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_initialized_total",
			Help:      "Learner content records created by initialization",
		}),
		QueueBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_builds_total",
			Help:      "Review queues computed",
		}),
		QueueSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_size",
			Help:      "Number of items returned per review queue",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		}),
		StorageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Storage failures surfaced to callers",
		}, []string{"op"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.HTTPRequests, c.HTTPDuration,
		c.Reviews, c.ReviewInterval, c.ResponseTime, c.Fallbacks,
		c.ItemsCreated, c.QueueBuilds, c.QueueSize, c.StorageErrors,
	)
	return c
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the exposition format for this collector's registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveReview records a persisted review outcome. exerciseType must come from
// a bounded set since it becomes a label value.
func (c *Collector) ObserveReview(quality int, intervalHours float64, exerciseType string, responseSeconds *float64) {
	if c == nil {
		return
	}
	c.Reviews.WithLabelValues(strconv.Itoa(quality)).Inc()
	c.ReviewInterval.Observe(intervalHours)
	if responseSeconds != nil {
		if exerciseType == "" {
			exerciseType = "unspecified"
		}
		c.ResponseTime.WithLabelValues(exerciseType).Observe(*responseSeconds)
	}
}

func (c *Collector) ObserveFallback(stage string) {
	if c == nil {
		return
	}
	c.Fallbacks.WithLabelValues(stage).Inc()
}

func (c *Collector) ObserveCreated(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.ItemsCreated.Add(float64(n))
}

func (c *Collector) ObserveQueue(size int) {
	if c == nil {
		return
	}
	c.QueueBuilds.Inc()
	c.QueueSize.Observe(float64(size))
}

func (c *Collector) ObserveStorageError(op string) {
	if c == nil {
		return
	}
	c.StorageErrors.WithLabelValues(op).Inc()
}
