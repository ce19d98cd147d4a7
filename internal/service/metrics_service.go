package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// closure workflow.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheHitRatio   prometheus.Gauge
	closureTotal    *prometheus.CounterVec
	consolidated    prometheus.Counter
	reopenings      *prometheus.CounterVec
	notifications   *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "readiness_cache_hits_total",
		Help: "Total readiness cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "readiness_cache_misses_total",
		Help: "Total readiness cache misses",
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "readiness_cache_hit_ratio",
		Help: "Ratio of readiness cache hits to total lookups",
	})

	closureTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "unit_closures_total",
		Help: "Unit closure attempts by outcome",
	}, []string{"outcome"})

	consolidated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consolidated_unit_grades_total",
		Help: "Total student unit grades written by consolidation",
	})

	reopenings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reopening_decisions_total",
		Help: "Processed reopening requests by decision",
	}, []string{"decision"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "teacher_notifications_total",
		Help: "Generated teacher notifications by kind",
	}, []string{"kind"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses, cacheHitRatio,
		closureTotal, consolidated, reopenings, notifications, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		cacheHitRatio:   cacheHitRatio,
		closureTotal:    closureTotal,
		consolidated:    consolidated,
		reopenings:      reopenings,
		notifications:   notifications,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheLookup records a readiness cache hit or miss and updates the ratio.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// RecordClosure counts a closure attempt by outcome.
func (m *MetricsService) RecordClosure(outcome string, consolidated int) {
	if m == nil {
		return
	}
	m.closureTotal.WithLabelValues(outcome).Inc()
	if consolidated > 0 {
		m.consolidated.Add(float64(consolidated))
	}
}

// RecordReopeningDecision counts a processed reopening request.
func (m *MetricsService) RecordReopeningDecision(decision string) {
	if m == nil {
		return
	}
	m.reopenings.WithLabelValues(decision).Inc()
}

// RecordNotification counts a generated teacher notification.
func (m *MetricsService) RecordNotification(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind).Inc()
}
