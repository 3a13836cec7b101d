package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry for HTTP, ingest, realtime and merge instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	ingestAttempts  *prometheus.CounterVec
	ingestOutcomes  *prometheus.CounterVec
	companionWrites *prometheus.CounterVec
	realtimeEvents  *prometheus.CounterVec
	mergeDuration   *prometheus.HistogramVec
	sourceFetches   *prometheus.CounterVec
	viewRecords     *prometheus.GaugeVec
	bufferPending   *prometheus.GaugeVec
}

// NewMetricsService registers every collector on a private registry.
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

	ingestAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_attempts_total",
		Help: "Insert attempts per strategy and classified result",
	}, []string{"strategy", "result"})

	ingestOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_outcomes_total",
		Help: "Final outcome of each submission",
	}, []string{"outcome"})

	companionWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_companion_writes_total",
		Help: "Companion tracking inserts by result",
	}, []string{"result"})

	realtimeEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_total",
		Help: "Realtime changes received per table, type and apply result",
	}, []string{"table", "type", "result"})

	mergeDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "merge_duration_seconds",
		Help:    "Time spent fetching and merging sources per entity",
		Buckets: prometheus.DefBuckets,
	}, []string{"entity"})

	sourceFetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "merge_source_fetches_total",
		Help: "Source snapshot fetches by source and result",
	}, []string{"source", "result"})

	viewRecords := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "view_records",
		Help: "Records currently held in the merged view per entity",
	}, []string{"entity"})

	bufferPending := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "buffer_pending_records",
		Help: "Locally buffered records awaiting sync per collection",
	}, []string{"collection"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, ingestAttempts, ingestOutcomes, companionWrites,
		realtimeEvents, mergeDuration, sourceFetches, viewRecords, bufferPending, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		ingestAttempts:  ingestAttempts,
		ingestOutcomes:  ingestOutcomes,
		companionWrites: companionWrites,
		realtimeEvents:  realtimeEvents,
		mergeDuration:   mergeDuration,
		sourceFetches:   sourceFetches,
		viewRecords:     viewRecords,
		bufferPending:   bufferPending,
	}
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// RecordIngestAttempt counts one strategy attempt.
func (m *MetricsService) RecordIngestAttempt(strategy, result string) {
	if m == nil {
		return
	}
	m.ingestAttempts.WithLabelValues(strategy, result).Inc()
}

// RecordIngestOutcome counts the final outcome of a submission.
func (m *MetricsService) RecordIngestOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ingestOutcomes.WithLabelValues(outcome).Inc()
}

// RecordCompanionWrite counts a companion tracking insert.
func (m *MetricsService) RecordCompanionWrite(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.companionWrites.WithLabelValues(result).Inc()
}

// RecordRealtimeEvent counts an applied or ignored change.
func (m *MetricsService) RecordRealtimeEvent(table, changeType, result string) {
	if m == nil {
		return
	}
	m.realtimeEvents.WithLabelValues(table, changeType, result).Inc()
}

// ObserveMerge records the duration of a fetch and merge cycle.
func (m *MetricsService) ObserveMerge(entity string, duration time.Duration) {
	if m == nil {
		return
	}
	m.mergeDuration.WithLabelValues(entity).Observe(duration.Seconds())
}

// RecordSourceFetch counts a source snapshot fetch.
func (m *MetricsService) RecordSourceFetch(source string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.sourceFetches.WithLabelValues(source, result).Inc()
}

// SetViewSize publishes the merged view size.
func (m *MetricsService) SetViewSize(entity string, size int) {
	if m == nil {
		return
	}
	m.viewRecords.WithLabelValues(entity).Set(float64(size))
}

// SetBufferPending publishes how many records await sync.
func (m *MetricsService) SetBufferPending(collection string, pending int) {
	if m == nil {
		return
	}
	m.bufferPending.WithLabelValues(collection).Set(float64(pending))
}
