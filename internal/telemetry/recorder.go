// Package telemetry exposes the service's Prometheus instruments.
package telemetry

import (
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds every metric the service emits. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	aggregationDuration *prometheus.HistogramVec
	aggregationErrors   *prometheus.CounterVec
	unknownStageCodes   *prometheus.CounterVec
	negativeLatency     *prometheus.CounterVec
	scannedRecords      *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	ingestRecords *prometheus.CounterVec
	stageEvents   *prometheus.CounterVec

	mu         sync.Mutex
	codeLabels map[string]struct{}
}

const (
	// MaxStageCodeLabels caps distinct stage_code label values; later codes
	// share OtherStageCode.
	MaxStageCodeLabels = 20
	OtherStageCode     = "other"
	maxStageCodeLen    = 16
)

// NewRecorder registers all instruments on a fresh registry, together with the Go and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry:   reg,
		codeLabels: make(map[string]struct{}),

		aggregationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadfunnel_aggregation_duration_seconds",
				Help:    "Time spent computing an aggregation, including store reads",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"operation"},
		),
		aggregationErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadfunnel_aggregation_errors_total",
				Help: "Aggregations that failed, by kind",
			},
			[]string{"operation", "kind"},
		),
		unknownStageCodes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadfunnel_unknown_stage_codes_total",
				Help: "Lead records counted under the Unknown bucket",
			},
			[]string{"stage_code"},
		),
		negativeLatency: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadfunnel_negative_approval_latency_total",
				Help: "Approved records whose decision date precedes the application date",
			},
			[]string{"bank"},
		),
		scannedRecords: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadfunnel_scanned_records_total",
				Help: "Lead records read from the store by aggregations",
			},
			[]string{"operation"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadfunnel_http_requests_total",
				Help: "HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadfunnel_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ingestRecords: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadfunnel_ingest_records_total",
				Help: "Feed records processed by the ETL",
			},
			[]string{"source", "outcome"},
		),
		stageEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadfunnel_stage_events_total",
				Help: "Stage-change events consumed",
			},
			[]string{"outcome"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer exposes the registry for tests and embedding.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

func (r *Recorder) ObserveAggregation(op string, d time.Duration) {
	if r == nil {
		return
	}
	r.aggregationDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (r *Recorder) AggregationFailed(op, kind string) {
	if r == nil {
		return
	}
	r.aggregationErrors.WithLabelValues(op, kind).Inc()
}

func (r *Recorder) UnknownStageCode(code string) {
	if r == nil {
		return
	}
	r.unknownStageCodes.WithLabelValues(r.stageCodeLabel(code)).Inc()
}

// stageCodeLabel keeps the unknown_stage_codes label set bounded no matter
// what the feeds send.
func (r *Recorder) stageCodeLabel(code string) string {
	if utf8.RuneCountInString(code) > maxStageCodeLen {
		code = string([]rune(code)[:maxStageCodeLen])
	}
	if code == "" {
		code = "empty"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codeLabels[code]; ok {
		return code
	}
	if len(r.codeLabels) >= MaxStageCodeLabels {
		return OtherStageCode
	}
	r.codeLabels[code] = struct{}{}
	return code
}

func (r *Recorder) NegativeLatency(bank string) {
	if r == nil {
		return
	}
	r.negativeLatency.WithLabelValues(bank).Inc()
}

func (r *Recorder) RecordsScanned(op string, n int) {
	if r == nil {
		return
	}
	r.scannedRecords.WithLabelValues(op).Add(float64(n))
}

func (r *Recorder) ObserveHTTP(method, route string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (r *Recorder) IngestRecords(source, outcome string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.ingestRecords.WithLabelValues(source, outcome).Add(float64(n))
}

func (r *Recorder) StageEvent(outcome string) {
	if r == nil {
		return
	}
	r.stageEvents.WithLabelValues(outcome).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
