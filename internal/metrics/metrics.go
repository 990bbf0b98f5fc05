// Package metrics exposes Prometheus collectors for the icon harvester.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Word and job status label values.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusPanicked  = "panicked"
	StatusRejected  = "rejected"
)

var (
	harvesterWordsTotal         *prometheus.CounterVec
	harvesterIconsTotal         prometheus.Counter
	harvesterIconBytesTotal     prometheus.Counter
	harvesterJobsTotal          *prometheus.CounterVec
	harvesterJobDuration        prometheus.Histogram
	harvesterActiveWorkers      prometheus.Gauge
	harvesterQueueDepth         prometheus.Gauge
	harvesterBatchesTotal       prometheus.Counter
	harvesterBatchWords         prometheus.Histogram
	harvesterHeadlessPromotions *prometheus.CounterVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; every observer calls it.
func Init() {
	once.Do(func() {
		harvesterWordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_words_total",
				Help: "Total number of words processed, labeled by status.",
			},
			[]string{"status"},
		)

		harvesterIconsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_icons_downloaded_total",
				Help: "Total number of icon files saved to a workspace.",
			},
		)

		harvesterIconBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_icon_bytes_total",
				Help: "Total number of icon bytes saved to a workspace.",
			},
		)

		harvesterJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_jobs_total",
				Help: "Total number of worker pool jobs settled, labeled by status.",
			},
			[]string{"status"},
		)

		harvesterJobDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_job_duration_seconds",
				Help:    "Histogram of worker pool job run times.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		harvesterActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		harvesterQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_queue_depth",
				Help: "Number of jobs waiting for a free worker.",
			},
		)

		harvesterBatchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_batches_total",
				Help: "Total number of batches processed.",
			},
		)

		harvesterBatchWords = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_batch_words",
				Help:    "Histogram of words per batch.",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
		)

		harvesterHeadlessPromotions = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_headless_promotions_total",
				Help: "Headless render attempts after an empty plain fetch, labeled by result.",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveWord records the final status of one word.
func ObserveWord(status string) {
	Init()
	harvesterWordsTotal.WithLabelValues(status).Inc()
}

// ObserveIcon records one saved icon file.
func ObserveIcon(bytesSaved int) {
	Init()
	harvesterIconsTotal.Inc()
	if bytesSaved > 0 {
		harvesterIconBytesTotal.Add(float64(bytesSaved))
	}
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string, duration time.Duration) {
	Init()
	harvesterJobsTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		harvesterJobDuration.Observe(duration.Seconds())
	}
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	harvesterActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	harvesterActiveWorkers.Dec()
}

// SetQueueDepth records how many jobs are waiting.
func SetQueueDepth(depth int) {
	Init()
	harvesterQueueDepth.Set(float64(depth))
}

// ObserveBatch records one processed batch and its size.
func ObserveBatch(words int) {
	Init()
	harvesterBatchesTotal.Inc()
	harvesterBatchWords.Observe(float64(words))
}

// ObserveHeadlessPromotion records a headless render attempt.
func ObserveHeadlessPromotion(result string) {
	Init()
	harvesterHeadlessPromotions.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
