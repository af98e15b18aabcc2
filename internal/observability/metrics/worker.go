package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the processing worker: per-document outcomes,
// durations, queue lag, temp sweeping and vault usage.
type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
	purgedFiles     *prometheus.CounterVec
	vaultFiles      prometheus.Gauge
	vaultBytes      prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mie",
			Subsystem: "worker",
			Name:      "document_process_total",
			Help:      "Total processed documents by terminal status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mie",
			Subsystem: "worker",
			Name:      "document_process_duration_seconds",
			Help:      "Document processing duration in seconds by terminal status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mie",
			Subsystem: "worker",
			Name:      "document_process_in_flight",
			Help:      "Number of in-flight document processing units.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mie",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between document upload and processing pickup.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	purgedFiles := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mie",
			Subsystem: "worker",
			Name:      "purged_temp_files_total",
			Help:      "Total stale staging/scratch files removed by the sweeper.",
		},
		[]string{"service"},
	)
	vaultFiles := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mie",
			Subsystem: "vault",
			Name:      "files",
			Help:      "Files currently held across the vault roots.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	vaultBytes := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mie",
			Subsystem: "vault",
			Name:      "bytes",
			Help:      "Bytes currently held across the vault roots.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag, purgedFiles, vaultFiles, vaultBytes)

	return &WorkerMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
		purgedFiles:     purgedFiles,
		vaultFiles:      vaultFiles,
		vaultBytes:      vaultBytes,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "completed"
	if err != nil {
		status = "failed"
	}

	m.processTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) AddPurgedFiles(service string, count int) {
	if count <= 0 {
		return
	}
	m.purgedFiles.WithLabelValues(service).Add(float64(count))
}

func (m *WorkerMetrics) SetVaultUsage(files int, bytes int64) {
	m.vaultFiles.Set(float64(files))
	m.vaultBytes.Set(float64(bytes))
}
