// Package metrics provides Prometheus metrics for the spectrum extraction engine.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics of the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Dataset
	eventsLoaded prometheus.Gauge
	channelCount prometheus.Gauge
	storeBuilds  prometheus.Counter

	// Background fitting
	fitsTotal     *prometheus.CounterVec
	fitLatency    prometheus.Histogram
	fitIterations prometheus.Histogram
	fitErrors     *prometheus.CounterVec
	lrtTests      prometheus.Counter
	orderSelected *prometheus.CounterVec

	// Spectra and selections
	spectraBuilt       *prometheus.CounterVec
	selectionChanges   *prometheus.CounterVec
	selectionRejected  *prometheus.CounterVec
	refitLatency       prometheus.Histogram
	lastRefitUnix      prometheus.Gauge
	backgroundChannels prometheus.Gauge

	// Worker pool and job queue
	workerActiveCount prometheus.Gauge
	workerJobs        prometheus.Counter
	workerJobLatency  prometheus.Histogram
	workerErrors      prometheus.Counter
	queueDepth        prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueRejected     prometheus.Counter

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "spectre",
		subsystem:        "tte",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	m.eventsLoaded = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("events_loaded"),
		Help: "Number of events held by the active event store",
	})
	m.channelCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("channels"),
		Help: "Number of energy channels of the active event store",
	})
	m.storeBuilds = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("store_builds_total"),
		Help: "Total number of event stores built",
	})

	m.fitsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("fits_total"),
		Help: "Total number of polynomial background fits by order",
	}, []string{"order"})
	m.fitLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("fit_latency_milliseconds"),
		Help:    "Latency of single-channel polynomial fits in milliseconds",
		Buckets: m.histogramBuckets,
	})
	m.fitIterations = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("fit_iterations"),
		Help:    "Fisher scoring iterations needed per fit",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 100},
	})
	m.fitErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("fit_errors_total"),
		Help: "Total number of failed fits by kind",
	}, []string{"kind"})
	m.lrtTests = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("lrt_tests_total"),
		Help: "Total number of likelihood-ratio tests evaluated",
	})
	m.orderSelected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("order_selected_total"),
		Help: "Background polynomial orders chosen, by order and mode",
	}, []string{"order", "mode"})

	m.spectraBuilt = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("spectra_built_total"),
		Help: "Total number of PHA containers built, by kind",
	}, []string{"kind"})
	m.selectionChanges = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("selection_changes_total"),
		Help: "Accepted selection changes, by kind",
	}, []string{"kind"})
	m.selectionRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("selection_rejected_total"),
		Help: "Rejected selection changes, by kind",
	}, []string{"kind"})
	m.refitLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("refit_latency_milliseconds"),
		Help:    "Latency of a full all-channel background refit in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})
	m.lastRefitUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("last_refit_unix"),
		Help: "Unix time of the last published background model set",
	})
	m.backgroundChannels = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("background_models"),
		Help: "Number of channel models in the published background model set",
	})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("worker_active_count"),
		Help: "Number of fit workers currently running",
	})
	m.workerJobs = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("worker_jobs_total"),
		Help: "Total number of channel jobs completed by fit workers",
	})
	m.workerJobLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("worker_job_latency_milliseconds"),
		Help:    "Latency of channel jobs in milliseconds",
		Buckets: m.histogramBuckets,
	})
	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("worker_errors_total"),
		Help: "Total number of channel jobs that returned an error",
	})
	m.queueDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("queue_depth"),
		Help: "Current number of queued channel jobs",
	})
	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("queue_capacity"),
		Help: "Capacity of the channel job queue",
	})
	m.queueRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("queue_rejected_total"),
		Help: "Jobs refused by a full or closed queue",
	})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("errors_total"),
		Help: "Errors by component and type",
	}, []string{"component", "error_type"})
}

// Dataset metrics.

// RecordStoreBuilt records a newly built event store.
func RecordStoreBuilt(events, channels int) {
	if !globalManager.enabled {
		return
	}
	globalManager.storeBuilds.Inc()
	globalManager.eventsLoaded.Set(float64(events))
	globalManager.channelCount.Set(float64(channels))
}

// Fit metrics.

// RecordFit records a successful single-channel fit.
func RecordFit(order int, latency time.Duration, iterations int) {
	if !globalManager.enabled {
		return
	}
	globalManager.fitsTotal.WithLabelValues(strconv.Itoa(order)).Inc()
	globalManager.fitLatency.Observe(float64(latency.Microseconds()) / 1000)
	globalManager.fitIterations.Observe(float64(iterations))
}

// RecordFitError records a failed fit of the given kind.
func RecordFitError(kind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.fitErrors.WithLabelValues(kind).Inc()
}

// RecordLRT increments the likelihood-ratio test counter.
func RecordLRT() {
	if !globalManager.enabled {
		return
	}
	globalManager.lrtTests.Inc()
}

// RecordOrderSelected records the order chosen for a channel.
func RecordOrderSelected(order int, mode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.orderSelected.WithLabelValues(strconv.Itoa(order), mode).Inc()
}

// Spectrum and selection metrics.

// RecordSpectrumBuilt records a built PHA container of the given kind.
func RecordSpectrumBuilt(kind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.spectraBuilt.WithLabelValues(kind).Inc()
}

// RecordSelectionChange records an accepted selection.
func RecordSelectionChange(kind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.selectionChanges.WithLabelValues(kind).Inc()
}

// RecordSelectionRejected records a rejected selection.
func RecordSelectionRejected(kind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.selectionRejected.WithLabelValues(kind).Inc()
}

// RecordRefit records a published all-channel model set.
func RecordRefit(latency time.Duration, channels int) {
	if !globalManager.enabled {
		return
	}
	globalManager.refitLatency.Observe(float64(latency.Microseconds()) / 1000)
	globalManager.lastRefitUnix.Set(float64(time.Now().Unix()))
	globalManager.backgroundChannels.Set(float64(channels))
}

// Worker and queue metrics.

// UpdateWorkerActiveCount sets the number of running fit workers.
func UpdateWorkerActiveCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerJob records a completed channel job.
func RecordWorkerJob(latency time.Duration, err error) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerJobs.Inc()
	globalManager.workerJobLatency.Observe(float64(latency.Microseconds()) / 1000)
	if err != nil {
		globalManager.workerErrors.Inc()
	}
}

// UpdateQueueDepth sets the number of queued jobs.
func UpdateQueueDepth(depth int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueDepth.Set(float64(depth))
}

// UpdateQueueCapacity sets the job queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueRejected records a job refused by the queue.
func RecordQueueRejected() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueRejected.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// WriteTextfile writes the current registry contents in the Prometheus text
// format, suitable for the node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, customRegistry); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}
