package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/openfroyo/catalogd/pkg/engine"
)

// Metrics provides Prometheus metrics for catalogd. It implements engine.Recorder.
type Metrics struct {
	config MetricsConfig

	// Dispatch metrics
	workItemsSent *prometheus.CounterVec
	sendDuration  *prometheus.HistogramVec

	// Callback metrics
	callbacks        *prometheus.CounterVec
	callbackDuration *prometheus.HistogramVec

	// Chain metrics
	integrityFaults *prometheus.CounterVec
	rolledBack      prometheus.Counter
	expired         prometheus.Counter
	pending         prometheus.Gauge

	// API metrics
	httpRequests *prometheus.CounterVec

	registry *prometheus.Registry
}

var _ engine.Recorder = (*Metrics)(nil)

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		workItemsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workitems_sent_total",
				Help:      "Total number of work items handed to the sender",
			},
			[]string{"kind", "operation", "result"},
		),
		sendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workitem_send_duration_seconds",
				Help:      "Duration of work item dispatch in seconds",
				Buckets:   buckets,
			},
			[]string{"kind", "operation"},
		),

		callbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workitem_callbacks_total",
				Help:      "Total number of resolved work item callbacks",
			},
			[]string{"kind", "operation", "outcome"},
		),
		callbackDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workitem_callback_duration_seconds",
				Help:      "Duration of callback resolution in seconds",
				Buckets:   buckets,
			},
			[]string{"kind", "operation"},
		),

		integrityFaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workitem_integrity_faults_total",
				Help:      "Total number of chain integrity faults by error code",
			},
			[]string{"code"},
		),
		rolledBack: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workitems_rolled_back_total",
				Help:      "Total number of queued work items discarded after a failure",
			},
		),
		expired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workitems_expired_total",
				Help:      "Total number of dispatched work items failed by the pending deadline",
			},
		),
		pending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workitems_pending",
				Help:      "Current number of persisted work items",
			},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"route", "code"},
		),
	}

	registry.MustRegister(
		m.workItemsSent,
		m.sendDuration,
		m.callbacks,
		m.callbackDuration,
		m.integrityFaults,
		m.rolledBack,
		m.expired,
		m.pending,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m, nil
}

// RecordDispatch counts a send attempt and observes its duration.
func (m *Metrics) RecordDispatch(action engine.Action, result engine.DispatchResult, duration time.Duration) {
	if m.workItemsSent == nil {
		return
	}
	kind, op := string(action.Kind), string(action.Operation)
	m.workItemsSent.WithLabelValues(kind, op, result.String()).Inc()
	m.sendDuration.WithLabelValues(kind, op).Observe(duration.Seconds())
}

// RecordOutcome counts a resolved callback and observes its resolution time.
func (m *Metrics) RecordOutcome(action engine.Action, success bool, duration time.Duration) {
	if m.callbacks == nil {
		return
	}
	outcome := "fail"
	if success {
		outcome = "success"
	}
	kind, op := string(action.Kind), string(action.Operation)
	m.callbacks.WithLabelValues(kind, op, outcome).Inc()
	m.callbackDuration.WithLabelValues(kind, op).Observe(duration.Seconds())
}

// RecordIntegrityFault counts an integrity fault by code.
func (m *Metrics) RecordIntegrityFault(code string) {
	if m.integrityFaults == nil {
		return
	}
	m.integrityFaults.WithLabelValues(code).Inc()
}

// RecordRollback adds discarded chain members.
func (m *Metrics) RecordRollback(count int) {
	if m.rolledBack == nil || count <= 0 {
		return
	}
	m.rolledBack.Add(float64(count))
}

// RecordExpired adds work items failed by the pending deadline.
func (m *Metrics) RecordExpired(count int) {
	if m.expired == nil || count <= 0 {
		return
	}
	m.expired.Add(float64(count))
}

// SetPendingWorkItems sets the current number of persisted work items.
func (m *Metrics) SetPendingWorkItems(count int) {
	if m.pending == nil {
		return
	}
	m.pending.Set(float64(count))
}

// RecordHTTPRequest counts an API request by route and status code.
func (m *Metrics) RecordHTTPRequest(route string, code int) {
	if m.httpRequests == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts a dedicated metrics listener when one is configured.
// It returns the server so the caller can shut it down, or nil when none was started.
func (m *Metrics) StartMetricsServer(logger zerolog.Logger) *http.Server {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Str("address", m.config.ListenAddress).Msg("Metrics server error")
		}
	}()

	return server
}
