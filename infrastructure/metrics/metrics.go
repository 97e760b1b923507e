// Package metrics provides Prometheus metrics collection for the harvester
// pipeline: hub API calls, discovery/validation/retention phase outcomes,
// circuit breaker state, and sync run health.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/R3E-Network/gguf-harvester/infrastructure/config"
)

// Metrics holds all Prometheus metrics for a sync run.
type Metrics struct {
	// Hub API client metrics
	HubRequestsTotal   *prometheus.CounterVec
	HubRequestDuration *prometheus.HistogramVec

	// Circuit breaker / error recovery
	CircuitBreakerState *prometheus.GaugeVec
	ErrorsTotal         *prometheus.CounterVec
	RetriesTotal        *prometheus.CounterVec

	// Discovery
	ModelsDiscoveredTotal *prometheus.CounterVec

	// Validation
	ModelsValidatedTotal *prometheus.CounterVec
	RepairsAppliedTotal  prometheus.Counter

	// Retention
	ModelsRetainedTotal prometheus.Gauge
	ModelsPrunedTotal   prometheus.Counter

	// Completeness
	CompletenessScore prometheus.Gauge

	// Orchestration / sync runs
	SyncRunsTotal    *prometheus.CounterVec
	SyncRunDuration  prometheus.Histogram
	LastSyncUnixTime prometheus.Gauge
	RollbacksTotal   prometheus.Counter

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		HubRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hub_requests_total",
				Help: "Total number of requests made to the model hub API",
			},
			[]string{"endpoint", "status"},
		),
		HubRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hub_request_duration_seconds",
				Help:    "Model hub API request duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint"},
		),

		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state per operation key (0=closed, 1=half-open, 2=open)",
			},
			[]string{"operation"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors by category and severity",
			},
			[]string{"category", "severity"},
		),
		RetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retries_total",
				Help: "Total number of retry attempts by operation",
			},
			[]string{"operation"},
		),

		ModelsDiscoveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "models_discovered_total",
				Help: "Total number of models discovered, by strategy",
			},
			[]string{"strategy"},
		),

		ModelsValidatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "models_validated_total",
				Help: "Total number of models validated, by outcome",
			},
			[]string{"outcome"},
		),
		RepairsAppliedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "repairs_applied_total",
				Help: "Total number of automatic repairs applied during validation",
			},
		),

		ModelsRetainedTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "models_retained",
				Help: "Current number of models retained after the retention phase",
			},
		),
		ModelsPrunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "models_pruned_total",
				Help: "Total number of models pruned by the retention phase",
			},
		),

		CompletenessScore: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "completeness_score",
				Help: "Most recent completeness verification score (0-100)",
			},
		),

		SyncRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_runs_total",
				Help: "Total number of orchestrated sync runs, by outcome",
			},
			[]string{"mode", "outcome"},
		),
		SyncRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sync_run_duration_seconds",
				Help:    "Duration of a full orchestrated sync run in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),
		LastSyncUnixTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "last_sync_unix_time",
				Help: "Unix timestamp of the last successful sync run",
			},
		),
		RollbacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rollbacks_total",
				Help: "Total number of orchestrator rollbacks triggered",
			},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.HubRequestsTotal,
			m.HubRequestDuration,
			m.CircuitBreakerState,
			m.ErrorsTotal,
			m.RetriesTotal,
			m.ModelsDiscoveredTotal,
			m.ModelsValidatedTotal,
			m.RepairsAppliedTotal,
			m.ModelsRetainedTotal,
			m.ModelsPrunedTotal,
			m.CompletenessScore,
			m.SyncRunsTotal,
			m.SyncRunDuration,
			m.LastSyncUnixTime,
			m.RollbacksTotal,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", environment()).Set(1)

	return m
}

// RecordHubRequest records a call to the model hub API.
func (m *Metrics) RecordHubRequest(endpoint, status string, duration time.Duration) {
	m.HubRequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.HubRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordError records a classified error.
func (m *Metrics) RecordError(category, severity string) {
	m.ErrorsTotal.WithLabelValues(category, severity).Inc()
}

// RecordRetry records a retry attempt for an operation.
func (m *Metrics) RecordRetry(operation string) {
	m.RetriesTotal.WithLabelValues(operation).Inc()
}

// SetCircuitBreakerState reports the current circuit breaker state for an
// operation key. state must be 0 (closed), 1 (half-open) or 2 (open).
func (m *Metrics) SetCircuitBreakerState(operation string, state float64) {
	m.CircuitBreakerState.WithLabelValues(operation).Set(state)
}

// RecordDiscovery records models discovered via a given strategy.
func (m *Metrics) RecordDiscovery(strategy string, count int) {
	m.ModelsDiscoveredTotal.WithLabelValues(strategy).Add(float64(count))
}

// RecordValidation records a validation outcome (e.g. "valid", "repaired", "rejected").
func (m *Metrics) RecordValidation(outcome string, count int) {
	m.ModelsValidatedTotal.WithLabelValues(outcome).Add(float64(count))
}

// RecordRepair increments the repairs-applied counter.
func (m *Metrics) RecordRepair() {
	m.RepairsAppliedTotal.Inc()
}

// SetRetained sets the current retained-model count.
func (m *Metrics) SetRetained(count int) {
	m.ModelsRetainedTotal.Set(float64(count))
}

// RecordPruned records models pruned by the retention phase.
func (m *Metrics) RecordPruned(count int) {
	m.ModelsPrunedTotal.Add(float64(count))
}

// SetCompletenessScore records the most recent completeness score.
func (m *Metrics) SetCompletenessScore(score float64) {
	m.CompletenessScore.Set(score)
}

// RecordSyncRun records the outcome and duration of an orchestrated sync run.
func (m *Metrics) RecordSyncRun(mode, outcome string, duration time.Duration) {
	m.SyncRunsTotal.WithLabelValues(mode, outcome).Inc()
	m.SyncRunDuration.Observe(duration.Seconds())
	if outcome == "success" {
		m.LastSyncUnixTime.Set(float64(time.Now().Unix()))
	}
}

// RecordRollback increments the rollback counter.
func (m *Metrics) RecordRollback() {
	m.RollbacksTotal.Inc()
}

// UpdateUptime updates the service uptime gauge.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

func environment() string {
	return config.GetEnv("ENVIRONMENT", "development")
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
//   - production: disabled unless explicitly enabled via METRICS_ENABLED
//   - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(config.GetEnv("METRICS_ENABLED", "")))
	if raw == "" {
		return environment() != "production"
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Global metrics instance
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
