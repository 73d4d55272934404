package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
)

const metricsNamespace = "incident"

// DispatchMetrics holds the Prometheus collectors for the dispatcher and
// the backends. A nil *DispatchMetrics is valid and records nothing.
type DispatchMetrics struct {
	// RequestsTotal counts handled messages by the mode that answered them.
	RequestsTotal *prometheus.CounterVec

	ReasoningFailuresTotal prometheus.Counter
	BreakerTripsTotal      prometheus.Counter

	// BackendCallsTotal counts backend executions.
	// Labels: operation, result (ok or the failure kind)
	BackendCallsTotal *prometheus.CounterVec

	// Mode is 1 while reasoning is active, 0 once degraded.
	Mode prometheus.Gauge
}

// NewDispatchMetrics registers the collectors on reg.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	factory := promauto.With(reg)
	return &DispatchMetrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dispatch_requests_total",
			Help:      "Messages handled, by answering mode",
		}, []string{"mode"}),
		ReasoningFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reasoning_failures_total",
			Help:      "Reasoning strategy runs that failed",
		}),
		BreakerTripsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "breaker_trips_total",
			Help:      "Transitions from reasoning to rule-based mode",
		}),
		BackendCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "backend_calls_total",
			Help:      "Backend operation executions by result",
		}, []string{"operation", "result"}),
		Mode: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "dispatch_mode",
			Help:      "1 when the reasoning strategy is active, 0 in rule-based mode",
		}),
	}
}

func (m *DispatchMetrics) recordRequest(mode domain.Mode) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(string(mode)).Inc()
}

func (m *DispatchMetrics) recordReasoningFailure() {
	if m == nil {
		return
	}
	m.ReasoningFailuresTotal.Inc()
}

func (m *DispatchMetrics) recordTrip() {
	if m == nil {
		return
	}
	m.BreakerTripsTotal.Inc()
	m.Mode.Set(0)
}

func (m *DispatchMetrics) setMode(mode domain.Mode) {
	if m == nil {
		return
	}
	if mode == domain.ModeReasoning {
		m.Mode.Set(1)
	} else {
		m.Mode.Set(0)
	}
}

// RecordBackendCall counts one backend result.
func (m *DispatchMetrics) RecordBackendCall(res domain.ExecutionResult) {
	if m == nil {
		return
	}
	result := "ok"
	if res.Failure != nil {
		result = string(res.Failure.Kind)
	}
	m.BackendCallsTotal.WithLabelValues(res.Operation, result).Inc()
}
