package services

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
)

func TestDispatchMetrics_RecordBackendCall(t *testing.T) {
	m := NewDispatchMetrics(prometheus.NewRegistry())

	m.RecordBackendCall(domain.Success(domain.OpListIncidents, nil))
	m.RecordBackendCall(domain.Failed(domain.OpGetIncidentDetails,
		domain.NewFailure(domain.FailureNotFound, nil, "missing")))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendCallsTotal.WithLabelValues(domain.OpListIncidents, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendCallsTotal.WithLabelValues(domain.OpGetIncidentDetails, "not_found")))
}

func TestDispatchMetrics_ModeGauge(t *testing.T) {
	m := NewDispatchMetrics(prometheus.NewRegistry())

	m.setMode(domain.ModeReasoning)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Mode))

	m.recordTrip()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Mode))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerTripsTotal))
}

func TestDispatchMetrics_NilIsSafe(t *testing.T) {
	var m *DispatchMetrics
	assert.NotPanics(t, func() {
		m.recordRequest(domain.ModeRuleBased)
		m.recordReasoningFailure()
		m.recordTrip()
		m.setMode(domain.ModeReasoning)
		m.RecordBackendCall(domain.Success("x", nil))
	})
}
