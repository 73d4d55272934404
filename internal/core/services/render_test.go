package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
)

func TestRenderResult_Summary(t *testing.T) {
	res := domain.Success(domain.OpSummary, map[string]any{
		"total_open":   4,
		"by_status":    map[string]any{"triggered": 3, "acknowledged": 1},
		"by_urgency":   map[string]any{"high": 2.0, "low": 2.0},
		"oncall_count": 2,
		"incidents": []any{
			map[string]any{"id": "P123ABC", "title": "Database latency", "status": "triggered", "urgency": "high"},
		},
	})

	out := RenderResult(res)
	assert.Contains(t, out, "Operations summary: 4 open incident(s) [acknowledged: 1, triggered: 3] by urgency [high: 2, low: 2].")
	assert.Contains(t, out, "2 responder(s) currently on call.")
	assert.Contains(t, out, "- [P123ABC] Database latency (triggered, high)")
}

func TestRenderResult_ObjectTitles(t *testing.T) {
	incident := map[string]any{"id": "P1", "title": "Disk full", "status": "acknowledged"}
	cases := map[string]string{
		domain.OpAcknowledgeIncident: "Acknowledged incident: [P1] Disk full (acknowledged)",
		domain.OpResolveIncident:     "Resolved incident: [P1]",
		domain.OpGetIncidentDetails:  "incident: [P1]",
	}
	for op, want := range cases {
		t.Run(op, func(t *testing.T) {
			out := RenderResult(domain.Success(op, map[string]any{"incident": incident}))
			assert.Contains(t, out, want)
			assert.Contains(t, out, "  status: acknowledged")
		})
	}
}

func TestRenderResult_ListTruncates(t *testing.T) {
	items := make([]any, 13)
	for i := range items {
		items[i] = map[string]any{"id": fmt.Sprintf("S%d", i), "name": "svc"}
	}
	out := RenderResult(domain.Success(domain.OpListServices, map[string]any{"services": items}))

	assert.True(t, strings.HasPrefix(out, "Services (13):"))
	assert.Contains(t, out, "... and 3 more")
	assert.NotContains(t, out, "[S10]")
}

func TestRenderResult_EmptyListAndFallbacks(t *testing.T) {
	assert.Equal(t, "No incidents found.", RenderResult(domain.Success(domain.OpListIncidents, map[string]any{"incidents": []any{}})))
	assert.Equal(t, "Fixture response for list_vendors",
		RenderResult(domain.Success("list_vendors", map[string]any{"message": "Fixture response for list_vendors"})))
	assert.Equal(t, "run response play completed.", RenderResult(domain.Success(domain.OpRunResponsePlay, nil)))
}

func TestRenderResult_NestedOncallEntries(t *testing.T) {
	out := RenderResult(domain.Success(domain.OpListOncalls, map[string]any{"oncalls": []map[string]any{
		{"user": map[string]any{"id": "U1", "name": "Ana"}, "escalation_level": 1.0},
	}}))
	assert.Contains(t, out, "- [U1] Ana (level 1)")
}

func TestRenderFailure(t *testing.T) {
	ack, _ := domain.BuiltinCatalog().Lookup(domain.OpAcknowledgeIncident)
	list, _ := domain.BuiltinCatalog().Lookup(domain.OpListIncidents)
	transport := domain.NewFailure(domain.FailureTransport, nil, "deadline exceeded")

	assert.Contains(t, RenderFailure(ack, transport), "may or may not have been applied")
	assert.Contains(t, RenderFailure(list, transport), "Please try again")
	assert.Contains(t, RenderFailure(ack, domain.NewFailure(domain.FailureNotFound, nil, "no such incident")), "was not found")
	assert.Equal(t, "Could not acknowledge incident: bad id.",
		RenderFailure(ack, domain.NewFailure(domain.FailureInvalidInput, nil, "bad id")))
	assert.Contains(t, RenderFailure(list, domain.NewFailure(domain.FailureUpstream, nil, "status 500")), "rejected list incidents")
}

func TestRenderClarification(t *testing.T) {
	assert.Contains(t, RenderClarification(domain.Command{Operation: domain.OpAcknowledgeIncident, Missing: domain.ParamIncidentID}),
		"to acknowledge incident")
	assert.Contains(t, RenderClarification(domain.Command{Operation: domain.OpAddIncidentNote, Missing: domain.ParamContent}),
		"add note to <incident id>")
	assert.Equal(t, "Missing alert id for get alert.",
		RenderClarification(domain.Command{Operation: domain.OpGetAlert, Missing: domain.ParamAlertID}))
}

func TestRenderHelp(t *testing.T) {
	out := RenderHelp([]string{"show incidents", "who is on call"})
	assert.True(t, strings.HasSuffix(out, "- who is on call"))
}
