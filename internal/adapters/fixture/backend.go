package fixture

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"time"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
	"github.com/manthysbr/incidentdesk/internal/core/ports"
)

// handler builds the canned payload for one operation. A non-nil failure
// short-circuits the payload.
type handler func(params map[string]any) (map[string]any, *domain.Failure)

// Backend answers every catalog operation from canned data after a short
// simulated latency. It never talks to the network.
type Backend struct {
	logger   *slog.Logger
	catalog  *domain.Catalog
	scope    domain.ScopeConfig
	latency  time.Duration
	handlers map[string]handler
}

var _ ports.ExecutionBackend = (*Backend)(nil)

// NewBackend creates the fixture backend. latency <= 0 yields to the scheduler
// instead of sleeping, so every call still passes a suspension point.
func NewBackend(logger *slog.Logger, catalog *domain.Catalog, scope domain.ScopeConfig, latency time.Duration) *Backend {
	b := &Backend{
		logger:  logger,
		catalog: catalog,
		scope:   scope,
		latency: latency,
	}
	b.handlers = b.buildHandlers()
	return b
}

func (b *Backend) Name() string {
	return domain.BackendFixture
}

// Execute implements ports.ExecutionBackend.
func (b *Backend) Execute(ctx context.Context, operation string, params map[string]any) (res domain.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			res = domain.Failed(operation, domain.NewFailure(domain.FailureUpstream, nil, "fixture panic: %v", r))
		}
	}()

	if !b.catalog.Has(operation) {
		return domain.Unsupported(operation)
	}
	if err := b.wait(ctx); err != nil {
		return domain.Failed(operation, domain.NewFailure(domain.FailureTransport, err, "request aborted: %v", err))
	}
	if params == nil {
		params = map[string]any{}
	}

	h, ok := b.handlers[operation]
	if !ok {
		return domain.Success(operation, map[string]any{
			"message": fmt.Sprintf("Fixture response for %s", operation),
			"params":  maps.Clone(params),
		})
	}

	payload, failure := h(params)
	if failure != nil {
		return domain.Failed(operation, failure)
	}
	return domain.Success(operation, payload)
}

func (b *Backend) wait(ctx context.Context) error {
	if b.latency <= 0 {
		runtime.Gosched()
		return ctx.Err()
	}
	timer := time.NewTimer(b.latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Backend) buildHandlers() map[string]handler {
	return map[string]handler{
		domain.OpSummary:       b.summary,
		domain.OpListIncidents: b.listIncidents,
		domain.OpGetIncidentDetails: withIncident(func(id string, _ map[string]any) map[string]any {
			inc := incidentByID(id)
			inc["escalation_policy"] = map[string]any{"id": "PESCPOL1", "summary": "DPE Prod Ops"}
			inc["html_url"] = "https://example.pagerduty.com/incidents/" + id
			return map[string]any{"incident": inc}
		}),
		domain.OpAcknowledgeIncident: withIncident(func(id string, _ map[string]any) map[string]any {
			return map[string]any{"incident": map[string]any{"id": id, "type": "incident", "status": "acknowledged"}}
		}),
		domain.OpResolveIncident: withIncident(func(id string, p map[string]any) map[string]any {
			inc := map[string]any{"id": id, "type": "incident", "status": "resolved"}
			if res := domain.StringParam(p, domain.ParamResolution); res != "" {
				inc["resolution"] = res
			}
			return map[string]any{"incident": inc}
		}),
		domain.OpAddIncidentNote: withIncident(func(id string, p map[string]any) map[string]any {
			return map[string]any{"note": map[string]any{
				"id":         "PNOTE123",
				"content":    domain.StringParam(p, domain.ParamContent),
				"created_at": "2026-01-30T18:45:00Z",
				"incident":   map[string]any{"id": id},
			}}
		}),
		domain.OpListIncidentNotes: withIncident(func(string, map[string]any) map[string]any {
			return map[string]any{"notes": notes()}
		}),
		domain.OpGetIncidentLogEntries: withIncident(func(string, map[string]any) map[string]any {
			return map[string]any{"log_entries": logEntries()}
		}),
		domain.OpListIncidentAlerts: withIncident(func(id string, _ map[string]any) map[string]any {
			return map[string]any{"alerts": []any{alert("PALERT001", id)}}
		}),
		domain.OpGetAlert: withIncident(func(id string, p map[string]any) map[string]any {
			return map[string]any{"alert": alert(domain.StringParam(p, domain.ParamAlertID), id)}
		}),
		domain.OpGetRelatedIncidents: withIncident(func(string, map[string]any) map[string]any {
			return map[string]any{"related_incidents": relatedIncidents()}
		}),
		domain.OpGetPastIncidents: withIncident(func(string, map[string]any) map[string]any {
			return map[string]any{"past_incidents": pastIncidents(), "total": 2}
		}),
		domain.OpSnoozeIncident: withIncident(func(id string, p map[string]any) map[string]any {
			seconds, ok := domain.IntParam(p, domain.ParamDurationSeconds)
			if !ok {
				seconds = 3600
			}
			return map[string]any{"incident": map[string]any{"id": id, "status": "acknowledged", "snoozed_for_seconds": seconds}}
		}),
		domain.OpEscalateIncident: withIncident(func(id string, p map[string]any) map[string]any {
			level, ok := domain.IntParam(p, domain.ParamEscalationLevel)
			if !ok {
				level = 2
			}
			return map[string]any{"incident": map[string]any{"id": id, "status": "triggered", "escalation_level": level}}
		}),
		domain.OpAddResponders: withIncident(func(id string, p map[string]any) map[string]any {
			targets := []any{}
			for _, uid := range domain.StringSliceParam(p, domain.ParamResponderIDs) {
				targets = append(targets, map[string]any{"id": uid, "type": "user_reference"})
			}
			return map[string]any{"responder_request": map[string]any{
				"id":                        "PREQ001",
				"incident":                  map[string]any{"id": id},
				"responder_request_targets": targets,
				"message":                   "Responders added successfully",
			}}
		}),
		domain.OpListServices: func(map[string]any) (map[string]any, *domain.Failure) {
			svcs := services(b.scope)
			return map[string]any{"services": svcs, "total": len(svcs), "more": false}, nil
		},
		domain.OpGetService:        b.withService(func(svc map[string]any) map[string]any { return map[string]any{"service": svc} }),
		domain.OpListServiceIntegr: b.withService(func(svc map[string]any) map[string]any {
			return map[string]any{"integrations": []any{
				map[string]any{"id": "PINT001", "type": "events_api_v2_inbound_integration", "summary": "Alertmanager", "service": map[string]any{"id": svc["id"]}},
			}}
		}),
		domain.OpListOncalls: func(map[string]any) (map[string]any, *domain.Failure) {
			return map[string]any{"oncalls": oncalls()}, nil
		},
		domain.OpListTeamMembers: func(map[string]any) (map[string]any, *domain.Failure) {
			return map[string]any{"members": teamMembers(), "team": map[string]any{"id": b.scope.TeamID, "summary": b.scope.TeamName}}, nil
		},
		domain.OpListEscalationPolicy: func(map[string]any) (map[string]any, *domain.Failure) {
			return map[string]any{"escalation_policies": []any{
				map[string]any{"id": "PESCPOL1", "name": "DPE Prod Ops", "num_loops": 2},
			}}, nil
		},
		domain.OpGetUser: func(p map[string]any) (map[string]any, *domain.Failure) {
			id := domain.StringParam(p, domain.ParamUserID)
			u, ok := users[id]
			if !ok {
				return nil, &domain.Failure{Kind: domain.FailureNotFound, Message: "User Not Found", Status: 404}
			}
			return map[string]any{"user": maps.Clone(u)}, nil
		},
		domain.OpGetIncidentAnalytics: func(map[string]any) (map[string]any, *domain.Failure) {
			return map[string]any{"data": []any{map[string]any{
				"total_incident_count":      6,
				"mean_seconds_to_first_ack": 312,
				"mean_seconds_to_resolve":   5400,
				"total_escalation_count":    1,
			}}}, nil
		},
		domain.OpListMaintenance: func(map[string]any) (map[string]any, *domain.Failure) {
			return map[string]any{"maintenance_windows": []any{
				map[string]any{"id": "PMW0001", "description": "Quarterly patching", "start_time": "2026-02-01T00:00:00Z", "end_time": "2026-02-01T04:00:00Z"},
			}}, nil
		},
		domain.OpListChangeEvents: func(map[string]any) (map[string]any, *domain.Failure) {
			return map[string]any{"change_events": []any{
				map[string]any{"id": "PCHG001", "summary": "Deploy edgenode-model v2.14.0", "timestamp": "2026-01-30T17:40:00Z", "source": "argo-cd"},
			}}, nil
		},
		domain.OpListPriorities: func(map[string]any) (map[string]any, *domain.Failure) {
			return map[string]any{"priorities": []any{
				map[string]any{"id": "PPRIO1", "name": "P1", "description": "Critical business impact"},
				map[string]any{"id": "PPRIO2", "name": "P2", "description": "High impact"},
				map[string]any{"id": "PPRIO3", "name": "P3", "description": "Moderate impact"},
			}}, nil
		},
		domain.OpListBusinessServices: func(map[string]any) (map[string]any, *domain.Failure) {
			return map[string]any{"business_services": []any{
				map[string]any{"id": "PBIZ001", "name": "EdgeNode Analytics Platform", "description": "Customer-facing analytics"},
			}}, nil
		},
		domain.OpListResponsePlays: func(map[string]any) (map[string]any, *domain.Failure) {
			return map[string]any{"response_plays": responsePlays()}, nil
		},
		domain.OpRunResponsePlay: withIncident(func(id string, p map[string]any) map[string]any {
			return map[string]any{"status": "ok", "message": fmt.Sprintf("Response play %s started on %s",
				domain.StringParam(p, domain.ParamResponsePlayID), id)}
		}),
		domain.OpListIncidentWorkflows: func(map[string]any) (map[string]any, *domain.Failure) {
			return map[string]any{"incident_workflows": workflows()}, nil
		},
		domain.OpStartIncidentWorkflow: withIncident(func(id string, p map[string]any) map[string]any {
			return map[string]any{"incident_workflow_instance": map[string]any{
				"id":       "PWFI001",
				"summary":  "Workflow " + domain.StringParam(p, domain.ParamWorkflowID) + " started",
				"incident": map[string]any{"id": id},
			}}
		}),
	}
}

// withIncident requires the incident id parameter before building the payload.
func withIncident(build func(id string, params map[string]any) map[string]any) handler {
	return func(params map[string]any) (map[string]any, *domain.Failure) {
		id := domain.StringParam(params, domain.ParamIncidentID)
		if id == "" {
			return nil, domain.NewFailure(domain.FailureInvalidInput, nil, "missing required parameter %q", domain.ParamIncidentID)
		}
		return build(id, params), nil
	}
}

// withService requires an allow-listed service id.
func (b *Backend) withService(build func(svc map[string]any) map[string]any) handler {
	return func(params map[string]any) (map[string]any, *domain.Failure) {
		id := domain.StringParam(params, domain.ParamServiceID)
		if id == "" {
			return nil, domain.NewFailure(domain.FailureInvalidInput, nil, "missing required parameter %q", domain.ParamServiceID)
		}
		if !b.scope.AllowsService(id) {
			return nil, domain.NewFailure(domain.FailureInvalidInput, nil, "service %s is not monitored", id)
		}
		for _, svc := range services(b.scope) {
			if m := svc.(map[string]any); m["id"] == id {
				return build(m), nil
			}
		}
		return nil, domain.NewFailure(domain.FailureNotFound, nil, "service %s not found", id)
	}
}

// incidentByID returns the canned incident, or the first one re-labelled
// with id so any well-formed id yields a deterministic answer.
func incidentByID(id string) map[string]any {
	if r, ok := lookupIncident(id); ok {
		return r.toMap()
	}
	inc := incidentRecords[0].toMap()
	inc["id"] = id
	return inc
}

func (b *Backend) filteredIncidents(params map[string]any) []any {
	statuses := toSet(domain.StringSliceParam(params, domain.ParamStatuses))
	urgencies := toSet(domain.StringSliceParam(params, domain.ParamUrgencies))

	out := []any{}
	for _, r := range incidentRecords {
		if len(statuses) > 0 && !statuses[r.status] {
			continue
		}
		if len(urgencies) > 0 && !urgencies[r.urgency] {
			continue
		}
		if !b.scope.AllowsService(r.serviceID) {
			continue
		}
		out = append(out, r.toMap())
	}
	return out
}

func (b *Backend) listIncidents(params map[string]any) (map[string]any, *domain.Failure) {
	items := b.filteredIncidents(params)
	limit, ok := domain.IntParam(params, domain.ParamLimit)
	if !ok || limit <= 0 {
		limit = 25
	}
	offset, _ := domain.IntParam(params, domain.ParamOffset)
	return map[string]any{
		"incidents": items,
		"limit":     limit,
		"offset":    offset,
		"total":     len(items),
		"more":      false,
	}, nil
}

func (b *Backend) summary(map[string]any) (map[string]any, *domain.Failure) {
	open := b.filteredIncidents(map[string]any{domain.ParamStatuses: []string{"triggered", "acknowledged"}})
	byStatus := map[string]any{}
	byUrgency := map[string]any{}
	for _, item := range open {
		inc := item.(map[string]any)
		s, u := inc["status"].(string), inc["urgency"].(string)
		n, _ := byStatus[s].(int)
		byStatus[s] = n + 1
		n, _ = byUrgency[u].(int)
		byUrgency[u] = n + 1
	}
	return map[string]any{
		"total_open":   len(open),
		"by_status":    byStatus,
		"by_urgency":   byUrgency,
		"oncall_count": len(oncalls()),
		"oncalls":      oncalls(),
		"incidents":    open,
	}, nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
