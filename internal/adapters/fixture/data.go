package fixture

import "github.com/manthysbr/incidentdesk/internal/core/domain"

// Canned records. Every accessor builds fresh maps so callers may mutate
// what they receive.

type incidentRecord struct {
	id, title, status, urgency, createdAt, serviceID, description, assignee string
}

var incidentRecords = []incidentRecord{
	{"P123ABC", "[CRITICAL] EdgeNode Model Processing Failure", "triggered", "high", "2026-01-30T18:00:00Z",
		"PFDU7FI", "Model processing pipeline has failed - data not being processed", "John Doe"},
	{"P456DEF", "[HIGH] DP&E Ingestion Latency Spike", "acknowledged", "high", "2026-01-30T17:45:00Z",
		"PBD0TCK", "Data ingestion latency exceeded threshold", "Jane Smith"},
	{"P789GHI", "[MEDIUM] EdgeNode Controls Warning", "triggered", "low", "2026-01-30T16:30:00Z",
		"PBD0TCK", "Control signal processing delayed", ""},
	{"PJKLMNO", "[LOW] Model Output Queue Growing", "triggered", "low", "2026-01-30T15:00:00Z",
		"PFDU7FI", "Output queue size growing - monitoring required", ""},
	{"PRES001", "[RESOLVED] Scheduled Maintenance Complete", "resolved", "low", "2026-01-29T10:00:00Z",
		"PFDU7FI", "Scheduled maintenance window completed successfully", ""},
	{"PRES002", "[RESOLVED] Brief Network Blip", "resolved", "high", "2026-01-29T22:00:00Z",
		"PBD0TCK", "Network connectivity issue resolved after failover", ""},
}

var serviceNames = map[string]string{
	"PFDU7FI": "EdgeNode Modelling - Prod",
	"PBD0TCK": "EdgeNode DP&E Ingestion and controls - Prod",
}

func (r incidentRecord) toMap() map[string]any {
	assignments := []any{}
	if r.assignee != "" {
		assignments = append(assignments, map[string]any{"assignee": map[string]any{"summary": r.assignee}})
	}
	return map[string]any{
		"id":                    r.id,
		"type":                  "incident",
		"title":                 r.title,
		"status":                r.status,
		"urgency":               r.urgency,
		"created_at":            r.createdAt,
		"last_status_change_at": r.createdAt,
		"service":               map[string]any{"id": r.serviceID, "summary": serviceNames[r.serviceID]},
		"description":           r.description,
		"assignments":           assignments,
	}
}

func lookupIncident(id string) (incidentRecord, bool) {
	for _, r := range incidentRecords {
		if r.id == id {
			return r, true
		}
	}
	return incidentRecord{}, false
}

func oncalls() []any {
	return []any{
		map[string]any{
			"user":              map[string]any{"id": "PUSER1", "summary": "John Doe"},
			"schedule":          map[string]any{"id": "PSCHED1", "summary": "DPE Prod Ops - Primary On-Call"},
			"escalation_policy": map[string]any{"id": "PESCPOL1", "summary": "DPE Prod Ops"},
			"escalation_level":  1,
			"start":             "2026-01-30T00:00:00Z",
			"end":               "2026-01-31T00:00:00Z",
		},
		map[string]any{
			"user":              map[string]any{"id": "PUSER2", "summary": "Jane Smith"},
			"schedule":          map[string]any{"id": "PSCHED2", "summary": "DPE Prod Ops - Secondary On-Call"},
			"escalation_policy": map[string]any{"id": "PESCPOL1", "summary": "DPE Prod Ops"},
			"escalation_level":  2,
			"start":             "2026-01-30T00:00:00Z",
			"end":               "2026-01-31T00:00:00Z",
		},
	}
}

func services(scope domain.ScopeConfig) []any {
	statuses := map[string]string{"PFDU7FI": "critical", "PBD0TCK": "warning"}
	out := make([]any, 0, len(scope.Services))
	for _, svc := range scope.Services {
		status := statuses[svc.ID]
		if status == "" {
			status = "active"
		}
		out = append(out, map[string]any{
			"id":                svc.ID,
			"name":              svc.Name,
			"status":            status,
			"escalation_policy": map[string]any{"id": "PESCPOL1", "summary": "DPE Prod Ops"},
		})
	}
	return out
}

func notes() []any {
	return []any{
		map[string]any{
			"id":         "NOTE001",
			"content":    "Investigating root cause - appears to be related to upstream data feed failure.",
			"created_at": "2026-01-30T18:15:00Z",
			"user":       map[string]any{"id": "PUSER1", "summary": "John Doe"},
		},
		map[string]any{
			"id":         "NOTE002",
			"content":    "Escalated to platform team. Runbook steps 1-3 completed.",
			"created_at": "2026-01-30T18:30:00Z",
			"user":       map[string]any{"id": "PUSER2", "summary": "Jane Smith"},
		},
	}
}

func alert(id, incidentID string) map[string]any {
	return map[string]any{
		"id":         id,
		"status":     "triggered",
		"severity":   "critical",
		"summary":    "Failure : Daily - RTF Data Services : HLS",
		"created_at": "2026-02-12T09:43:00Z",
		"incident":   map[string]any{"id": incidentID},
		"service":    map[string]any{"id": "PBD0TCK", "summary": serviceNames["PBD0TCK"]},
		"body": map[string]any{
			"type": "alert_body",
			"details": map[string]any{
				"num_firing": 1,
				"labels":     map[string]any{"alertname": "prod-failure-daily-rtf-data-services-hls", "env": "prod", "severity": "critical"},
			},
		},
	}
}

func logEntries() []any {
	return []any{
		map[string]any{"id": "LOG1", "type": "trigger_log_entry", "created_at": "2026-01-30T18:00:00Z",
			"summary": "Incident triggered via monitoring alert"},
		map[string]any{"id": "LOG2", "type": "notify_log_entry", "created_at": "2026-01-30T18:00:15Z",
			"summary": "Notification sent to John Doe via SMS and push notification"},
		map[string]any{"id": "LOG3", "type": "escalate_log_entry", "created_at": "2026-01-30T18:05:00Z",
			"summary": "Escalated to DPE Prod Ops team"},
	}
}

func relatedIncidents() []any {
	return []any{
		map[string]any{
			"incident":      map[string]any{"id": "PREL001", "title": "[HIGH] EdgeNode Upstream Connectivity Issue", "status": "acknowledged", "urgency": "high"},
			"relationships": []any{map[string]any{"type": "upstream_dependency"}},
		},
		map[string]any{
			"incident":      map[string]any{"id": "PREL002", "title": "[MEDIUM] Data Pipeline Backlog Alert", "status": "triggered", "urgency": "low"},
			"relationships": []any{map[string]any{"type": "correlated"}},
		},
	}
}

func pastIncidents() []any {
	return []any{
		map[string]any{
			"incident":   map[string]any{"id": "PAST001", "title": "[CRITICAL] Model Processing Failure - Similar Issue", "status": "resolved", "created_at": "2026-01-25T14:00:00Z"},
			"score":      0.92,
			"resolution": "Restarted model worker pods and cleared cache",
		},
		map[string]any{
			"incident":   map[string]any{"id": "PAST002", "title": "[HIGH] EdgeNode Processing Timeout", "status": "resolved", "created_at": "2026-01-20T09:00:00Z"},
			"score":      0.81,
			"resolution": "Increased timeout threshold and added retry logic",
		},
	}
}

func teamMembers() []any {
	return []any{
		map[string]any{"user": map[string]any{"id": "PUSER1", "summary": "John Doe", "email": "john.doe@company.com"}, "role": "manager"},
		map[string]any{"user": map[string]any{"id": "PUSER2", "summary": "Jane Smith", "email": "jane.smith@company.com"}, "role": "responder"},
		map[string]any{"user": map[string]any{"id": "PUSER3", "summary": "Bob Wilson", "email": "bob.wilson@company.com"}, "role": "responder"},
	}
}

var users = map[string]map[string]any{
	"PUSER1": {"id": "PUSER1", "name": "John Doe", "email": "john.doe@company.com", "role": "manager", "time_zone": "Australia/Sydney"},
	"PUSER2": {"id": "PUSER2", "name": "Jane Smith", "email": "jane.smith@company.com", "role": "responder", "time_zone": "Australia/Sydney"},
	"PUSER3": {"id": "PUSER3", "name": "Bob Wilson", "email": "bob.wilson@company.com", "role": "responder", "time_zone": "Australia/Sydney"},
}

func workflows() []any {
	return []any{
		map[string]any{"id": "WF001", "name": "Auto-Escalate Critical Incidents", "description": "Automatically escalate critical incidents after 15 minutes"},
		map[string]any{"id": "WF002", "name": "Create JIRA Ticket", "description": "Create a JIRA ticket for tracking incident resolution"},
	}
}

func responsePlays() []any {
	return []any{
		map[string]any{"id": "PRPLAY1", "name": "Major Incident Bridge", "description": "Open a bridge and page the incident commander"},
		map[string]any{"id": "PRPLAY2", "name": "Notify Stakeholders", "description": "Send a status update to business stakeholders"},
	}
}
