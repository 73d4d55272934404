package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
)

const maxRenderedItems = 10

// listKeys are the payload keys holding collections, checked in order.
var listKeys = []string{
	"incidents", "notes", "log_entries", "alerts", "related_incidents", "past_incidents",
	"services", "integrations", "oncalls", "members", "escalation_policies",
	"maintenance_windows", "change_events", "priorities", "business_services",
	"response_plays", "incident_workflows",
}

// objectKeys are the payload keys holding a single resource.
var objectKeys = []string{
	"incident", "note", "alert", "service", "user", "responder_request",
	"incident_workflow_instance",
}

// RenderResult turns a successful payload into operator-facing text.
func RenderResult(res domain.ExecutionResult) string {
	if res.Operation == domain.OpSummary {
		return renderSummary(res.Payload)
	}
	for _, key := range objectKeys {
		if obj, ok := res.Payload[key].(map[string]any); ok {
			return renderObject(res.Operation, key, obj)
		}
	}
	for _, key := range listKeys {
		if items, ok := asList(res.Payload[key]); ok {
			return renderList(key, items)
		}
	}
	if data, ok := asList(res.Payload["data"]); ok && len(data) > 0 {
		if row, ok := data[0].(map[string]any); ok {
			return "Incident analytics:\n" + renderFields(row)
		}
	}
	if msg, ok := res.Payload["message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprintf("%s completed.", humanize(res.Operation))
}

func renderSummary(p map[string]any) string {
	var sb strings.Builder
	open, _ := domain.IntParam(p, "total_open")
	fmt.Fprintf(&sb, "Operations summary: %d open incident(s)", open)

	if byStatus, ok := p["by_status"].(map[string]any); ok && len(byStatus) > 0 {
		sb.WriteString(" [" + renderCounts(byStatus) + "]")
	}
	if byUrgency, ok := p["by_urgency"].(map[string]any); ok && len(byUrgency) > 0 {
		sb.WriteString(" by urgency [" + renderCounts(byUrgency) + "]")
	}
	sb.WriteString(".\n")

	if oncall, ok := domain.IntParam(p, "oncall_count"); ok {
		fmt.Fprintf(&sb, "%d responder(s) currently on call.\n", oncall)
	}
	if items, ok := asList(p["incidents"]); ok && len(items) > 0 {
		sb.WriteString(renderList("incidents", items))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderCounts(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		n, _ := domain.IntParam(m, k)
		parts = append(parts, fmt.Sprintf("%s: %d", k, n))
	}
	return strings.Join(parts, ", ")
}

func renderObject(operation, key string, obj map[string]any) string {
	title := humanize(key)
	switch operation {
	case domain.OpAcknowledgeIncident:
		title = "Acknowledged incident"
	case domain.OpResolveIncident:
		title = "Resolved incident"
	case domain.OpAddIncidentNote:
		title = "Note added"
	case domain.OpSnoozeIncident:
		title = "Snoozed incident"
	case domain.OpEscalateIncident:
		title = "Escalated incident"
	}
	return title + ": " + itemLabel(obj) + "\n" + renderFields(obj)
}

func renderList(key string, items []any) string {
	if len(items) == 0 {
		return fmt.Sprintf("No %s found.", humanize(key))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%d):\n", strings.ToUpper(humanize(key)[:1])+humanize(key)[1:], len(items))
	for i, item := range items {
		if i == maxRenderedItems {
			fmt.Fprintf(&sb, "... and %d more\n", len(items)-maxRenderedItems)
			break
		}
		if m, ok := item.(map[string]any); ok {
			sb.WriteString("- " + itemLabel(m) + "\n")
		} else {
			fmt.Fprintf(&sb, "- %v\n", item)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// itemLabel builds a one-line label from the common resource fields,
// descending into the nested user/incident references PagerDuty returns.
func itemLabel(m map[string]any) string {
	for _, nested := range []string{"incident", "user"} {
		if inner, ok := m[nested].(map[string]any); ok {
			if _, hasTitle := m["title"]; !hasTitle {
				label := itemLabel(inner)
				if lvl, ok := domain.IntParam(m, "escalation_level"); ok {
					label += fmt.Sprintf(" (level %d)", lvl)
				}
				return label
			}
		}
	}

	var parts []string
	if id, ok := m["id"].(string); ok && id != "" {
		parts = append(parts, "["+id+"]")
	}
	for _, k := range []string{"title", "name", "summary", "content", "description"} {
		if v, ok := m[k].(string); ok && v != "" {
			parts = append(parts, v)
			break
		}
	}
	var tags []string
	for _, k := range []string{"status", "urgency", "severity", "role"} {
		if v, ok := m[k].(string); ok && v != "" {
			tags = append(tags, v)
		}
	}
	if len(tags) > 0 {
		parts = append(parts, "("+strings.Join(tags, ", ")+")")
	}
	if len(parts) == 0 {
		return "(no details)"
	}
	return strings.Join(parts, " ")
}

// renderFields prints scalar fields in key order.
func renderFields(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		switch v.(type) {
		case string, float64, int, int64, bool:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %s: %v\n", k, m[k])
	}
	return strings.TrimRight(sb.String(), "\n")
}

// RenderFailure explains a failed backend call. Mutating operations that
// failed in transport may still have been applied upstream, so the text
// asks the operator to verify instead of suggesting a retry.
func RenderFailure(spec domain.OperationSpec, f *domain.Failure) string {
	name := humanize(spec.Name)
	switch f.Kind {
	case domain.FailureNotFound:
		return fmt.Sprintf("Could not %s: the requested resource was not found (%s).", name, f.Message)
	case domain.FailureInvalidInput:
		return fmt.Sprintf("Could not %s: %s.", name, f.Message)
	case domain.FailureTransport:
		if spec.Mutating {
			return fmt.Sprintf("The %s request did not complete (%s). It may or may not have been applied; "+
				"check the incident before trying again.", name, f.Message)
		}
		return fmt.Sprintf("The incident backend could not be reached for %s (%s). Please try again.", name, f.Message)
	default:
		return fmt.Sprintf("The incident backend rejected %s (%s).", name, f.Message)
	}
}

// RenderClarification asks for the parameter the text did not contain.
func RenderClarification(cmd domain.Command) string {
	switch cmd.Missing {
	case domain.ParamIncidentID:
		return fmt.Sprintf("Which incident? Please include the incident id (for example P123ABC) to %s.", humanize(cmd.Operation))
	case domain.ParamContent:
		return "What should the note say? Use: add note to <incident id>: <text>"
	case domain.ParamServiceID:
		return "Which service? Please include the service id."
	default:
		return fmt.Sprintf("Missing %s for %s.", humanize(cmd.Missing), humanize(cmd.Operation))
	}
}

// RenderHelp lists example phrases.
func RenderHelp(examples []string) string {
	var sb strings.Builder
	sb.WriteString("I can help with incidents for the monitored services. Try:\n")
	for _, ex := range examples {
		sb.WriteString("- " + ex + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func humanize(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

func asList(v any) ([]any, bool) {
	switch items := v.(type) {
	case []any:
		return items, true
	case []map[string]any:
		out := make([]any, len(items))
		for i := range items {
			out[i] = items[i]
		}
		return out, true
	default:
		return nil, false
	}
}
