// Package pagerduty implements the live execution backend against the
// PagerDuty REST API v2.
package pagerduty

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
	"github.com/manthysbr/incidentdesk/internal/core/ports"
)

const (
	acceptHeader   = "application/vnd.pagerduty+json;version=2"
	defaultLimit   = 25
	summaryLimit   = 100
	maxErrorBodyKB = 4
)

// request is the upstream shape one operation maps to.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// shape post-processes a decoded payload (scope filtering).
	shape func(map[string]any) map[string]any
}

// route builds the request for one operation. A failure rejects the call
// before any network I/O.
type route func(params map[string]any) (request, *domain.Failure)

// Backend executes catalog operations as HTTP calls.
type Backend struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL string
	apiKey  string
	from    string
	scope   domain.ScopeConfig
	routes  map[string]route
}

var _ ports.ExecutionBackend = (*Backend)(nil)

// NewBackend creates the live backend. A nil client gets one with
// cfg.RequestTimeout.
func NewBackend(logger *slog.Logger, cfg domain.BackendConfig, scope domain.ScopeConfig, client *http.Client) *Backend {
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	b := &Backend{
		logger:  logger,
		client:  client,
		baseURL: strings.TrimRight(cfg.APIHost, "/"),
		apiKey:  cfg.APIKey,
		from:    cfg.RequesterID,
		scope:   scope,
	}
	b.routes = b.buildRoutes()
	return b
}

func (b *Backend) Name() string {
	return domain.BackendLive
}

// Supports reports whether name has a request mapping. summary is composite.
func (b *Backend) Supports(name string) bool {
	_, ok := b.routes[name]
	return ok || name == domain.OpSummary
}

// Execute implements ports.ExecutionBackend.
func (b *Backend) Execute(ctx context.Context, operation string, params map[string]any) (res domain.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("pagerduty backend panic", "operation", operation, "panic", r)
			res = domain.Failed(operation, domain.NewFailure(domain.FailureUpstream, nil, "internal error: %v", r))
		}
	}()
	if params == nil {
		params = map[string]any{}
	}

	if operation == domain.OpSummary {
		payload, failure := b.summary(ctx)
		if failure != nil {
			return domain.Failed(operation, failure)
		}
		return domain.Success(operation, payload)
	}

	rt, ok := b.routes[operation]
	if !ok {
		return domain.Unsupported(operation)
	}
	req, failure := rt(params)
	if failure != nil {
		return domain.Failed(operation, failure)
	}
	payload, failure := b.do(ctx, req)
	if failure != nil {
		return domain.Failed(operation, failure)
	}
	if req.shape != nil {
		payload = req.shape(payload)
	}
	return domain.Success(operation, payload)
}

// do sends one request and classifies the outcome.
func (b *Backend) do(ctx context.Context, r request) (map[string]any, *domain.Failure) {
	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, domain.NewFailure(domain.FailureInvalidInput, err, "encode request body: %v", err)
		}
		body = bytes.NewReader(data)
	}

	u := b.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, domain.NewFailure(domain.FailureInvalidInput, err, "build request: %v", err)
	}
	req.Header.Set("Authorization", "Token token="+b.apiKey)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Content-Type", "application/json")
	if b.from != "" && r.method != http.MethodGet {
		req.Header.Set("From", b.from)
	}

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, domain.NewFailure(domain.FailureTransport, err, "request to PagerDuty failed: %v", err)
	}
	defer resp.Body.Close()
	b.logger.Debug("pagerduty call", "method", r.method, "path", r.path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyKB<<10))
		f := &domain.Failure{Kind: kindForStatus(resp.StatusCode), Message: errorMessage(resp.StatusCode, raw), Status: resp.StatusCode}
		return nil, f
	}

	if resp.StatusCode == http.StatusNoContent {
		return map[string]any{"status": "ok"}, nil
	}
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{"status": "ok"}, nil
		}
		return nil, domain.NewFailure(domain.FailureUpstream, err, "decode response: %v", err)
	}
	return payload, nil
}

func kindForStatus(status int) domain.FailureKind {
	switch status {
	case http.StatusNotFound:
		return domain.FailureNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.FailureInvalidInput
	default:
		return domain.FailureUpstream
	}
}

// errorMessage extracts PagerDuty's {"error":{"message","errors"}} envelope.
func errorMessage(status int, raw []byte) string {
	var envelope struct {
		Error struct {
			Message string   `json:"message"`
			Errors  []string `json:"errors"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		msg := envelope.Error.Message
		if len(envelope.Error.Errors) > 0 {
			msg += ": " + strings.Join(envelope.Error.Errors, "; ")
		}
		return fmt.Sprintf("PagerDuty API error %d: %s", status, msg)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		text = http.StatusText(status)
	}
	return fmt.Sprintf("PagerDuty API error %d: %s", status, text)
}

// summary fans out to incidents and on-calls concurrently.
func (b *Backend) summary(ctx context.Context) (map[string]any, *domain.Failure) {
	var incidents, oncalls map[string]any

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		req, f := b.routes[domain.OpListIncidents](map[string]any{
			domain.ParamStatuses: []string{"triggered", "acknowledged"},
			domain.ParamLimit:    summaryLimit,
		})
		if f != nil {
			return f
		}
		p, f := b.do(gctx, req)
		if f != nil {
			return f
		}
		incidents = p
		return nil
	})
	g.Go(func() error {
		req, f := b.routes[domain.OpListOncalls](nil)
		if f != nil {
			return f
		}
		p, f := b.do(gctx, req)
		if f != nil {
			return f
		}
		oncalls = p
		return nil
	})
	if err := g.Wait(); err != nil {
		var f *domain.Failure
		if errors.As(err, &f) {
			return nil, f
		}
		return nil, domain.NewFailure(domain.FailureUpstream, err, "summary: %v", err)
	}

	open, _ := incidents["incidents"].([]any)
	byStatus := map[string]any{}
	byUrgency := map[string]any{}
	for _, item := range open {
		inc, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := inc["status"].(string); ok {
			n, _ := byStatus[s].(int)
			byStatus[s] = n + 1
		}
		if u, ok := inc["urgency"].(string); ok {
			n, _ := byUrgency[u].(int)
			byUrgency[u] = n + 1
		}
	}
	oncallList, _ := oncalls["oncalls"].([]any)
	if open == nil {
		open = []any{}
	}
	return map[string]any{
		"total_open":   len(open),
		"by_status":    byStatus,
		"by_urgency":   byUrgency,
		"oncall_count": len(oncallList),
		"incidents":    open,
		"oncalls":      oncallList,
	}, nil
}

func (b *Backend) buildRoutes() map[string]route {
	get := func(path func(map[string]any) string) route {
		return func(p map[string]any) (request, *domain.Failure) {
			return request{method: http.MethodGet, path: path(p)}, nil
		}
	}
	incidentPath := func(suffix string) func(map[string]any) string {
		return func(p map[string]any) string {
			return "/incidents/" + seg(p, domain.ParamIncidentID) + suffix
		}
	}
	static := func(path string) func(map[string]any) string {
		return func(map[string]any) string { return path }
	}
	updateIncident := func(fields func(map[string]any) map[string]any) route {
		return func(p map[string]any) (request, *domain.Failure) {
			inc := map[string]any{"type": "incident"}
			for k, v := range fields(p) {
				inc[k] = v
			}
			return request{method: http.MethodPut, path: incidentPath("")(p), body: map[string]any{"incident": inc}}, nil
		}
	}

	routes := map[string]route{
		domain.OpListIncidents: func(p map[string]any) (request, *domain.Failure) {
			q := pageQuery(p)
			addList(q, "statuses[]", domain.StringSliceParam(p, domain.ParamStatuses))
			addList(q, "urgencies[]", domain.StringSliceParam(p, domain.ParamUrgencies))
			q.Add("team_ids[]", b.scope.TeamID)
			addList(q, "service_ids[]", b.scope.ServiceIDs())
			for _, key := range []string{domain.ParamSortBy, domain.ParamSince, domain.ParamUntil} {
				if v := domain.StringParam(p, key); v != "" {
					q.Set(key, v)
				}
			}
			return request{method: http.MethodGet, path: "/incidents", query: q}, nil
		},
		domain.OpGetIncidentDetails:    get(incidentPath("")),
		domain.OpGetIncidentLogEntries: get(incidentPath("/log_entries")),
		domain.OpListIncidentNotes:     get(incidentPath("/notes")),
		domain.OpGetRelatedIncidents:   get(incidentPath("/related_incidents")),
		domain.OpGetPastIncidents: func(p map[string]any) (request, *domain.Failure) {
			q := url.Values{}
			if n, ok := domain.IntParam(p, domain.ParamLimit); ok && n > 0 {
				q.Set("limit", strconv.Itoa(n))
			}
			return request{method: http.MethodGet, path: incidentPath("/past_incidents")(p), query: q}, nil
		},
		domain.OpListIncidentAlerts: func(p map[string]any) (request, *domain.Failure) {
			q := url.Values{}
			addList(q, "statuses[]", domain.StringSliceParam(p, domain.ParamStatuses))
			if n, ok := domain.IntParam(p, domain.ParamLimit); ok && n > 0 {
				q.Set("limit", strconv.Itoa(n))
			}
			return request{method: http.MethodGet, path: incidentPath("/alerts")(p), query: q}, nil
		},
		domain.OpGetAlert: func(p map[string]any) (request, *domain.Failure) {
			return request{method: http.MethodGet, path: incidentPath("/alerts/" + seg(p, domain.ParamAlertID))(p)}, nil
		},
		domain.OpAcknowledgeIncident: updateIncident(func(map[string]any) map[string]any {
			return map[string]any{"status": "acknowledged"}
		}),
		domain.OpResolveIncident: updateIncident(func(p map[string]any) map[string]any {
			fields := map[string]any{"status": "resolved"}
			if r := domain.StringParam(p, domain.ParamResolution); r != "" {
				fields["resolution"] = r
			}
			return fields
		}),
		domain.OpEscalateIncident: updateIncident(func(p map[string]any) map[string]any {
			level, ok := domain.IntParam(p, domain.ParamEscalationLevel)
			if !ok || level < 1 {
				level = 2
			}
			return map[string]any{"escalation_level": level}
		}),
		domain.OpAddIncidentNote: func(p map[string]any) (request, *domain.Failure) {
			return request{
				method: http.MethodPost,
				path:   incidentPath("/notes")(p),
				body:   map[string]any{"note": map[string]any{"content": domain.StringParam(p, domain.ParamContent)}},
			}, nil
		},
		domain.OpSnoozeIncident: func(p map[string]any) (request, *domain.Failure) {
			seconds, ok := domain.IntParam(p, domain.ParamDurationSeconds)
			if !ok || seconds <= 0 {
				seconds = 3600
			}
			return request{method: http.MethodPost, path: incidentPath("/snooze")(p), body: map[string]any{"duration": seconds}}, nil
		},
		domain.OpAddResponders: func(p map[string]any) (request, *domain.Failure) {
			ids := domain.StringSliceParam(p, domain.ParamResponderIDs)
			if len(ids) == 0 {
				return request{}, domain.NewFailure(domain.FailureInvalidInput, nil, "%s must list at least one user", domain.ParamResponderIDs)
			}
			targets := make([]any, 0, len(ids))
			for _, id := range ids {
				targets = append(targets, map[string]any{
					"responder_request_target": map[string]any{"id": id, "type": "user_reference"},
				})
			}
			requester := domain.StringParam(p, domain.ParamRequesterID)
			if requester == "" {
				requester = b.from
			}
			body := map[string]any{"requester_id": requester, "responder_request_targets": targets}
			if msg := domain.StringParam(p, domain.ParamMessage); msg != "" {
				body["message"] = msg
			}
			return request{method: http.MethodPost, path: incidentPath("/responder_requests")(p), body: body}, nil
		},
		domain.OpListServices: func(map[string]any) (request, *domain.Failure) {
			q := url.Values{}
			q.Add("team_ids[]", b.scope.TeamID)
			return request{method: http.MethodGet, path: "/services", query: q, shape: b.onlyAllowedServices}, nil
		},
		domain.OpGetService: b.serviceRoute(""),
		domain.OpListServiceIntegr: b.serviceRoute("/integrations"),
		domain.OpListOncalls: func(map[string]any) (request, *domain.Failure) {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(summaryLimit))
			return request{method: http.MethodGet, path: "/oncalls", query: q}, nil
		},
		domain.OpListTeamMembers: get(func(map[string]any) string { return "/teams/" + url.PathEscape(b.scope.TeamID) + "/members" }),
		domain.OpListEscalationPolicy: func(map[string]any) (request, *domain.Failure) {
			q := url.Values{}
			q.Add("team_ids[]", b.scope.TeamID)
			return request{method: http.MethodGet, path: "/escalation_policies", query: q}, nil
		},
		domain.OpGetUser: get(func(p map[string]any) string { return "/users/" + seg(p, domain.ParamUserID) }),
		domain.OpGetIncidentAnalytics: func(p map[string]any) (request, *domain.Failure) {
			q := url.Values{}
			for _, key := range []string{domain.ParamSince, domain.ParamUntil, domain.ParamAggregateUnit} {
				if v := domain.StringParam(p, key); v != "" {
					q.Set(key, v)
				}
			}
			addList(q, "service_ids[]", b.scope.ServiceIDs())
			q.Add("team_ids[]", b.scope.TeamID)
			return request{method: http.MethodGet, path: "/analytics/metrics/incidents/all", query: q}, nil
		},
		domain.OpListMaintenance: func(map[string]any) (request, *domain.Failure) {
			q := url.Values{}
			addList(q, "service_ids[]", b.scope.ServiceIDs())
			return request{method: http.MethodGet, path: "/maintenance_windows", query: q}, nil
		},
		domain.OpListChangeEvents: func(p map[string]any) (request, *domain.Failure) {
			q := pageQuery(p)
			for _, key := range []string{domain.ParamSince, domain.ParamUntil} {
				if v := domain.StringParam(p, key); v != "" {
					q.Set(key, v)
				}
			}
			return request{method: http.MethodGet, path: "/change_events", query: q}, nil
		},
		domain.OpListPriorities:        get(static("/priorities")),
		domain.OpListBusinessServices:  get(static("/business_services")),
		domain.OpListResponsePlays:     get(static("/response_plays")),
		domain.OpListIncidentWorkflows: get(static("/incident_workflows")),
		domain.OpRunResponsePlay: func(p map[string]any) (request, *domain.Failure) {
			return request{
				method: http.MethodPost,
				path:   "/response_plays/" + seg(p, domain.ParamResponsePlayID) + "/run",
				body:   map[string]any{"incident": incidentRef(p)},
			}, nil
		},
		domain.OpStartIncidentWorkflow: func(p map[string]any) (request, *domain.Failure) {
			return request{
				method: http.MethodPost,
				path:   "/incident_workflows/" + seg(p, domain.ParamWorkflowID) + "/instances",
				body:   map[string]any{"incident": incidentRef(p)},
			}, nil
		},
	}
	return routes
}

// serviceRoute rejects service ids outside the allow-list.
func (b *Backend) serviceRoute(suffix string) route {
	return func(p map[string]any) (request, *domain.Failure) {
		id := domain.StringParam(p, domain.ParamServiceID)
		if !b.scope.AllowsService(id) {
			return request{}, domain.NewFailure(domain.FailureInvalidInput, nil, "service %q is not monitored by %s", id, b.scope.TeamName)
		}
		return request{method: http.MethodGet, path: "/services/" + url.PathEscape(id) + suffix}, nil
	}
}

func (b *Backend) onlyAllowedServices(payload map[string]any) map[string]any {
	list, ok := payload["services"].([]any)
	if !ok {
		return payload
	}
	kept := make([]any, 0, len(list))
	for _, item := range list {
		svc, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := svc["id"].(string); b.scope.AllowsService(id) {
			kept = append(kept, svc)
		}
	}
	payload["services"] = kept
	payload["total"] = len(kept)
	return payload
}

func seg(p map[string]any, key string) string {
	return url.PathEscape(domain.StringParam(p, key))
}

func incidentRef(p map[string]any) map[string]any {
	return map[string]any{"id": domain.StringParam(p, domain.ParamIncidentID), "type": "incident_reference"}
}

func pageQuery(p map[string]any) url.Values {
	q := url.Values{}
	limit, ok := domain.IntParam(p, domain.ParamLimit)
	if !ok || limit <= 0 {
		limit = defaultLimit
	}
	offset, _ := domain.IntParam(p, domain.ParamOffset)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(max(offset, 0)))
	return q
}

func addList(q url.Values, key string, values []string) {
	for _, v := range values {
		q.Add(key, v)
	}
}
