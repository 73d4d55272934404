package domain

// Operation names referenced from code. The full set lives in builtinOperations.
const (
	OpHelp                  = "help"
	OpSummary               = "summary"
	OpListIncidents         = "list_incidents"
	OpGetIncidentDetails    = "get_incident_details"
	OpGetIncidentLogEntries = "get_incident_log_entries"
	OpAcknowledgeIncident   = "acknowledge_incident"
	OpResolveIncident       = "resolve_incident"
	OpAddIncidentNote       = "add_incident_note"
	OpListIncidentNotes     = "list_incident_notes"
	OpListIncidentAlerts    = "list_incident_alerts"
	OpGetAlert              = "get_alert"
	OpGetRelatedIncidents   = "get_related_incidents"
	OpGetPastIncidents      = "get_past_incidents"
	OpSnoozeIncident        = "snooze_incident"
	OpEscalateIncident      = "escalate_incident"
	OpAddResponders         = "add_responders"
	OpListServices          = "list_services"
	OpGetService            = "get_service"
	OpListServiceIntegr     = "list_service_integrations"
	OpListOncalls           = "list_oncalls"
	OpListTeamMembers       = "list_team_members"
	OpListEscalationPolicy  = "list_escalation_policies"
	OpGetUser               = "get_user"
	OpGetIncidentAnalytics  = "get_incident_analytics"
	OpListMaintenance       = "list_maintenance_windows"
	OpListChangeEvents      = "list_change_events"
	OpListPriorities        = "list_priorities"
	OpListBusinessServices  = "list_business_services"
	OpListResponsePlays     = "list_response_plays"
	OpRunResponsePlay       = "run_response_play"
	OpListIncidentWorkflows = "list_incident_workflows"
	OpStartIncidentWorkflow = "start_incident_workflow"
)

// Parameter names shared between the classifier and the backends.
const (
	ParamIncidentID       = "incident_id"
	ParamResolution       = "resolution"
	ParamContent          = "content"
	ParamStatuses         = "statuses"
	ParamUrgencies        = "urgencies"
	ParamServiceID        = "service_id"
	ParamAlertID          = "alert_id"
	ParamUserID           = "user_id"
	ParamResponsePlayID   = "response_play_id"
	ParamWorkflowID       = "workflow_id"
	ParamDurationSeconds  = "duration_seconds"
	ParamEscalationLevel  = "escalation_level"
	ParamResponderIDs     = "responder_ids"
	ParamLimit            = "limit"
	ParamOffset           = "offset"
	ParamSince            = "since"
	ParamUntil            = "until"
	ParamIntegrationID    = "integration_id"
	ParamRequesterID      = "requester_id"
	ParamSortBy           = "sort_by"
	ParamStatus           = "status"
	ParamTeamIDs          = "team_ids"
	ParamServiceIDs       = "service_ids"
	ParamAggregateUnit    = "aggregate_unit"
	ParamMessage          = "message"
)

var builtinOperations = []OperationSpec{
	{Name: OpHelp, Description: "Show the commands understood in rule-based mode", Local: true},
	{Name: OpSummary, Description: "Operations overview: open incidents by status and urgency plus current on-call count"},
	{Name: OpListIncidents, Description: "List incidents for the monitored services with optional filters",
		Parameters: []string{ParamStatuses, ParamUrgencies, ParamLimit, ParamOffset, ParamSince, ParamUntil, ParamSortBy}},
	{Name: OpGetIncidentDetails, Description: "Get detailed information about one incident",
		Parameters: []string{ParamIncidentID}, Required: []string{ParamIncidentID}},
	{Name: OpGetIncidentLogEntries, Description: "Get the timeline (log entries) of an incident",
		Parameters: []string{ParamIncidentID}, Required: []string{ParamIncidentID}},
	{Name: OpAcknowledgeIncident, Description: "Acknowledge a triggered incident",
		Parameters: []string{ParamIncidentID}, Required: []string{ParamIncidentID}, Mutating: true},
	{Name: OpResolveIncident, Description: "Resolve an incident with an optional resolution note",
		Parameters: []string{ParamIncidentID, ParamResolution}, Required: []string{ParamIncidentID}, Mutating: true},
	{Name: OpAddIncidentNote, Description: "Add a note to an incident",
		Parameters: []string{ParamIncidentID, ParamContent}, Required: []string{ParamIncidentID, ParamContent}, Mutating: true},
	{Name: OpListIncidentNotes, Description: "List the notes on an incident",
		Parameters: []string{ParamIncidentID}, Required: []string{ParamIncidentID}},
	{Name: OpListIncidentAlerts, Description: "List the alerts grouped under an incident",
		Parameters: []string{ParamIncidentID, ParamStatuses, ParamLimit}, Required: []string{ParamIncidentID}},
	{Name: OpGetAlert, Description: "Get full details of one alert of an incident",
		Parameters: []string{ParamIncidentID, ParamAlertID}, Required: []string{ParamIncidentID, ParamAlertID}},
	{Name: OpGetRelatedIncidents, Description: "Find incidents related to an incident (cascading failures, shared causes)",
		Parameters: []string{ParamIncidentID}, Required: []string{ParamIncidentID}},
	{Name: OpGetPastIncidents, Description: "Find similar historical incidents and how they were resolved",
		Parameters: []string{ParamIncidentID, ParamLimit}, Required: []string{ParamIncidentID}},
	{Name: OpSnoozeIncident, Description: "Snooze an acknowledged incident for a number of seconds",
		Parameters: []string{ParamIncidentID, ParamDurationSeconds}, Required: []string{ParamIncidentID}, Mutating: true},
	{Name: OpEscalateIncident, Description: "Escalate an incident to a given escalation level",
		Parameters: []string{ParamIncidentID, ParamEscalationLevel}, Required: []string{ParamIncidentID}, Mutating: true},
	{Name: OpAddResponders, Description: "Request additional responders on an incident",
		Parameters: []string{ParamIncidentID, ParamResponderIDs, ParamRequesterID, ParamMessage},
		Required: []string{ParamIncidentID, ParamResponderIDs}, Mutating: true},
	{Name: OpListServices, Description: "List the monitored services and their status"},
	{Name: OpGetService, Description: "Get details of a monitored service",
		Parameters: []string{ParamServiceID}, Required: []string{ParamServiceID}},
	{Name: OpListServiceIntegr, Description: "List the integrations of a monitored service",
		Parameters: []string{ParamServiceID}, Required: []string{ParamServiceID}},
	{Name: OpListOncalls, Description: "Show who is currently on call"},
	{Name: OpListTeamMembers, Description: "List members of the operations team"},
	{Name: OpListEscalationPolicy, Description: "List escalation policies"},
	{Name: OpGetUser, Description: "Get a user's profile and contact details",
		Parameters: []string{ParamUserID}, Required: []string{ParamUserID}},
	{Name: OpGetIncidentAnalytics, Description: "Incident metrics such as MTTA and MTTR for the monitored services",
		Parameters: []string{ParamSince, ParamUntil, ParamAggregateUnit}},
	{Name: OpListMaintenance, Description: "List scheduled and ongoing maintenance windows"},
	{Name: OpListChangeEvents, Description: "List recent change events such as deployments",
		Parameters: []string{ParamSince, ParamUntil, ParamLimit}},
	{Name: OpListPriorities, Description: "List incident priority levels"},
	{Name: OpListBusinessServices, Description: "List business services"},
	{Name: OpListResponsePlays, Description: "List available response plays (runbooks)"},
	{Name: OpRunResponsePlay, Description: "Run a response play on an incident",
		Parameters: []string{ParamResponsePlayID, ParamIncidentID}, Required: []string{ParamResponsePlayID, ParamIncidentID}, Mutating: true},
	{Name: OpListIncidentWorkflows, Description: "List incident workflows"},
	{Name: OpStartIncidentWorkflow, Description: "Start an incident workflow on an incident",
		Parameters: []string{ParamWorkflowID, ParamIncidentID}, Required: []string{ParamWorkflowID, ParamIncidentID}, Mutating: true},
}

// BuiltinCatalog returns a catalog holding the fixed operation table.
func BuiltinCatalog() *Catalog {
	c := NewCatalog()
	for _, spec := range builtinOperations {
		// The table is static; a duplicate here is a programming error.
		if err := c.Register(spec); err != nil {
			panic(err)
		}
	}
	return c
}
