package services

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
)

// entityIDPattern matches incident, service and user ids: a "P" followed by
// at least six alphanumerics. Candidates must look like ids (all upper case
// or containing a digit) so words such as "problems" do not qualify.
var entityIDPattern = regexp.MustCompile(`(?i)\bP[A-Z0-9]{6,}\b`)

// ExtractEntityID returns the first id-shaped token in text, upper-cased, or
// "" when there is none. The second value is the byte offset just past the
// token, used to split trailing compound parameters.
func ExtractEntityID(text string) (string, int) {
	for _, loc := range entityIDPattern.FindAllStringIndex(text, -1) {
		token := text[loc[0]:loc[1]]
		if token == strings.ToUpper(token) || strings.IndexFunc(token, unicode.IsDigit) >= 0 {
			return strings.ToUpper(token), loc[1]
		}
	}
	return "", -1
}

// utterance is the pre-processed input every rule sees.
type utterance struct {
	text  string // trimmed original
	lower string
	id    string
	idEnd int // offset in text just past id, -1 when no id
}

// afterID returns the original text following the id.
func (u utterance) afterID() string {
	if u.idEnd < 0 || u.idEnd > len(u.text) {
		return ""
	}
	return u.text[u.idEnd:]
}

// intentRule is one (predicate, extractor, operation) record. needsID marks
// rules whose command is unusable without an entity id.
type intentRule struct {
	name      string
	operation string
	example   string
	needsID   bool
	match     func(u utterance) bool
	extract   func(u utterance) (params map[string]any, missing string)
}

// IntentClassifier maps free text to exactly one catalog operation using an
// ordered rule table. The first matching rule wins.
type IntentClassifier struct {
	rules []intentRule
}

// NewIntentClassifier builds the classifier for catalog. Rules whose target
// operation is not registered are dropped so every Command it produces names
// a catalog operation. The catalog must provide the summary fallback.
func NewIntentClassifier(catalog *domain.Catalog) (*IntentClassifier, error) {
	if !catalog.Has(domain.OpSummary) {
		return nil, fmt.Errorf("classifier: catalog has no %q operation", domain.OpSummary)
	}
	c := &IntentClassifier{}
	for _, r := range defaultIntentRules() {
		if catalog.Has(r.operation) {
			c.rules = append(c.rules, r)
		}
	}
	return c, nil
}

// Classify never fails: unmatched text becomes a defaulted summary command.
func (c *IntentClassifier) Classify(text string) domain.Command {
	u := utterance{text: strings.TrimSpace(text)}
	u.lower = strings.ToLower(u.text)
	u.id, u.idEnd = ExtractEntityID(u.text)

	for _, r := range c.rules {
		if !r.match(u) {
			continue
		}
		cmd := domain.Command{Operation: r.operation, Rule: r.name, Params: map[string]any{}}
		if r.needsID && u.id == "" {
			cmd.Missing = domain.ParamIncidentID
			if r.operation == domain.OpListServiceIntegr {
				cmd.Missing = domain.ParamServiceID
			}
			return cmd
		}
		if r.extract != nil {
			params, missing := r.extract(u)
			if params != nil {
				cmd.Params = params
			}
			cmd.Missing = missing
		}
		return cmd
	}

	return domain.Command{
		Operation: domain.OpSummary,
		Params:    map[string]any{},
		Rule:      "default",
		Defaulted: true,
	}
}

// Examples returns one sample phrase per active rule, in rule order.
func (c *IntentClassifier) Examples() []string {
	out := make([]string, 0, len(c.rules))
	for _, r := range c.rules {
		if r.example != "" {
			out = append(out, r.example)
		}
	}
	return out
}

// RuleNames lists the active rules in evaluation order.
func (c *IntentClassifier) RuleNames() []string {
	out := make([]string, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.name
	}
	return out
}

var (
	reAckVerb       = regexp.MustCompile(`\b(ack|acknowledge)\b`)
	reAddNote       = regexp.MustCompile(`\badd\s+(a\s+)?note\b|\bnote\s+(to|on|for)\b|\bcomment\s+on\b`)
	reListNotes     = regexp.MustCompile(`\bnotes\b`)
	reResolve       = regexp.MustCompile(`\b(resolve|close)\b`)
	reSnooze        = regexp.MustCompile(`\bsnooze\b`)
	reSnoozeFor     = regexp.MustCompile(`(\d+)\s*(h|hr|hrs|hours?|m|min|mins|minutes?)\b`)
	reEscalate      = regexp.MustCompile(`\bescalate\b`)
	reEscalateLevel = regexp.MustCompile(`\blevel\s+(\d+)\b`)
	reNoteSep       = regexp.MustCompile(`:`)
	reResolutionSep = regexp.MustCompile(`(?i)\s+with\s+`)
	reTimeline      = regexp.MustCompile(`\b(timeline|log entries|logs?|history)\b`)
	reAlerts        = regexp.MustCompile(`\balerts?\b`)
	reRelated       = regexp.MustCompile(`\brelated\b`)
	rePast          = regexp.MustCompile(`\b(past|similar|historical|previous)\b`)
	reBusiness      = regexp.MustCompile(`\bbusiness\s+services?\b`)
	reIntegrations  = regexp.MustCompile(`\bintegrations?\b`)
	reServices      = regexp.MustCompile(`\bservices?\b`)
	reResponsePlays = regexp.MustCompile(`\b(response\s+plays?|runbooks?|playbooks?)\b`)
	reWorkflows     = regexp.MustCompile(`\bworkflows?\b`)
	reHelp          = regexp.MustCompile(`\b(help|commands)\b|what can you do`)
	reSummary       = regexp.MustCompile(`\b(summary|summarize|overview|dashboard|status report|how are things)\b`)
	reOncall        = regexp.MustCompile(`\bon[- ]?call\b|\bwho is on\b`)
	reTeam          = regexp.MustCompile(`\b(team|members)\b`)
	reEscalation    = regexp.MustCompile(`\b(escalation|polic(y|ies))\b`)
	reAnalytics     = regexp.MustCompile(`\b(analytics|metrics|mttr|mtta|stats|statistics)\b`)
	reMaintenance   = regexp.MustCompile(`\bmaintenance\b`)
	reChanges       = regexp.MustCompile(`\b(changes?|change events?|deploy(s|ments?)?|releases?)\b`)
	rePriorities    = regexp.MustCompile(`\bpriorit(y|ies)\b`)
	reIncidents     = regexp.MustCompile(`\b(incidents?|issues?|problems?|outages?|pages?|triggered|acknowledged|resolved|unresolved|open|active)\b`)
)

func matches(re *regexp.Regexp) func(utterance) bool {
	return func(u utterance) bool { return re.MatchString(u.lower) }
}

func withID(re *regexp.Regexp) func(utterance) bool {
	return func(u utterance) bool { return u.id != "" && re.MatchString(u.lower) }
}

func incidentParams(u utterance) (map[string]any, string) {
	return map[string]any{domain.ParamIncidentID: u.id}, ""
}

// splitOnce returns the verbatim text after the first match of sep, trimmed.
// Offsets come from the original string so case folding cannot shift them.
func splitOnce(s string, sep *regexp.Regexp) (string, bool) {
	loc := sep.FindStringIndex(s)
	if loc == nil {
		return "", false
	}
	return strings.TrimSpace(s[loc[1]:]), true
}

// defaultIntentRules is the ordered rule table. Entries carrying an entity id
// come before generic listings so that "resolve P123ABC with ..." never
// reaches the incident listing rule.
func defaultIntentRules() []intentRule {
	return []intentRule{
		{
			name:      "acknowledge",
			operation: domain.OpAcknowledgeIncident,
			example:   "acknowledge P123ABC",
			needsID:   true,
			match: func(u utterance) bool {
				return (u.id != "" && strings.Contains(u.lower, "acknowledge")) || reAckVerb.MatchString(u.lower)
			},
			extract: incidentParams,
		},
		{
			name:      "add_note",
			operation: domain.OpAddIncidentNote,
			example:   "add note to P123ABC: restarted the ingestion pods",
			needsID:   true,
			match:     matches(reAddNote),
			extract: func(u utterance) (map[string]any, string) {
				rest := u.afterID()
				content, ok := splitOnce(rest, reNoteSep)
				if !ok {
					content = strings.TrimSpace(rest)
				}
				params := map[string]any{domain.ParamIncidentID: u.id}
				if content == "" {
					return params, domain.ParamContent
				}
				params[domain.ParamContent] = content
				return params, ""
			},
		},
		{
			name:      "list_notes",
			operation: domain.OpListIncidentNotes,
			example:   "notes for P123ABC",
			needsID:   true,
			match:     matches(reListNotes),
			extract:   incidentParams,
		},
		{
			name:      "resolve",
			operation: domain.OpResolveIncident,
			example:   "resolve P123ABC with restarted the service",
			needsID:   true,
			match:     matches(reResolve),
			extract: func(u utterance) (map[string]any, string) {
				params := map[string]any{domain.ParamIncidentID: u.id}
				if note, ok := splitOnce(u.afterID(), reResolutionSep); ok && note != "" {
					params[domain.ParamResolution] = note
				}
				return params, ""
			},
		},
		{
			name:      "snooze",
			operation: domain.OpSnoozeIncident,
			example:   "snooze P123ABC for 30 minutes",
			needsID:   true,
			match:     matches(reSnooze),
			extract: func(u utterance) (map[string]any, string) {
				params := map[string]any{domain.ParamIncidentID: u.id}
				if m := reSnoozeFor.FindStringSubmatch(strings.ToLower(u.afterID())); m != nil {
					if secs, ok := snoozeSeconds(m[1], m[2]); ok {
						params[domain.ParamDurationSeconds] = secs
					}
				}
				return params, ""
			},
		},
		{
			name:      "escalate",
			operation: domain.OpEscalateIncident,
			example:   "escalate P123ABC to level 2",
			needsID:   true,
			match:     matches(reEscalate),
			extract: func(u utterance) (map[string]any, string) {
				params := map[string]any{domain.ParamIncidentID: u.id}
				if m := reEscalateLevel.FindStringSubmatch(u.lower); m != nil {
					if level, err := strconv.Atoi(m[1]); err == nil && level > 0 {
						params[domain.ParamEscalationLevel] = level
					}
				}
				return params, ""
			},
		},
		{
			name:      "timeline",
			operation: domain.OpGetIncidentLogEntries,
			example:   "timeline for P123ABC",
			needsID:   true,
			match:     matches(reTimeline),
			extract:   incidentParams,
		},
		{
			name:      "alerts",
			operation: domain.OpListIncidentAlerts,
			example:   "alerts for P123ABC",
			needsID:   true,
			match:     withID(reAlerts),
			extract:   incidentParams,
		},
		{
			name:      "related",
			operation: domain.OpGetRelatedIncidents,
			example:   "related incidents for P123ABC",
			needsID:   true,
			match:     matches(reRelated),
			extract:   incidentParams,
		},
		{
			name:      "past",
			operation: domain.OpGetPastIncidents,
			example:   "similar past incidents to P123ABC",
			needsID:   true,
			match:     withID(rePast),
			extract:   incidentParams,
		},
		{
			name:      "business_services",
			operation: domain.OpListBusinessServices,
			example:   "business services",
			match:     matches(reBusiness),
		},
		{
			name:      "service_integrations",
			operation: domain.OpListServiceIntegr,
			example:   "integrations for PFDU7FI",
			needsID:   true,
			match:     matches(reIntegrations),
			extract: func(u utterance) (map[string]any, string) {
				return map[string]any{domain.ParamServiceID: u.id}, ""
			},
		},
		{
			name:      "service",
			operation: domain.OpGetService,
			example:   "service PFDU7FI",
			match:     withID(reServices),
			extract: func(u utterance) (map[string]any, string) {
				return map[string]any{domain.ParamServiceID: u.id}, ""
			},
		},
		{
			name:      "services",
			operation: domain.OpListServices,
			example:   "show services",
			match:     matches(reServices),
		},
		{
			name:      "response_plays",
			operation: domain.OpListResponsePlays,
			example:   "list response plays",
			match:     matches(reResponsePlays),
		},
		{
			name:      "workflows",
			operation: domain.OpListIncidentWorkflows,
			example:   "list workflows",
			match:     matches(reWorkflows),
		},
		{
			name:      "details",
			operation: domain.OpGetIncidentDetails,
			example:   "details P123ABC",
			match:     func(u utterance) bool { return u.id != "" },
			extract:   incidentParams,
		},
		{
			name:      "help",
			operation: domain.OpHelp,
			example:   "help",
			match:     matches(reHelp),
		},
		{
			name:      "summary",
			operation: domain.OpSummary,
			example:   "summary",
			match:     matches(reSummary),
		},
		{
			name:      "oncall",
			operation: domain.OpListOncalls,
			example:   "who is on call",
			match:     matches(reOncall),
		},
		{
			name:      "escalation_policies",
			operation: domain.OpListEscalationPolicy,
			example:   "escalation policies",
			match:     matches(reEscalation),
		},
		{
			name:      "team",
			operation: domain.OpListTeamMembers,
			example:   "team members",
			match:     matches(reTeam),
		},
		{
			name:      "analytics",
			operation: domain.OpGetIncidentAnalytics,
			example:   "incident analytics",
			match:     matches(reAnalytics),
		},
		{
			name:      "maintenance",
			operation: domain.OpListMaintenance,
			example:   "maintenance windows",
			match:     matches(reMaintenance),
		},
		{
			name:      "changes",
			operation: domain.OpListChangeEvents,
			example:   "recent deployments",
			match:     matches(reChanges),
		},
		{
			name:      "priorities",
			operation: domain.OpListPriorities,
			example:   "priorities",
			match:     matches(rePriorities),
		},
		{
			name:      "list_incidents",
			operation: domain.OpListIncidents,
			example:   "show open high urgency incidents",
			match:     matches(reIncidents),
			extract:   incidentFilters,
		},
	}
}

// maxSnoozeSeconds caps a snooze at one week.
const maxSnoozeSeconds = 7 * 24 * 3600

// snoozeSeconds converts a matched amount and unit. Unparseable or zero
// amounts are rejected; large ones are clamped before multiplying.
func snoozeSeconds(amount, unit string) (int, bool) {
	n, err := strconv.Atoi(amount)
	if err != nil || n <= 0 {
		if errors.Is(err, strconv.ErrRange) {
			return maxSnoozeSeconds, true
		}
		return 0, false
	}
	perUnit := 60
	if strings.HasPrefix(unit, "h") {
		perUnit = 3600
	}
	if n > maxSnoozeSeconds/perUnit {
		return maxSnoozeSeconds, true
	}
	return n * perUnit, true
}

var (
	reOpen         = regexp.MustCompile(`\b(open|active|unresolved)\b`)
	reTriggered    = regexp.MustCompile(`\btriggered\b`)
	reAcknowledged = regexp.MustCompile(`\backnowledged\b`)
	reResolved     = regexp.MustCompile(`\bresolved\b`)
	reHighUrgency  = regexp.MustCompile(`\b(high|critical|urgent)\b`)
	reLowUrgency   = regexp.MustCompile(`\blow\b`)
)

// incidentFilters turns status and urgency words into list filters.
func incidentFilters(u utterance) (map[string]any, string) {
	params := map[string]any{}

	var statuses []string
	switch {
	case reOpen.MatchString(u.lower):
		statuses = []string{"triggered", "acknowledged"}
	default:
		if reTriggered.MatchString(u.lower) {
			statuses = append(statuses, "triggered")
		}
		if reAcknowledged.MatchString(u.lower) {
			statuses = append(statuses, "acknowledged")
		}
		if reResolved.MatchString(u.lower) {
			statuses = append(statuses, "resolved")
		}
	}
	if len(statuses) > 0 {
		params[domain.ParamStatuses] = statuses
	}

	switch {
	case reHighUrgency.MatchString(u.lower):
		params[domain.ParamUrgencies] = []string{"high"}
	case reLowUrgency.MatchString(u.lower):
		params[domain.ParamUrgencies] = []string{"low"}
	}
	return params, ""
}
