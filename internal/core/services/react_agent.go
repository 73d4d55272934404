package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
	"github.com/manthysbr/incidentdesk/internal/core/ports"
)

const maxObservationLen = 4000

var (
	finalAnswerRe = regexp.MustCompile(`(?is)Final\s*Answer:\s*(.*)`)
	thoughtRe     = regexp.MustCompile(`(?i)Thought:\s*([^\n]+)`)
	actionRe      = regexp.MustCompile(`(?i)Action:\s*([a-z][a-z0-9_]*)`)
	actionInputRe = regexp.MustCompile(`(?i)Action\s*Input:\s*`)
)

// ReActStrategy is the LLM-backed reasoning strategy. It alternates model
// calls and catalog operations until the model produces a final answer.
type ReActStrategy struct {
	logger   *slog.Logger
	llm      domain.LLMProvider
	catalog  *domain.Catalog
	backend  ports.ExecutionBackend
	scope    domain.ScopeConfig
	maxIters int
	timeout  time.Duration
}

// NewReActStrategy creates the strategy. timeout bounds one whole Run.
func NewReActStrategy(
	logger *slog.Logger,
	llm domain.LLMProvider,
	catalog *domain.Catalog,
	backend ports.ExecutionBackend,
	scope domain.ScopeConfig,
	maxIters int,
	timeout time.Duration,
) *ReActStrategy {
	if maxIters <= 0 {
		maxIters = 10
	}
	return &ReActStrategy{
		logger:   logger,
		llm:      llm,
		catalog:  catalog,
		backend:  backend,
		scope:    scope,
		maxIters: maxIters,
		timeout:  timeout,
	}
}

// Run answers text given the trimmed history. The returned result carries
// the operations executed so far even when err is non-nil.
func (s *ReActStrategy) Run(ctx context.Context, text string, history []domain.Message) (domain.ReasoningResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	transcript := []string{s.buildPrompt(FormatHistory(history), text)}
	result := domain.ReasoningResult{Operations: []string{}}

	for i := 0; i < s.maxIters; i++ {
		prompt := strings.Join(transcript, "\n\n")
		response, err := s.llm.GenerateText(ctx, prompt)
		if err != nil {
			return result, fmt.Errorf("llm generate: %w", err)
		}
		s.logger.Debug("ReAct iteration", "iteration", i+1, "response", response[:min(200, len(response))])

		step := s.parseReActOutput(response)
		if step.IsFinalAnswer {
			step.Observation = ""
			result.Steps = append(result.Steps, step)
			result.Text = step.FinalAnswer
			return result, nil
		}

		step.Observation = s.observe(ctx, step, &result)
		result.Steps = append(result.Steps, step)

		transcript = append(transcript, response, "Observation: "+step.Observation)
	}

	return result, fmt.Errorf("max iterations (%d) reached without final answer", s.maxIters)
}

// observe executes the step's action and renders the observation text.
func (s *ReActStrategy) observe(ctx context.Context, step domain.ReActStep, result *domain.ReasoningResult) string {
	if step.Action == "" {
		return "Error: no Action found. Reply with an Action from the list or a Final Answer."
	}

	spec, err := s.catalog.Lookup(step.Action)
	if err != nil {
		hint := ""
		if suggestion := s.catalog.Suggest(step.Action); suggestion != "" {
			hint = fmt.Sprintf(" Did you mean %q?", suggestion)
		}
		return fmt.Sprintf("Error: unknown operation %q.%s", step.Action, hint)
	}
	if spec.Local {
		return "Error: " + spec.Name + " is not available here; answer directly."
	}

	params := step.ActionInput
	if params == nil {
		params = map[string]any{}
	}
	if err := checkRequired(spec, params); err != nil {
		return "Error: " + err.Error()
	}

	res := s.backend.Execute(ctx, spec.Name, params)
	result.Operations = append(result.Operations, spec.Name)
	if !res.OK() {
		obs := fmt.Sprintf("Error (%s): %s", res.Failure.Kind, res.Failure.Message)
		if spec.Mutating && res.Failure.Kind == domain.FailureTransport {
			obs += ". The change may have been applied; do not repeat it, tell the user to verify."
		}
		return obs
	}

	data, err := json.Marshal(res.Payload)
	if err != nil {
		return "Error: unreadable result"
	}
	obs := string(data)
	if len(obs) > maxObservationLen {
		obs = obs[:maxObservationLen] + "...(truncated)"
	}
	return obs
}

// buildPrompt creates the initial prompt with the operation list and history.
func (s *ReActStrategy) buildPrompt(history, userMessage string) string {
	var historyBlock string
	if history != "" {
		historyBlock = fmt.Sprintf("Previous conversation:\n%s---\n", history)
	}

	services := make([]string, 0, len(s.scope.Services))
	for _, svc := range s.scope.Services {
		services = append(services, fmt.Sprintf("%s (%s)", svc.Name, svc.ID))
	}

	return fmt.Sprintf(`You are an incident response assistant for the team %s.
You only operate on these services: %s.

You use the ReAct pattern: Thought, Action, Observation, repeated until Final Answer.

FORMAT (operation call):
Thought: <reasoning>
Action: <EXACT operation name from the list below>
Action Input: <JSON params>

FORMAT (direct answer):
Thought: <reasoning>
Final Answer: <response>

%s
RULES:
1. Always start with "Thought:"
2. Use the EXACT operation name from the list. Do NOT invent operation names.
3. Action Input must be valid JSON on one line.
4. Operations marked [mutating] change incidents. Run them only when the user asked for that change, and never repeat one after an error.
5. Incident ids look like P123ABC.

%s
Now respond to:
User: %s`, s.scope.TeamName, strings.Join(services, ", "), s.catalog.FormatForPrompt(), historyBlock, userMessage)
}

// parseReActOutput extracts Thought/Action/ActionInput or FinalAnswer from LLM response
func (s *ReActStrategy) parseReActOutput(response string) domain.ReActStep {
	step := domain.ReActStep{}

	if matches := thoughtRe.FindStringSubmatch(response); len(matches) > 1 {
		step.Thought = strings.TrimSpace(matches[1])
	}

	// An Action takes precedence over a Final Answer the model wrote ahead
	// of seeing the observation.
	actionLoc := actionRe.FindStringSubmatchIndex(response)
	finalLoc := finalAnswerRe.FindStringSubmatchIndex(response)
	if finalLoc != nil && (actionLoc == nil || finalLoc[0] < actionLoc[0]) {
		step.IsFinalAnswer = true
		step.FinalAnswer = strings.TrimSpace(response[finalLoc[2]:finalLoc[3]])
		return step
	}

	if actionLoc != nil {
		step.Action = strings.TrimSpace(response[actionLoc[2]:actionLoc[3]])
	}
	step.ActionInput = s.extractActionInput(response)
	return step
}

// extractActionInput extracts the JSON object from "Action Input: {...}" using brace-depth counting
// to handle nested JSON objects correctly.
func (s *ReActStrategy) extractActionInput(response string) map[string]any {
	loc := actionInputRe.FindStringIndex(response)
	if loc == nil {
		return nil
	}

	rest := response[loc[1]:]
	start := strings.Index(rest, "{")
	if start < 0 {
		return nil
	}

	depth := 0
	inStr := false
	escaped := false
	for i := start; i < len(rest); i++ {
		ch := rest[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inStr {
			escaped = true
			continue
		}
		if ch == '"' {
			inStr = !inStr
			continue
		}
		if inStr {
			continue
		}
		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				jsonStr := rest[start : i+1]
				var params map[string]any
				if err := json.Unmarshal([]byte(jsonStr), &params); err != nil {
					s.logger.Warn("failed to parse action input JSON", "error", err, "json", jsonStr)
					return nil
				}
				return params
			}
		}
	}
	return nil
}
