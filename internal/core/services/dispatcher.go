package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
	"github.com/manthysbr/incidentdesk/internal/core/ports"
)

// DispatcherDeps are the collaborators of a Dispatcher. Reasoning, Bus and
// Metrics are optional.
type DispatcherDeps struct {
	Catalog    *domain.Catalog
	Classifier *IntentClassifier
	Backend    ports.ExecutionBackend
	Reasoning  ports.ReasoningStrategy
	Store      *ConversationStore
	Bus        *EventBus
	Metrics    *DispatchMetrics
}

// Dispatcher routes each message either through the reasoning strategy or
// through the rule-based classifier. Repeated reasoning failures switch the
// whole process to rule-based mode for good.
type Dispatcher struct {
	logger     *slog.Logger
	catalog    *domain.Catalog
	classifier *IntentClassifier
	backend    ports.ExecutionBackend
	reasoning  ports.ReasoningStrategy
	store      *ConversationStore
	bus        *EventBus
	metrics    *DispatchMetrics
	breaker    *StrategyBreaker
	window     int
}

// NewDispatcher validates deps and builds the dispatcher.
func NewDispatcher(logger *slog.Logger, deps DispatcherDeps, cfg domain.DispatcherConfig) (*Dispatcher, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("dispatcher: catalog is required")
	case deps.Classifier == nil:
		return nil, errors.New("dispatcher: classifier is required")
	case deps.Backend == nil:
		return nil, errors.New("dispatcher: backend is required")
	case deps.Store == nil:
		return nil, errors.New("dispatcher: conversation store is required")
	}
	if cfg.ContextWindow < 0 {
		return nil, fmt.Errorf("dispatcher: context window must be >= 0, got %d", cfg.ContextWindow)
	}

	d := &Dispatcher{
		logger:     logger,
		catalog:    deps.Catalog,
		classifier: deps.Classifier,
		backend:    deps.Backend,
		reasoning:  deps.Reasoning,
		store:      deps.Store,
		bus:        deps.Bus,
		metrics:    deps.Metrics,
		breaker:    NewStrategyBreaker(cfg.FailureThreshold, deps.Reasoning != nil),
		window:     cfg.ContextWindow,
	}
	d.metrics.setMode(d.breaker.Mode())
	return d, nil
}

// Mode returns the current strategy mode.
func (d *Dispatcher) Mode() domain.Mode {
	return d.breaker.Mode()
}

// BreakerStats returns a snapshot of the strategy breaker.
func (d *Dispatcher) BreakerStats() BreakerStats {
	return d.breaker.Stats()
}

// SessionCount returns the number of conversations held in memory.
func (d *Dispatcher) SessionCount() int {
	return d.store.SessionCount()
}

// ReasoningConfigured reports whether a reasoning strategy was supplied.
func (d *Dispatcher) ReasoningConfigured() bool {
	return d.reasoning != nil
}

// BackendName identifies the execution backend.
func (d *Dispatcher) BackendName() string {
	return d.backend.Name()
}

// Catalog exposes the operation catalog.
func (d *Dispatcher) Catalog() *domain.Catalog {
	return d.catalog
}

// History returns a session's stored messages.
func (d *Dispatcher) History(ctx context.Context, sessionID domain.SessionID, limit int) ([]domain.Message, error) {
	return d.store.History(ctx, sessionID, limit)
}

// HandleMessage answers one user turn. It never returns a raw failure:
// every problem is reported through DispatchOutcome.Error.
func (d *Dispatcher) HandleMessage(ctx context.Context, text string, sessionID domain.SessionID) domain.DispatchOutcome {
	if sessionID == "" {
		sessionID = domain.NewSessionID()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.DispatchOutcome{
			SessionID:  sessionID,
			Text:       "Please type a request, or \"help\" for examples.",
			Operations: []string{},
			Mode:       d.breaker.Mode(),
			Error:      &domain.DispatchError{Code: domain.CodeInvalidMessage, Message: domain.ErrEmptyMessage.Error()},
		}
	}

	userMsg, err := d.store.Append(ctx, domain.NewMessage(sessionID, domain.RoleUser, text))
	if err != nil {
		d.logger.Error("failed to store user message", "session_id", string(sessionID), "error", err)
	}

	outcome, answered := d.tryReasoning(ctx, sessionID, text, userMsg.Seq)
	if !answered {
		outcome = d.ruleBased(ctx, text)
	}
	outcome.SessionID = sessionID

	if _, err := d.store.Append(ctx, domain.NewMessage(sessionID, domain.RoleAgent, outcome.Text)); err != nil {
		d.logger.Error("failed to store agent message", "session_id", string(sessionID), "error", err)
	}
	d.metrics.recordRequest(outcome.Mode)
	d.publishOperations(sessionID, outcome)
	return outcome
}

// publishOperations announces the operations a turn invoked on the session topic.
func (d *Dispatcher) publishOperations(sessionID domain.SessionID, outcome domain.DispatchOutcome) {
	if d.bus == nil || len(outcome.Operations) == 0 {
		return
	}
	d.bus.PublishJSON(string(sessionID), EventTypeOperation, map[string]any{
		"operations": outcome.Operations,
		"mode":       outcome.Mode,
		"failed":     outcome.Error != nil,
	})
}

// tryReasoning runs the reasoning strategy when the breaker allows it. The
// second value is false when the caller must fall through to rule-based.
func (d *Dispatcher) tryReasoning(ctx context.Context, sessionID domain.SessionID, text string, seq int) (domain.DispatchOutcome, bool) {
	if d.reasoning == nil || d.breaker.Mode() != domain.ModeReasoning {
		return domain.DispatchOutcome{}, false
	}

	history := d.store.RecentBefore(ctx, sessionID, seq, d.window)
	result, err := d.runReasoning(ctx, text, history)
	if err == nil {
		d.breaker.Record(ReasoningSucceeded)
		ops := result.Operations
		if ops == nil {
			ops = []string{}
		}
		return domain.DispatchOutcome{Text: result.Text, Operations: ops, Mode: domain.ModeReasoning}, true
	}

	// A cancelled caller says nothing about the strategy's health.
	if ctx.Err() != nil {
		d.logger.Info("request cancelled during reasoning", "session_id", string(sessionID), "error", ctx.Err())
		return domain.DispatchOutcome{
			Text:       "The request was cancelled before it completed.",
			Operations: []string{},
			Mode:       domain.ModeReasoning,
			Error:      &domain.DispatchError{Code: domain.CodeBackendTransport, Message: ctx.Err().Error()},
		}, true
	}

	d.recordReasoningFailure(sessionID, err, result.Operations)
	return domain.DispatchOutcome{}, false
}

// runReasoning calls the strategy, converting panics and empty answers into errors.
func (d *Dispatcher) runReasoning(ctx context.Context, text string, history []domain.Message) (result domain.ReasoningResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reasoning strategy panic: %v", r)
		}
	}()
	result, err = d.reasoning.Run(ctx, text, history)
	if err == nil && strings.TrimSpace(result.Text) == "" {
		err = errors.New("reasoning strategy returned an empty answer")
	}
	return result, err
}

func (d *Dispatcher) recordReasoningFailure(sessionID domain.SessionID, err error, partialOps []string) {
	d.metrics.recordReasoningFailure()
	state, tripped := d.breaker.Record(ReasoningFailed)

	d.logger.Warn("reasoning strategy failed, answering with rules",
		"session_id", string(sessionID),
		"consecutive_failures", state.ConsecutiveFailures,
		"threshold", state.Threshold,
		"partial_operations", partialOps,
		"error", err)

	if !tripped {
		return
	}
	d.logger.Error("reasoning strategy disabled for the rest of the process lifetime",
		"failures", state.ConsecutiveFailures)
	d.metrics.recordTrip()
	if d.bus != nil {
		d.bus.PublishJSON(TopicDispatcher, EventTypeModeChanged, map[string]any{
			"mode":     state.Mode,
			"failures": state.ConsecutiveFailures,
		})
	}
}

// ruleBased classifies text and executes at most one backend operation.
func (d *Dispatcher) ruleBased(ctx context.Context, text string) domain.DispatchOutcome {
	cmd := d.classifier.Classify(text)
	outcome := domain.DispatchOutcome{Operations: []string{}, Mode: domain.ModeRuleBased}

	if cmd.NeedsClarification() {
		outcome.Text = RenderClarification(cmd)
		outcome.Error = &domain.DispatchError{
			Code:    domain.CodeMissingParameter,
			Message: fmt.Sprintf("%s requires %s", cmd.Operation, cmd.Missing),
		}
		return outcome
	}

	spec, err := d.catalog.Lookup(cmd.Operation)
	if err != nil {
		// Unreachable with a classifier built from this catalog.
		d.logger.Error("classifier produced an unknown operation", "operation", cmd.Operation)
		spec, _ = d.catalog.Lookup(domain.OpSummary)
		cmd = domain.Command{Operation: domain.OpSummary, Params: map[string]any{}, Defaulted: true}
	}

	if spec.Local {
		outcome.Text = RenderHelp(d.classifier.Examples())
		return outcome
	}

	res := d.execute(ctx, cmd.Operation, cmd.Params)
	outcome.Operations = append(outcome.Operations, cmd.Operation)
	if !res.OK() {
		outcome.Text = RenderFailure(spec, res.Failure)
		outcome.Error = &domain.DispatchError{Code: domain.CodeForFailure(res.Failure), Message: res.Failure.Message}
		return outcome
	}

	outcome.Text = RenderResult(res)
	if cmd.Defaulted {
		outcome.Text = "I did not recognise that request, so here is the current overview.\n" + outcome.Text
	}
	return outcome
}

// execute calls the backend once. No retries happen here.
func (d *Dispatcher) execute(ctx context.Context, operation string, params map[string]any) (res domain.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			res = domain.Failed(operation, domain.NewFailure(domain.FailureUpstream, nil, "backend panic: %v", r))
		}
	}()
	return d.backend.Execute(ctx, operation, params)
}

// ExecuteOperation runs one named catalog operation with structured params.
// Unknown names return ErrOperationNotFound; execution problems are reported
// inside the result.
func (d *Dispatcher) ExecuteOperation(ctx context.Context, name string, params map[string]any) (domain.ExecutionResult, error) {
	spec, err := d.catalog.Lookup(name)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	if params == nil {
		params = map[string]any{}
	}
	if spec.Local {
		return domain.Success(name, map[string]any{"message": RenderHelp(d.classifier.Examples())}), nil
	}
	if err := checkRequired(spec, params); err != nil {
		return domain.Failed(name, domain.NewFailure(domain.FailureInvalidInput, err, "%s", err.Error())), nil
	}
	return d.execute(ctx, name, params), nil
}
