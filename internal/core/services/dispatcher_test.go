package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
)

// stubBackend records calls and answers from a per-operation table.
type stubBackend struct {
	mu      sync.Mutex
	calls   []string
	results map[string]domain.ExecutionResult
	delay   time.Duration
	panics  bool
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Execute(ctx context.Context, op string, params map[string]any) domain.ExecutionResult {
	b.mu.Lock()
	b.calls = append(b.calls, op)
	b.mu.Unlock()
	if b.panics {
		panic("boom")
	}
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return domain.Failed(op, domain.NewFailure(domain.FailureTransport, ctx.Err(), "cancelled"))
		}
	}
	if res, ok := b.results[op]; ok {
		return res
	}
	return domain.Success(op, map[string]any{"incident": map[string]any{"id": params[domain.ParamIncidentID], "status": "ok"}})
}

func (b *stubBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// stubStrategy fails while fail is set and remembers the history it saw.
type stubStrategy struct {
	fail        atomic.Bool
	calls       atomic.Int32
	mu          sync.Mutex
	lastHistory []domain.Message
	block       bool
}

func (s *stubStrategy) Run(ctx context.Context, text string, history []domain.Message) (domain.ReasoningResult, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.lastHistory = history
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return domain.ReasoningResult{}, ctx.Err()
	}
	if s.fail.Load() {
		return domain.ReasoningResult{}, errors.New("llm unavailable")
	}
	return domain.ReasoningResult{Text: "reasoned: " + text, Operations: []string{domain.OpListIncidents}}, nil
}

type dispatcherFixture struct {
	d        *Dispatcher
	backend  *stubBackend
	strategy *stubStrategy
	bus      *EventBus
	metrics  *DispatchMetrics
}

func newDispatcherFixture(t *testing.T, withReasoning bool, threshold int) *dispatcherFixture {
	t.Helper()
	logger := testLogger()
	catalog := domain.BuiltinCatalog()
	classifier, err := NewIntentClassifier(catalog)
	require.NoError(t, err)

	f := &dispatcherFixture{
		backend: &stubBackend{results: map[string]domain.ExecutionResult{}},
		bus:     NewEventBus(logger),
		metrics: NewDispatchMetrics(prometheus.NewRegistry()),
	}
	deps := DispatcherDeps{
		Catalog:    catalog,
		Classifier: classifier,
		Backend:    NewGuardedBackend(logger, f.backend, f.metrics),
		Store:      NewConversationStore(logger, nil, 0),
		Bus:        f.bus,
		Metrics:    f.metrics,
	}
	if withReasoning {
		f.strategy = &stubStrategy{}
		deps.Reasoning = f.strategy
	}
	f.d, err = NewDispatcher(logger, deps, domain.DispatcherConfig{FailureThreshold: threshold, ContextWindow: 4})
	require.NoError(t, err)
	return f
}

func TestDispatcher_AcknowledgeRuleBased(t *testing.T) {
	f := newDispatcherFixture(t, false, 3)

	out := f.d.HandleMessage(context.Background(), "acknowledge P1234567", "s1")
	assert.Nil(t, out.Error)
	assert.Equal(t, []string{domain.OpAcknowledgeIncident}, out.Operations)
	assert.Equal(t, domain.ModeRuleBased, out.Mode)
	assert.Contains(t, out.Text, "P1234567")
	assert.Equal(t, []string{domain.OpAcknowledgeIncident}, f.backend.Calls())
}

func TestDispatcher_NotFoundKeepsAttemptedOperation(t *testing.T) {
	f := newDispatcherFixture(t, false, 3)
	f.backend.results[domain.OpGetIncidentDetails] = domain.Failed(domain.OpGetIncidentDetails,
		&domain.Failure{Kind: domain.FailureNotFound, Message: "Incident Not Found", Status: 404})

	out := f.d.HandleMessage(context.Background(), "details PZZZZZZZ", "s1")
	require.NotNil(t, out.Error)
	assert.Equal(t, domain.CodeBackendNotFound, out.Error.Code)
	assert.Equal(t, []string{domain.OpGetIncidentDetails}, out.Operations)
}

func TestDispatcher_NonsenseDefaultsToSummary(t *testing.T) {
	f := newDispatcherFixture(t, false, 3)

	out := f.d.HandleMessage(context.Background(), "asdkjasd nonsense", "s1")
	assert.Nil(t, out.Error)
	assert.Equal(t, []string{domain.OpSummary}, out.Operations)
}

func TestDispatcher_ClarificationNeverCallsBackend(t *testing.T) {
	f := newDispatcherFixture(t, false, 3)

	out := f.d.HandleMessage(context.Background(), "please resolve it", "s1")
	require.NotNil(t, out.Error)
	assert.Equal(t, domain.CodeMissingParameter, out.Error.Code)
	assert.Empty(t, out.Operations)
	assert.Empty(t, f.backend.Calls())
}

func TestDispatcher_HelpIsLocal(t *testing.T) {
	f := newDispatcherFixture(t, false, 3)

	out := f.d.HandleMessage(context.Background(), "help", "s1")
	assert.Nil(t, out.Error)
	assert.Contains(t, out.Text, "acknowledge P123ABC")
	assert.Empty(t, f.backend.Calls())
}

func TestDispatcher_EmptyMessage(t *testing.T) {
	f := newDispatcherFixture(t, true, 3)

	out := f.d.HandleMessage(context.Background(), "   ", "s1")
	require.NotNil(t, out.Error)
	assert.Equal(t, domain.CodeInvalidMessage, out.Error.Code)
	assert.Equal(t, int32(0), f.strategy.calls.Load())
}

func TestDispatcher_MutatingTransportErrorIsAmbiguous(t *testing.T) {
	f := newDispatcherFixture(t, false, 3)
	f.backend.results[domain.OpResolveIncident] = domain.Failed(domain.OpResolveIncident,
		domain.NewFailure(domain.FailureTransport, context.DeadlineExceeded, "timeout"))

	out := f.d.HandleMessage(context.Background(), "resolve P1234567 with fixed the leak", "s1")
	require.NotNil(t, out.Error)
	assert.Equal(t, domain.CodeBackendTransport, out.Error.Code)
	assert.Contains(t, out.Text, "may or may not have been applied")
	// Exactly one attempt: no retry on transport errors.
	assert.Equal(t, []string{domain.OpResolveIncident}, f.backend.Calls())
}

func TestDispatcher_BackendPanicBecomesUpstreamError(t *testing.T) {
	f := newDispatcherFixture(t, false, 3)
	f.backend.panics = true

	out := f.d.HandleMessage(context.Background(), "show incidents", "s1")
	require.NotNil(t, out.Error)
	assert.Equal(t, domain.CodeBackendUpstream, out.Error.Code)
}

func TestDispatcher_ReasoningSuccess(t *testing.T) {
	f := newDispatcherFixture(t, true, 3)

	out := f.d.HandleMessage(context.Background(), "what is burning?", "s1")
	assert.Nil(t, out.Error)
	assert.Equal(t, domain.ModeReasoning, out.Mode)
	assert.Equal(t, "reasoned: what is burning?", out.Text)
	assert.Equal(t, []string{domain.OpListIncidents}, out.Operations)
	assert.Empty(t, f.backend.Calls())
}

func TestDispatcher_ReasoningFailureFallsThroughToRules(t *testing.T) {
	f := newDispatcherFixture(t, true, 3)
	f.strategy.fail.Store(true)

	out := f.d.HandleMessage(context.Background(), "acknowledge P1234567", "s1")
	assert.Nil(t, out.Error)
	assert.Equal(t, domain.ModeRuleBased, out.Mode)
	assert.Equal(t, []string{domain.OpAcknowledgeIncident}, out.Operations)
	assert.NotContains(t, out.Text, "llm unavailable")
	assert.Equal(t, domain.ModeReasoning, f.d.Mode())
	assert.Equal(t, 1, f.d.BreakerStats().ConsecutiveFailures)
}

func TestDispatcher_BreakerTripsAndStaysDegraded(t *testing.T) {
	f := newDispatcherFixture(t, true, 3)
	events, unsub := f.bus.Subscribe(TopicDispatcher)
	defer unsub()

	f.strategy.fail.Store(true)
	for i := 0; i < 3; i++ {
		f.d.HandleMessage(context.Background(), "show incidents", "s1")
	}
	assert.Equal(t, domain.ModeRuleBased, f.d.Mode())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BreakerTripsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.Mode))

	select {
	case e := <-events:
		assert.Equal(t, EventTypeModeChanged, e.Type)
		assert.Contains(t, e.Data, "rule_based")
	case <-time.After(time.Second):
		t.Fatal("no mode_changed event")
	}

	// Recovery of the strategy does not re-promote the process.
	f.strategy.fail.Store(false)
	before := f.strategy.calls.Load()
	for i := 0; i < 5; i++ {
		out := f.d.HandleMessage(context.Background(), "show incidents", "s1")
		assert.Equal(t, domain.ModeRuleBased, out.Mode)
	}
	assert.Equal(t, before, f.strategy.calls.Load())
	assert.Equal(t, domain.ModeRuleBased, f.d.Mode())
}

func TestDispatcher_SuccessResetsFailureCount(t *testing.T) {
	f := newDispatcherFixture(t, true, 3)

	f.strategy.fail.Store(true)
	f.d.HandleMessage(context.Background(), "x", "s1")
	f.d.HandleMessage(context.Background(), "x", "s1")
	f.strategy.fail.Store(false)
	f.d.HandleMessage(context.Background(), "x", "s1")
	assert.Equal(t, 0, f.d.BreakerStats().ConsecutiveFailures)

	f.strategy.fail.Store(true)
	f.d.HandleMessage(context.Background(), "x", "s1")
	f.d.HandleMessage(context.Background(), "x", "s1")
	assert.Equal(t, domain.ModeReasoning, f.d.Mode())
}

func TestDispatcher_ConcurrentFailuresTripOnce(t *testing.T) {
	f := newDispatcherFixture(t, true, 3)
	f.strategy.fail.Store(true)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out := f.d.HandleMessage(context.Background(), "show incidents", domain.SessionID(string(rune('a'+i%26))))
			assert.Nil(t, out.Error)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, domain.ModeRuleBased, f.d.Mode())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BreakerTripsTotal))
}

func TestDispatcher_ContextWindowExcludesCurrentMessage(t *testing.T) {
	f := newDispatcherFixture(t, true, 3)

	for i := 0; i < 6; i++ {
		f.d.HandleMessage(context.Background(), "turn", "s1")
	}
	f.strategy.mu.Lock()
	history := f.strategy.lastHistory
	f.strategy.mu.Unlock()

	// Window is 4 messages; 12 are stored after six turns.
	require.Len(t, history, 4)
	assert.Equal(t, domain.RoleAgent, history[3].Role)

	all, err := f.d.History(context.Background(), "s1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 12)
}

func TestDispatcher_CancellationDoesNotCountAsFailure(t *testing.T) {
	f := newDispatcherFixture(t, true, 1)
	f.strategy.block = true

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out := f.d.HandleMessage(ctx, "show incidents", "s1")
	require.NotNil(t, out.Error)
	assert.Equal(t, domain.CodeBackendTransport, out.Error.Code)
	assert.Equal(t, domain.ModeReasoning, f.d.Mode())
	assert.Empty(t, f.backend.Calls())
}

func TestDispatcher_ExecuteOperation(t *testing.T) {
	f := newDispatcherFixture(t, false, 3)
	ctx := context.Background()

	_, err := f.d.ExecuteOperation(ctx, "drop_database", nil)
	assert.True(t, errors.Is(err, domain.ErrOperationNotFound))

	res, err := f.d.ExecuteOperation(ctx, domain.OpGetIncidentDetails, map[string]any{})
	require.NoError(t, err)
	require.NotNil(t, res.Failure)
	assert.Equal(t, domain.FailureInvalidInput, res.Failure.Kind)
	assert.Empty(t, f.backend.Calls())

	res, err = f.d.ExecuteOperation(ctx, domain.OpGetIncidentDetails, map[string]any{domain.ParamIncidentID: "P123ABC"})
	require.NoError(t, err)
	assert.True(t, res.OK())

	res, err = f.d.ExecuteOperation(ctx, domain.OpHelp, nil)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Len(t, f.backend.Calls(), 1)
}

func TestDispatcher_ExecuteOperationRejectsNonStringID(t *testing.T) {
	f := newDispatcherFixture(t, false, 3)

	res, err := f.d.ExecuteOperation(context.Background(), domain.OpAcknowledgeIncident, map[string]any{domain.ParamIncidentID: 12345})
	require.NoError(t, err)
	require.NotNil(t, res.Failure)
	assert.Equal(t, domain.FailureInvalidInput, res.Failure.Kind)
	assert.Contains(t, res.Failure.Message, "must be a string")
	assert.Empty(t, f.backend.Calls())
}

func TestNewDispatcher_RequiresCollaborators(t *testing.T) {
	_, err := NewDispatcher(testLogger(), DispatcherDeps{}, domain.DispatcherConfig{FailureThreshold: 3})
	assert.Error(t, err)
}

func TestDispatcher_PublishesOperationsOnSessionTopic(t *testing.T) {
	f := newDispatcherFixture(t, false, 3)
	events, unsub := f.bus.Subscribe("s-ops")
	defer unsub()

	f.d.HandleMessage(context.Background(), "acknowledge P1234567", "s-ops")
	select {
	case ev := <-events:
		assert.Equal(t, EventTypeOperation, ev.Type)
		assert.JSONEq(t, `{"operations":["acknowledge_incident"],"mode":"rule_based","failed":false}`, ev.Data)
	case <-time.After(time.Second):
		t.Fatal("no operation event published")
	}

	f.d.HandleMessage(context.Background(), "help", "s-ops")
	select {
	case ev := <-events:
		t.Fatalf("unexpected event for a local operation: %v", ev)
	default:
	}
}
