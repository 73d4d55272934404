package services

import (
	"sync"
	"time"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
)

// BreakerState is the value half of the strategy breaker. It is a plain
// struct so the transition rules can be tested without any locking.
type BreakerState struct {
	Mode                domain.Mode
	ConsecutiveFailures int
	Threshold           int
}

// BreakerEvent is the outcome of one reasoning attempt.
type BreakerEvent int

const (
	ReasoningSucceeded BreakerEvent = iota
	ReasoningFailed
)

// String returns a human-readable event name.
func (e BreakerEvent) String() string {
	switch e {
	case ReasoningSucceeded:
		return "success"
	case ReasoningFailed:
		return "failure"
	default:
		return "unknown"
	}
}

// NextBreakerState applies one event. A success clears the failure count;
// a failure increments it and moves the mode to rule-based once the count
// reaches the threshold. Rule-based is absorbing: no event leaves it.
func NextBreakerState(s BreakerState, ev BreakerEvent) BreakerState {
	if s.Mode == domain.ModeRuleBased {
		return s
	}
	switch ev {
	case ReasoningSucceeded:
		s.ConsecutiveFailures = 0
	case ReasoningFailed:
		s.ConsecutiveFailures++
		if s.ConsecutiveFailures >= s.Threshold {
			s.Mode = domain.ModeRuleBased
		}
	}
	return s
}

// BreakerStats is a point-in-time snapshot for status endpoints.
type BreakerStats struct {
	Mode                string    `json:"mode"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Threshold           int       `json:"threshold"`
	TotalFailures       int64     `json:"total_failures"`
	TotalSuccesses      int64     `json:"total_successes"`
	TrippedAt           time.Time `json:"tripped_at,omitzero"`
}

// StrategyBreaker is the process-wide breaker guarding the reasoning
// strategy. Every read-modify-write happens under one mutex; callers must
// not hold it across I/O, which Record makes impossible by taking only the
// event.
//
// Thread Safety: Safe for concurrent use.
type StrategyBreaker struct {
	mu             sync.Mutex
	state          BreakerState
	totalFailures  int64
	totalSuccesses int64
	trippedAt      time.Time
}

// NewStrategyBreaker starts in reasoning mode when a strategy is available,
// otherwise directly in rule-based mode.
func NewStrategyBreaker(threshold int, reasoningAvailable bool) *StrategyBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	mode := domain.ModeRuleBased
	if reasoningAvailable {
		mode = domain.ModeReasoning
	}
	return &StrategyBreaker{
		state: BreakerState{Mode: mode, Threshold: threshold},
	}
}

// Mode returns the current strategy mode.
func (b *StrategyBreaker) Mode() domain.Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Mode
}

// Record applies ev atomically and reports whether this call performed the
// reasoning to rule-based transition. Exactly one caller observes true.
func (b *StrategyBreaker) Record(ev BreakerEvent) (BreakerState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.state
	b.state = NextBreakerState(prev, ev)

	if prev.Mode == domain.ModeReasoning {
		switch ev {
		case ReasoningSucceeded:
			b.totalSuccesses++
		case ReasoningFailed:
			b.totalFailures++
		}
	}

	tripped := prev.Mode != b.state.Mode
	if tripped {
		b.trippedAt = time.Now()
	}
	return b.state, tripped
}

// Stats returns a snapshot of the breaker.
func (b *StrategyBreaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		Mode:                string(b.state.Mode),
		ConsecutiveFailures: b.state.ConsecutiveFailures,
		Threshold:           b.state.Threshold,
		TotalFailures:       b.totalFailures,
		TotalSuccesses:      b.totalSuccesses,
		TrippedAt:           b.trippedAt,
	}
}
