package services

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
)

func TestNextBreakerState_TripsAtThreshold(t *testing.T) {
	s := BreakerState{Mode: domain.ModeReasoning, Threshold: 3}

	s = NextBreakerState(s, ReasoningFailed)
	s = NextBreakerState(s, ReasoningFailed)
	assert.Equal(t, domain.ModeReasoning, s.Mode)
	assert.Equal(t, 2, s.ConsecutiveFailures)

	s = NextBreakerState(s, ReasoningFailed)
	assert.Equal(t, domain.ModeRuleBased, s.Mode)
}

func TestNextBreakerState_SuccessResetsCounter(t *testing.T) {
	s := BreakerState{Mode: domain.ModeReasoning, Threshold: 3}

	s = NextBreakerState(s, ReasoningFailed)
	s = NextBreakerState(s, ReasoningFailed)
	s = NextBreakerState(s, ReasoningSucceeded)
	assert.Equal(t, 0, s.ConsecutiveFailures)

	s = NextBreakerState(s, ReasoningFailed)
	s = NextBreakerState(s, ReasoningFailed)
	assert.Equal(t, domain.ModeReasoning, s.Mode)
}

func TestNextBreakerState_RuleBasedIsAbsorbing(t *testing.T) {
	s := BreakerState{Mode: domain.ModeRuleBased, ConsecutiveFailures: 3, Threshold: 3}

	for i := 0; i < 5; i++ {
		s = NextBreakerState(s, ReasoningSucceeded)
	}
	assert.Equal(t, domain.ModeRuleBased, s.Mode)
	assert.Equal(t, 3, s.ConsecutiveFailures)
}

func TestStrategyBreaker_InitialMode(t *testing.T) {
	assert.Equal(t, domain.ModeReasoning, NewStrategyBreaker(3, true).Mode())
	assert.Equal(t, domain.ModeRuleBased, NewStrategyBreaker(3, false).Mode())
	assert.Equal(t, 3, NewStrategyBreaker(0, true).Stats().Threshold)
}

func TestStrategyBreaker_ConcurrentFailuresTripExactlyOnce(t *testing.T) {
	const threshold = 5
	b := NewStrategyBreaker(threshold, true)

	var trips atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, tripped := b.Record(ReasoningFailed); tripped {
				trips.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), trips.Load())
	stats := b.Stats()
	assert.Equal(t, string(domain.ModeRuleBased), stats.Mode)
	assert.Equal(t, threshold, stats.ConsecutiveFailures)
	assert.Equal(t, int64(threshold), stats.TotalFailures)
	assert.False(t, stats.TrippedAt.IsZero())
}
