package providers

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/manthysbr/incidentdesk/internal/adapters/fixture"
	"github.com/manthysbr/incidentdesk/internal/adapters/llm"
	"github.com/manthysbr/incidentdesk/internal/adapters/pagerduty"
	"github.com/manthysbr/incidentdesk/internal/core/domain"
	"github.com/manthysbr/incidentdesk/internal/core/ports"
)

const llmTimeout = 60 * time.Second

// BuildBackend selects the execution backend. Exactly one is built per process.
func BuildBackend(logger *slog.Logger, config *domain.AppConfig, catalog *domain.Catalog) (ports.ExecutionBackend, error) {
	if config == nil {
		config = domain.DefaultConfig()
	}
	mode := strings.ToLower(strings.TrimSpace(config.Backend.Mode))
	switch mode {
	case "", domain.BackendFixture:
		return fixture.NewBackend(logger.With("backend", domain.BackendFixture), catalog, config.Scope, config.Backend.FixtureLatency), nil
	case domain.BackendLive:
		if strings.TrimSpace(config.Backend.APIKey) == "" {
			return nil, fmt.Errorf("backend api_key is required when mode=live")
		}
		return pagerduty.NewBackend(logger.With("backend", domain.BackendLive), config.Backend, config.Scope, nil), nil
	default:
		return nil, fmt.Errorf("unsupported backend mode: %s", config.Backend.Mode)
	}
}

// BuildLLM creates the reasoning model client. It returns nil when reasoning
// is disabled, which starts the dispatcher in rule-based mode.
func BuildLLM(config *domain.AppConfig) (domain.LLMProvider, error) {
	if config == nil {
		config = domain.DefaultConfig()
	}
	r := config.Reasoning
	mode := strings.ToLower(strings.TrimSpace(r.Mode))
	switch mode {
	case "", domain.ReasoningNone:
		return nil, nil
	case domain.ReasoningLocal:
		return llm.NewOllamaProvider(strings.TrimSpace(r.LocalURL), strings.TrimSpace(r.Model), llmTimeout), nil
	case domain.ReasoningRemote:
		if strings.TrimSpace(r.RemoteURL) == "" && strings.TrimSpace(r.APIKey) == "" {
			return nil, fmt.Errorf("reasoning remote_url or api_key is required when mode=remote")
		}
		return llm.NewOpenAIProvider(
			strings.TrimSpace(r.RemoteURL),
			strings.TrimSpace(r.APIKey),
			strings.TrimSpace(r.Model),
			llmTimeout,
		), nil
	default:
		return nil, fmt.Errorf("unsupported reasoning mode: %s", r.Mode)
	}
}
