package ports

import (
	"context"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
)

// ExecutionBackend runs one named operation against the incident backend.
// Implementations never return Go errors or panic across this boundary:
// every fault is folded into the returned ExecutionResult.
type ExecutionBackend interface {
	// Execute runs operation with params. Unknown operations yield a failure
	// wrapping domain.ErrUnsupportedOperation.
	Execute(ctx context.Context, operation string, params map[string]any) domain.ExecutionResult

	// Name identifies the backend variant ("fixture" or "live").
	Name() string
}

// ReasoningStrategy is the natural-language planner. One call per turn; it
// enforces its own internal deadline.
type ReasoningStrategy interface {
	Run(ctx context.Context, text string, history []domain.Message) (domain.ReasoningResult, error)
}

// MessageRepository abstracts the persistent history storage (DuckDB)
type MessageRepository interface {
	// AppendMessage persists one message.
	AppendMessage(ctx context.Context, msg domain.Message) error

	// ListMessages returns a session's messages ordered by Seq. limit=0 means all.
	ListMessages(ctx context.Context, session domain.SessionID, limit int) ([]domain.Message, error)

	// ListSessions returns every known session id.
	ListSessions(ctx context.Context) ([]domain.SessionID, error)

	Close() error
}
