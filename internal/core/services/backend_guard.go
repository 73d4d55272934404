package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
	"github.com/manthysbr/incidentdesk/internal/core/ports"
)

// GuardedBackend decorates an ExecutionBackend with panic recovery, logging
// and metrics. Both strategies execute through it.
type GuardedBackend struct {
	logger  *slog.Logger
	inner   ports.ExecutionBackend
	metrics *DispatchMetrics
}

// NewGuardedBackend wraps inner. metrics may be nil.
func NewGuardedBackend(logger *slog.Logger, inner ports.ExecutionBackend, metrics *DispatchMetrics) *GuardedBackend {
	return &GuardedBackend{logger: logger, inner: inner, metrics: metrics}
}

func (g *GuardedBackend) Name() string {
	return g.inner.Name()
}

// Execute never panics and never returns an empty operation name.
func (g *GuardedBackend) Execute(ctx context.Context, operation string, params map[string]any) (res domain.ExecutionResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = domain.Failed(operation, domain.NewFailure(domain.FailureUpstream, nil, "backend panic: %v", r))
		}
		if res.Operation == "" {
			res.Operation = operation
		}
		g.metrics.RecordBackendCall(res)
		if res.Failure != nil {
			g.logger.Warn("backend operation failed",
				"backend", g.inner.Name(),
				"operation", operation,
				"kind", string(res.Failure.Kind),
				"error", res.Failure.Message,
				"duration", time.Since(start))
			return
		}
		g.logger.Debug("backend operation completed", "operation", operation, "duration", time.Since(start))
	}()

	if params == nil {
		params = map[string]any{}
	}
	return g.inner.Execute(ctx, operation, params)
}

// checkRequired returns the first required parameter absent from params.
// Entity ids end up in request paths, so they must be non-blank strings.
func checkRequired(spec domain.OperationSpec, params map[string]any) error {
	for _, name := range spec.Required {
		v, ok := params[name]
		if !ok || v == nil {
			return fmt.Errorf("missing required parameter %q", name)
		}
		s, isString := v.(string)
		if !isString {
			if strings.HasSuffix(name, "_id") {
				return fmt.Errorf("parameter %q must be a string, got %T", name, v)
			}
			continue
		}
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("missing required parameter %q", name)
		}
	}
	return nil
}
