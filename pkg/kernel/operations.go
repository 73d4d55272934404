package kernel

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
)

func (s *Server) handleListOperations(w http.ResponseWriter, _ *http.Request) {
	ops := s.dispatcher.Catalog().List()
	writeJSON(w, http.StatusOK, map[string]any{
		"operations": ops,
		"count":      len(ops),
		"backend":    s.dispatcher.BackendName(),
	})
}

type operationRequest struct {
	Params map[string]any `json:"params,omitempty"`
}

// handleExecuteOperation runs one catalog operation with structured params,
// bypassing classification.
func (s *Server) handleExecuteOperation(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req operationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.dispatcher.ExecuteOperation(r.Context(), name, req.Params)
	if err != nil {
		if errors.Is(err, domain.ErrOperationNotFound) {
			msg := fmt.Sprintf("unknown operation %q", name)
			if hint := s.dispatcher.Catalog().Suggest(name); hint != "" {
				msg += fmt.Sprintf("; did you mean %q?", hint)
			}
			writeError(w, http.StatusNotFound, "operation_not_found", msg)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, statusForResult(res), res)
}

func statusForResult(res domain.ExecutionResult) int {
	if res.OK() {
		return http.StatusOK
	}
	if errors.Is(res.Failure, domain.ErrUnsupportedOperation) {
		return http.StatusNotImplemented
	}
	switch res.Failure.Kind {
	case domain.FailureNotFound:
		return http.StatusNotFound
	case domain.FailureInvalidInput:
		return http.StatusBadRequest
	case domain.FailureTransport:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
