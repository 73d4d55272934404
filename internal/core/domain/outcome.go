package domain

import "errors"

// Mode is the dispatcher's strategy state.
type Mode string

const (
	ModeReasoning Mode = "reasoning"
	ModeRuleBased Mode = "rule_based"
)

// ErrorCode is the machine-readable half of a user-facing error.
type ErrorCode string

const (
	CodeMissingParameter     ErrorCode = "missing_parameter"
	CodeBackendNotFound      ErrorCode = "backend_not_found"
	CodeBackendUpstream      ErrorCode = "backend_upstream_error"
	CodeBackendTransport     ErrorCode = "backend_transport_error"
	CodeBackendInvalidInput  ErrorCode = "backend_invalid_input"
	CodeUnsupportedOperation ErrorCode = "unsupported_operation"
	CodeInvalidMessage       ErrorCode = "invalid_message"
)

// DispatchError is what callers see instead of a raw failure.
type DispatchError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *DispatchError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// DispatchOutcome is the full answer to one handled message.
type DispatchOutcome struct {
	SessionID  SessionID      `json:"session_id"`
	Text       string         `json:"response"`
	Operations []string       `json:"operations_invoked"`
	Mode       Mode           `json:"mode"`
	Error      *DispatchError `json:"error,omitempty"`
}

// CodeForFailure maps a backend failure kind to the dispatcher taxonomy.
func CodeForFailure(f *Failure) ErrorCode {
	if f == nil {
		return ""
	}
	if errors.Is(f, ErrUnsupportedOperation) {
		return CodeUnsupportedOperation
	}
	switch f.Kind {
	case FailureNotFound:
		return CodeBackendNotFound
	case FailureTransport:
		return CodeBackendTransport
	case FailureInvalidInput:
		return CodeBackendInvalidInput
	default:
		return CodeBackendUpstream
	}
}
