package domain

import "fmt"

// FailureKind classifies why an operation did not succeed.
type FailureKind string

const (
	FailureUpstream     FailureKind = "upstream_error"
	FailureTransport    FailureKind = "transport_error"
	FailureNotFound     FailureKind = "not_found"
	FailureInvalidInput FailureKind = "invalid_input"
)

// Failure is the classified error half of an ExecutionResult.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Status  int         `json:"status,omitempty"` // upstream HTTP status when there was one
	cause   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.cause
}

// NewFailure builds a failure, keeping cause for errors.Is/As.
func NewFailure(kind FailureKind, cause error, format string, args ...any) *Failure {
	return &Failure{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}

// ExecutionResult is the uniform outcome of one backend call: exactly one
// of Payload and Failure is meaningful.
type ExecutionResult struct {
	Operation string         `json:"operation"`
	Payload   map[string]any `json:"payload,omitempty"`
	Failure   *Failure       `json:"failure,omitempty"`
}

// OK reports whether the call succeeded.
func (r ExecutionResult) OK() bool {
	return r.Failure == nil
}

// Success wraps a payload.
func Success(operation string, payload map[string]any) ExecutionResult {
	if payload == nil {
		payload = map[string]any{}
	}
	return ExecutionResult{Operation: operation, Payload: payload}
}

// Failed wraps a failure.
func Failed(operation string, f *Failure) ExecutionResult {
	return ExecutionResult{Operation: operation, Failure: f}
}

// Unsupported is returned for operation names a backend has no mapping for.
func Unsupported(operation string) ExecutionResult {
	return Failed(operation, NewFailure(FailureInvalidInput, ErrUnsupportedOperation,
		"operation %q is not supported by this backend", operation))
}
