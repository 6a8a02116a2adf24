package types

import "fmt"

// ErrorCode is a stable, externally visible failure code.
type ErrorCode string

const (
	// CodeNotFound indicates an operation referenced an unknown task.
	CodeNotFound ErrorCode = "NOT_FOUND"
	// CodeUnsupportedRound indicates a task record carries a round
	// outside the supported {1, 2} set.
	CodeUnsupportedRound ErrorCode = "UNSUPPORTED_ROUND"
	// CodeBadGateway indicates a remote collaborator (repository host,
	// evaluation callback) failed.
	CodeBadGateway ErrorCode = "BAD_GATEWAY"
	// CodeInternal indicates a local filesystem or process failure.
	CodeInternal ErrorCode = "INTERNAL_ERROR"
	// CodeConfig indicates missing or invalid process configuration.
	CodeConfig ErrorCode = "CONFIG_ERROR"
)

// TaskError provides structured error information for round outcomes.
type TaskError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *TaskError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TaskError) Unwrap() error { return e.Err }

// NewTaskError creates a structured task error wrapping an underlying cause.
func NewTaskError(code ErrorCode, message string, err error) *TaskError {
	return &TaskError{Code: code, Message: message, Err: err}
}
