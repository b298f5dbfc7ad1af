// Package core provides the ambient stack shared by every taskgraphd
// component: error taxonomy, logging, telemetry, and configuration.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the error kinds named in the error taxonomy. Compare
// with errors.Is; each is also wrapped into a *TaskError carrying
// operation/ID context where one is available.
var (
	ErrParseFailed             = errors.New("parse failed")
	ErrValidationFailed        = errors.New("validation failed")
	ErrDuplicateRegistration   = errors.New("duplicate registration")
	ErrGraphInvalid            = errors.New("graph invalid")
	ErrGatewayTimeout          = errors.New("gateway timeout")
	ErrGatewayConnectionFailed = errors.New("gateway connection failed")
	ErrGatewayProtocolError    = errors.New("gateway protocol error")
	ErrAgentExecutionFailed    = errors.New("agent execution failed")
	ErrConfigMissing           = errors.New("config missing")
	ErrMaxRetriesExceeded      = errors.New("maximum retries exceeded")
)

// TaskError is a tagged, wrapped error carried through the planning and
// execution pipeline. Op identifies the operation that failed
// (e.g. "planner.Plan", "graph.Create"); ID optionally names the entity
// involved (a node ID, an agent name).
type TaskError struct {
	Op      string
	Kind    error // one of the sentinels above
	ID      string
	Message string
	Err     error
}

func (e *TaskError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" && e.ID != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Op, e.ID, msg)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *TaskError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is lets errors.Is(taskErr, core.ErrParseFailed) succeed by matching Kind
// directly, independent of whatever underlying Err is wrapped.
func (e *TaskError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewTaskError builds a tagged error for the given kind sentinel.
func NewTaskError(op string, kind error, id, message string, err error) *TaskError {
	return &TaskError{Op: op, Kind: kind, ID: id, Message: message, Err: err}
}

// ErrorKind returns the Kind sentinel's message when err is a *TaskError,
// or "unknown" otherwise. Used to tag telemetry counters/spans with a
// low-cardinality error category instead of the full error string.
func ErrorKind(err error) string {
	var te *TaskError
	if errors.As(err, &te) && te.Kind != nil {
		return te.Kind.Error()
	}
	return "unknown"
}

// GatewayErrorKind classifies a transport failure from the LLM gateway
// into one of the three GATEWAY_* sentinels, distinguishing a failed
// dial from a non-2xx response.
func GatewayErrorKind(timedOut, connectionFailed bool) error {
	switch {
	case timedOut:
		return ErrGatewayTimeout
	case connectionFailed:
		return ErrGatewayConnectionFailed
	default:
		return ErrGatewayProtocolError
	}
}
