package collab

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a collaborator failure for escalation routing.
type Kind int

const (
	// KindInfrastructure marks collaborator unreachability or timeout.
	KindInfrastructure Kind = iota + 1

	// KindQuality marks a QA rejection.
	KindQuality

	// KindSafety marks a safety-floor violation.
	KindSafety
)

// String returns the kind's wire name.
func (k Kind) String() string {
	switch k {
	case KindInfrastructure:
		return "infrastructure"
	case KindQuality:
		return "quality"
	case KindSafety:
		return "safety"
	default:
		return "unknown"
	}
}

// Error is a classified collaborator failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failure", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Infra wraps err as an infrastructure failure of the named operation.
func Infra(op string, err error) *Error {
	return &Error{Kind: KindInfrastructure, Op: op, Err: err}
}

// IsInfrastructure reports whether err (or anything it wraps) is an
// infrastructure failure. Context deadline expiry counts: an unresponsive
// collaborator is an infrastructure failure, not a repairable defect.
func IsInfrastructure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == KindInfrastructure
	}
	return false
}
