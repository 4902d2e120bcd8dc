package client

import "fmt"

// FailureKind classifies session-level failures per the driver's taxonomy:
// transport faults, bounded waits exceeded, malformed protocol traffic, and
// a consumed connection retry budget.
type FailureKind string

const (
	FailureTransport        FailureKind = "transport"
	FailureTimeout          FailureKind = "timeout"
	FailureProtocol         FailureKind = "protocol"
	FailureRetriesExhausted FailureKind = "retries_exhausted"
)

// SessionError is a session failure carrying its kind. Operations convert
// these into logged fallbacks at the boundary; callers observe state instead
// of catching errors.
type SessionError struct {
	Kind FailureKind
	Msg  string
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is allows errors.Is to compare SessionError values by Kind.
func (e *SessionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*SessionError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors for the failure kinds.
var (
	ErrTransport        = &SessionError{Kind: FailureTransport}
	ErrTimeout          = &SessionError{Kind: FailureTimeout}
	ErrProtocol         = &SessionError{Kind: FailureProtocol}
	ErrRetriesExhausted = &SessionError{Kind: FailureRetriesExhausted}
)
