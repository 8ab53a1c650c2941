package connector

import (
	stderrors "errors"
	"fmt"
)

// Error is a connector-scoped error carrying the failing connector's
// identity, so the dispatch boundary can attribute failures to subsystems
// and mark only that connector's bound channels as errored.
type Error struct {
	ConnectorID string
	Op          string
	Err         error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("connector %s: %s: %v", e.ConnectorID, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// NewError wraps an error with connector attribution.
func NewError(connectorID, op string, err error) *Error {
	return &Error{ConnectorID: connectorID, Op: op, Err: err}
}

// AsError extracts connector attribution from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}
