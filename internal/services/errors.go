package services

import (
	"errors"
	"fmt"
)

// ErrSyncDisabled is returned when a round is requested for a table
// whose sync config disables it
var ErrSyncDisabled = errors.New("sync disabled for table")

// ErrInvalidDay is returned for a malformed calendar day string
var ErrInvalidDay = errors.New("invalid day, expected YYYY-MM-DD")

// ErrUnauthorized is returned when the auth precondition fails
var ErrUnauthorized = errors.New("unauthorized")

// TransportError wraps a network or remote failure. It aborts the
// current table's round only; the round is safe to retry because the
// watermark never advanced.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is a transport failure
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
