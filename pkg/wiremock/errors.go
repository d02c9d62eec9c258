package wiremock

import (
	"errors"
	"fmt"
)

// Sentinel errors for admin API operations.
var (
	// ErrUnavailable is matched by errors raised when the instance cannot be
	// reached (connection refused, DNS failure, timeout).
	ErrUnavailable = errors.New("wiremock instance unavailable")
	// ErrRejected is matched by errors raised when the instance answered with
	// a non-success status.
	ErrRejected = errors.New("wiremock instance rejected request")
	// ErrCreateUnconfirmed is matched when the instance accepted a create
	// with a success status but the answer yielded no identifier. The
	// mapping may exist on the instance.
	ErrCreateUnconfirmed = errors.New("wiremock create accepted but unconfirmed")
)

// UnavailableError reports a transport-level failure.
type UnavailableError struct {
	Op  string // e.g. "create mapping"
	URL string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s unreachable: %v", e.Op, e.URL, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is reports whether target is ErrUnavailable.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// RejectedError reports a non-success HTTP status from the instance.
type RejectedError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Is reports whether target is ErrRejected.
func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// UnconfirmedCreateError wraps the failure that followed a success status on
// create: a body that timed out, did not decode, or carried no id. Err is an
// *UnavailableError or *RejectedError.
type UnconfirmedCreateError struct {
	StatusCode int
	Err        error
}

func (e *UnconfirmedCreateError) Error() string {
	return fmt.Sprintf("create mapping: accepted with status %d but unconfirmed: %v", e.StatusCode, e.Err)
}

func (e *UnconfirmedCreateError) Unwrap() error { return e.Err }

// Is reports whether target is ErrCreateUnconfirmed.
func (e *UnconfirmedCreateError) Is(target error) bool { return target == ErrCreateUnconfirmed }
