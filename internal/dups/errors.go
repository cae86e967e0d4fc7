package dups

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to classify errors returned by a PhotoHost or
// by the finder and orchestrator.
var (
	// ErrAuth means the credentials are missing, invalid or expired.
	ErrAuth = errors.New("authentication failed")
	// ErrNotFound means an album or image no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited means the host throttled the request.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedirect means a redirect could not be followed after re-signing.
	ErrRedirect = errors.New("redirect not followed")
	// ErrNetwork means the request did not complete at the transport level.
	ErrNetwork = errors.New("network error")

	ErrMoveUnverified   = errors.New("move unverified")
	ErrDeleteUnverified = errors.New("delete unverified")
	ErrHashMismatch     = errors.New("content hash mismatch")
	ErrNotConfirmed     = errors.New("permanent delete not confirmed")
	ErrBusy             = errors.New("another job is running")
)

// APIError carries the context of a failed host call.
type APIError struct {
	Kind     error  // one of the Err* kinds above, or nil for an unclassified failure
	Op       string // e.g. "list album images"
	Resource string // album key, image key or URL
	Status   int
	Message  string
	Err      error
}

func (e *APIError) Error() string {
	msg := e.Op
	if e.Resource != "" {
		msg += " " + e.Resource
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(": HTTP %d", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNetwork) || errors.Is(err, ErrRedirect)
}
