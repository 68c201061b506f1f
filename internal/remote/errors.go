package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth means the remote credential was rejected (401/403). Never retried.
	ErrAuth = errors.New("remote credential rejected")

	// ErrRateLimited is returned when retries against a 429 are exhausted.
	ErrRateLimited = errors.New("remote rate limit exceeded")

	// ErrNotFound means the remote object was deleted out-of-band. Callers
	// should invalidate the stale reference rather than hard-fail.
	ErrNotFound = errors.New("remote object not found")

	// ErrIdempotencyConflict means an identical operation is already in
	// flight in this process. Callers should re-check state instead of
	// re-submitting.
	ErrIdempotencyConflict = errors.New("duplicate in-flight operation")
)

// APIError carries the status code and message of a failed remote call.
type APIError struct {
	Status  int
	Op      string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: remote returned status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: remote returned status %d: %s", e.Op, e.Status, e.Message)
}

// Is maps status codes onto the error taxonomy so callers can use errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuth:
		return e.Status == 401 || e.Status == 403
	case ErrNotFound:
		return e.Status == 404
	case ErrRateLimited:
		return e.Status == 429
	}
	return false
}
