package domain

import "errors"

var (
	ErrNotFound = errors.New("wbs item not found")

	// ErrValidation marks malformed local input, rejected before any remote
	// call is made.
	ErrValidation = errors.New("invalid wbs input")

	// ErrCycleDetected marks a hierarchy where items reference each other as
	// parents. Fatal for the items involved, not for the whole save.
	ErrCycleDetected = errors.New("hierarchy cycle detected")

	// ErrDuplicateRemoteRow means two cached items would link to the same
	// remote row.
	ErrDuplicateRemoteRow = errors.New("remote row already linked")
)

// ItemError records a per-item failure during bulk reconciliation. These are
// collected and surfaced in the aggregate result, never thrown.
type ItemError struct {
	ItemID string `json:"item_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Err    error  `json:"-"`
}

func (e ItemError) Error() string {
	if e.Name != "" {
		return e.Name + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e ItemError) Unwrap() error { return e.Err }
