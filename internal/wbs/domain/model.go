package domain

import "time"

// Status enumerates item states. The remote dropdown accepts only the first
// four; the local-only states are mapped down before any remote write.
type Status string

const (
	StatusNotStarted Status = "Not Started"
	StatusInProgress Status = "In Progress"
	StatusBlocked    Status = "Blocked"
	StatusComplete   Status = "Complete"

	// Accepted locally only.
	StatusAtRisk Status = "At Risk"
	StatusOnHold Status = "On Hold"
)

// ToRemote maps a local status onto the nearest value the remote dropdown
// accepts.
func (s Status) ToRemote() Status {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusBlocked, StatusComplete:
		return s
	case StatusAtRisk:
		return StatusInProgress
	case StatusOnHold:
		return StatusBlocked
	}
	return StatusNotStarted
}

// Valid reports whether the status is one the service accepts at all.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusBlocked, StatusComplete,
		StatusAtRisk, StatusOnHold, "":
		return true
	}
	return false
}

// WbsItem is one cached row of a project's work breakdown structure.
// Budget, Actual and Variance are decimal strings, never floats, to avoid
// currency rounding drift. Code and Depth are derived on every read and
// never persisted.
type WbsItem struct {
	ID          string `json:"id,omitempty"`      // permanent, assigned at persistence
	TempID      string `json:"temp_id,omitempty"` // UI-issued, until first save
	ProjectID   string `json:"project_id"`
	RemoteRowID int64  `json:"remote_row_id,omitempty"` // 0 until materialized remotely

	ParentRef Ref `json:"-"`

	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	OwnerRef    string     `json:"owner_ref,omitempty"`
	ApproverRef string     `json:"approver_ref,omitempty"`
	Status      Status     `json:"status,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Budget      string     `json:"budget,omitempty"`
	Actual      string     `json:"actual,omitempty"`
	Variance    string     `json:"variance,omitempty"` // formula-derived remotely, read-only
	Notes       string     `json:"notes,omitempty"`
	Skip        bool       `json:"skip,omitempty"` // header row: no code, no remote sync
	OrderIndex  int        `json:"order_index"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}
