package domain

import "time"

// Approval values as they appear in the portfolio sheet's dropdown.
const (
	ApprovalPending  = "Pending"
	ApprovalApproved = "Approved"
	ApprovalRejected = "Rejected"
)

// Project is one portfolio entry. At most one non-deleted Project exists per
// business code, and at most one workspace per Project: provisioning is
// idempotent and re-running it for a project that already has a workspace is
// a no-op.
type Project struct {
	ID             string     `json:"id"`
	BusinessCode   string     `json:"business_code"`
	Title          string     `json:"title"`
	ApprovalStatus string     `json:"approval_status"`
	PortfolioRowID int64      `json:"portfolio_row_id,omitempty"`

	// Workspace links, set once provisioning completes.
	FolderID    int64  `json:"folder_id,omitempty"`
	SheetID     int64  `json:"sheet_id,omitempty"`
	RemoteURL   string `json:"remote_url,omitempty"`
	InternalURL string `json:"internal_url,omitempty"`

	// LastSyncedAt gates the polling fallback: a remote row older than this
	// is skipped.
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provisioned reports whether a workspace already exists for the project.
func (p *Project) Provisioned() bool {
	return p.SheetID != 0
}
