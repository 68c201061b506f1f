package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmohub/wbs-sync-backend/internal/portfolio/domain"
)

// ProjectRepository provides persistence for portfolio projects.
type ProjectRepository struct {
	db *pgxpool.Pool
}

func NewProjectRepository(db *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `
id, business_code, title, approval_status, portfolio_row_id,
folder_id, sheet_id, remote_url, internal_url,
last_synced_at, created_at, updated_at`

// Create inserts a new project. The business code is unique among
// non-deleted projects.
func (r *ProjectRepository) Create(ctx context.Context, businessCode, title, approvalStatus string, portfolioRowID int64) (*domain.Project, error) {
	if businessCode == "" {
		return nil, fmt.Errorf("business code required")
	}

	const q = `
insert into projects (id, business_code, title, approval_status, portfolio_row_id)
values ($1, $2, $3, $4, nullif($5, 0))
returning ` + projectColumns + `;
`
	row := r.db.QueryRow(ctx, q, uuid.New().String(), businessCode, title, approvalStatus, portfolioRowID)
	p, err := scanProject(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDuplicateCode
		}
		return nil, err
	}
	return p, nil
}

// GetByCode returns the non-deleted project with the given business code.
func (r *ProjectRepository) GetByCode(ctx context.Context, businessCode string) (*domain.Project, error) {
	const q = `
select ` + projectColumns + `
from projects
where business_code = $1 and deleted_at is null;
`
	p, err := scanProject(r.db.QueryRow(ctx, q, businessCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// List returns all non-deleted projects, newest first.
func (r *ProjectRepository) List(ctx context.Context) ([]domain.Project, error) {
	const q = `
select ` + projectColumns + `
from projects
where deleted_at is null
order by created_at desc;
`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Project, 0, 16)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdateRow refreshes the fields the portfolio sheet owns.
func (r *ProjectRepository) UpdateRow(ctx context.Context, id, title, approvalStatus string, portfolioRowID int64) (*domain.Project, error) {
	const q = `
update projects
set title = $2, approval_status = $3, portfolio_row_id = nullif($4, 0), updated_at = now()
where id = $1 and deleted_at is null
returning ` + projectColumns + `;
`
	p, err := scanProject(r.db.QueryRow(ctx, q, id, title, approvalStatus, portfolioRowID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// SetWorkspace persists the provisioned workspace links. This is what makes
// the provisioning trigger idempotent on re-entry.
func (r *ProjectRepository) SetWorkspace(ctx context.Context, id string, folderID, sheetID int64, remoteURL, internalURL string) (*domain.Project, error) {
	const q = `
update projects
set folder_id = $2, sheet_id = $3, remote_url = $4, internal_url = $5, updated_at = now()
where id = $1 and deleted_at is null
returning ` + projectColumns + `;
`
	p, err := scanProject(r.db.QueryRow(ctx, q, id, folderID, sheetID, remoteURL, internalURL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// TouchSynced records when the project's remote row was last processed.
func (r *ProjectRepository) TouchSynced(ctx context.Context, id string, at time.Time) error {
	const q = `
update projects
set last_synced_at = $2, updated_at = now()
where id = $1 and deleted_at is null;
`
	_, err := r.db.Exec(ctx, q, id, at)
	return err
}

type pgxRow interface {
	Scan(dest ...any) error
}

func scanProject(row pgxRow) (*domain.Project, error) {
	var (
		p              domain.Project
		portfolioRowID *int64
		folderID       *int64
		sheetID        *int64
		remoteURL      *string
		internalURL    *string
		lastSyncedAt   *time.Time
	)
	err := row.Scan(
		&p.ID, &p.BusinessCode, &p.Title, &p.ApprovalStatus, &portfolioRowID,
		&folderID, &sheetID, &remoteURL, &internalURL,
		&lastSyncedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if portfolioRowID != nil {
		p.PortfolioRowID = *portfolioRowID
	}
	if folderID != nil {
		p.FolderID = *folderID
	}
	if sheetID != nil {
		p.SheetID = *sheetID
	}
	if remoteURL != nil {
		p.RemoteURL = *remoteURL
	}
	if internalURL != nil {
		p.InternalURL = *internalURL
	}
	p.LastSyncedAt = lastSyncedAt
	return &p, nil
}
