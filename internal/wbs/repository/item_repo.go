package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/pmohub/wbs-sync-backend/internal/wbs/domain"
)

// ItemRepository persists the WBS cache: one row per item, keyed by permanent
// id, with a unique constraint on remote_row_id to prevent duplicate linkage.
type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `
id, project_id, remote_row_id, parent_id, parent_row_id,
name, description, owner_ref, approver_ref, status,
start_date, end_date, budget, actual, variance, notes,
skip, order_index, created_at, updated_at`

// ListByProject returns all cached items for a project in order-index order.
func (r *ItemRepository) ListByProject(ctx context.Context, projectID string) ([]domain.WbsItem, error) {
	q := `
SELECT ` + itemColumns + `
FROM wbs_items
WHERE project_id = $1
ORDER BY order_index ASC;
`
	rows, err := r.db.QueryContext(ctx, q, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.WbsItem, 0, 32)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Insert persists a new item, assigning its permanent id.
func (r *ItemRepository) Insert(ctx context.Context, item *domain.WbsItem) error {
	if item.Name == "" {
		return fmt.Errorf("%w: name required", domain.ErrValidation)
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	const q = `
INSERT INTO wbs_items (
  id, project_id, remote_row_id, parent_id, parent_row_id,
  name, description, owner_ref, approver_ref, status,
  start_date, end_date, budget, actual, variance, notes,
  skip, order_index
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
RETURNING created_at, updated_at;
`
	remoteID, parentID, parentRowID := encodeRefs(item)
	err := r.db.QueryRowContext(ctx, q,
		item.ID, item.ProjectID, remoteID, parentID, parentRowID,
		item.Name, item.Description, item.OwnerRef, item.ApproverRef, string(item.Status),
		item.StartDate, item.EndDate, item.Budget, item.Actual, item.Variance, item.Notes,
		item.Skip, item.OrderIndex,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

// Update rewrites all mutable fields of an existing item.
func (r *ItemRepository) Update(ctx context.Context, item *domain.WbsItem) error {
	const q = `
UPDATE wbs_items
SET remote_row_id = $2, parent_id = $3, parent_row_id = $4,
    name = $5, description = $6, owner_ref = $7, approver_ref = $8, status = $9,
    start_date = $10, end_date = $11, budget = $12, actual = $13, variance = $14,
    notes = $15, skip = $16, order_index = $17, updated_at = now()
WHERE id = $1;
`
	remoteID, parentID, parentRowID := encodeRefs(item)
	result, err := r.db.ExecContext(ctx, q,
		item.ID, remoteID, parentID, parentRowID,
		item.Name, item.Description, item.OwnerRef, item.ApproverRef, string(item.Status),
		item.StartDate, item.EndDate, item.Budget, item.Actual, item.Variance, item.Notes,
		item.Skip, item.OrderIndex,
	)
	if err != nil {
		return mapUniqueViolation(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetParent rewrites only the parent reference. Used by the second
// reconciliation pass once temporary ids have resolved to permanent ones.
func (r *ItemRepository) SetParent(ctx context.Context, id string, parent domain.Ref) error {
	const q = `
UPDATE wbs_items
SET parent_id = $2, parent_row_id = $3, updated_at = now()
WHERE id = $1;
`
	parentID, parentRowID := encodeParent(parent)
	_, err := r.db.ExecContext(ctx, q, id, parentID, parentRowID)
	return err
}

// SetRemoteRowID links a cached item to its remote row.
func (r *ItemRepository) SetRemoteRowID(ctx context.Context, id string, rowID int64) error {
	const q = `
UPDATE wbs_items
SET remote_row_id = $2, updated_at = now()
WHERE id = $1;
`
	_, err := r.db.ExecContext(ctx, q, id, rowID)
	return mapUniqueViolation(err)
}

// Delete removes items by permanent id.
func (r *ItemRepository) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `DELETE FROM wbs_items WHERE id = ANY($1);`
	_, err := r.db.ExecContext(ctx, q, pq.Array(ids))
	return err
}

// Clear wipes the whole cache for a project.
func (r *ItemRepository) Clear(ctx context.Context, projectID string) (int64, error) {
	const q = `DELETE FROM wbs_items WHERE project_id = $1;`
	result, err := r.db.ExecContext(ctx, q, projectID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func encodeRefs(item *domain.WbsItem) (remoteID sql.NullInt64, parentID sql.NullString, parentRowID sql.NullInt64) {
	if item.RemoteRowID != 0 {
		remoteID = sql.NullInt64{Int64: item.RemoteRowID, Valid: true}
	}
	parentID, parentRowID = encodeParent(item.ParentRef)
	return
}

func encodeParent(ref domain.Ref) (parentID sql.NullString, parentRowID sql.NullInt64) {
	switch ref.Kind {
	case domain.RefPermanent:
		parentID = sql.NullString{String: ref.ID, Valid: true}
	case domain.RefRemote:
		parentRowID = sql.NullInt64{Int64: ref.RowID, Valid: true}
	}
	// Temp refs are never persisted; they must be resolved first.
	return
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(rs rowScanner) (domain.WbsItem, error) {
	var (
		item        domain.WbsItem
		remoteID    sql.NullInt64
		parentID    sql.NullString
		parentRowID sql.NullInt64
		status      string
		startDate   sql.NullTime
		endDate     sql.NullTime
	)
	err := rs.Scan(
		&item.ID, &item.ProjectID, &remoteID, &parentID, &parentRowID,
		&item.Name, &item.Description, &item.OwnerRef, &item.ApproverRef, &status,
		&startDate, &endDate, &item.Budget, &item.Actual, &item.Variance, &item.Notes,
		&item.Skip, &item.OrderIndex, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return domain.WbsItem{}, err
	}

	item.Status = domain.Status(status)
	if remoteID.Valid {
		item.RemoteRowID = remoteID.Int64
	}
	switch {
	case parentID.Valid:
		item.ParentRef = domain.PermanentRef(parentID.String)
	case parentRowID.Valid:
		item.ParentRef = domain.RemoteRef(parentRowID.Int64)
	}
	if startDate.Valid {
		item.StartDate = &startDate.Time
	}
	if endDate.Valid {
		item.EndDate = &endDate.Time
	}
	return item, nil
}

func mapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateRemoteRow, pgErr.Constraint)
	}
	return err
}
