package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pmohub/wbs-sync-backend/internal/remote"
	"github.com/pmohub/wbs-sync-backend/internal/wbs/domain"
	"github.com/pmohub/wbs-sync-backend/internal/wbs/hierarchy"
)

// ItemStore is the slice of the cache repository the sync service needs.
type ItemStore interface {
	ListByProject(ctx context.Context, projectID string) ([]domain.WbsItem, error)
	Insert(ctx context.Context, item *domain.WbsItem) error
	Update(ctx context.Context, item *domain.WbsItem) error
	SetParent(ctx context.Context, id string, parent domain.Ref) error
	SetRemoteRowID(ctx context.Context, id string, rowID int64) error
	Delete(ctx context.Context, ids []string) error
	Clear(ctx context.Context, projectID string) (int64, error)
}

// SheetAPI is the slice of the remote client the sync service needs.
type SheetAPI interface {
	GetSheet(ctx context.Context, sheetID int64) (*remote.Sheet, error)
	AddRows(ctx context.Context, sheetID int64, rows []remote.Row) ([]remote.Row, error)
	UpdateRows(ctx context.Context, sheetID int64, rows []remote.Row) ([]remote.Row, error)
	DeleteRows(ctx context.Context, sheetID int64, rowIDs []int64) error
}

// AuditWriter records mutating operations. Implementations must never fail
// the primary operation.
type AuditWriter interface {
	Record(ctx context.Context, actor, action, target string, payload interface{})
}

// SaveResult is the aggregate outcome of one reconciliation pass. Per-item
// failures are collected here, not thrown, so the caller can report
// "created 8, failed 2" instead of all-or-nothing.
type SaveResult struct {
	Updated int                `json:"updated"`
	Created int                `json:"created"`
	Deleted int                `json:"deleted"`
	Errors  []domain.ItemError `json:"errors,omitempty"`
	// TempIDs maps UI-issued temporary ids to the permanent ids assigned
	// during this save, so the client can rebind its rows.
	TempIDs map[string]string `json:"temp_ids,omitempty"`
}

// PullResult summarizes a remote→cache import.
type PullResult struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
	Removed  int `json:"removed"`
}

// SyncService reconciles locally edited trees against the cache and the
// remote sheet. Row creation is deliberately sequential: each created row's
// identity is needed to position the next one.
type SyncService struct {
	items  ItemStore
	sheets SheetAPI
	audit  AuditWriter
}

func NewSyncService(items ItemStore, sheets SheetAPI, audit AuditWriter) *SyncService {
	return &SyncService{items: items, sheets: sheets, audit: audit}
}

// SaveTree reconciles the incoming flat edit set against the cache and, when
// the project has a sheet, against the remote system. sheetID of zero means
// the project is not provisioned yet; the save is then cache-only.
func (s *SyncService) SaveTree(ctx context.Context, projectID string, sheetID int64, actor string, incoming []*domain.WbsItem) (*SaveResult, error) {
	if err := validateItems(incoming); err != nil {
		return nil, err
	}

	cached, err := s.items.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}
	cachedByID := make(map[string]*domain.WbsItem, len(cached))
	for i := range cached {
		cachedByID[cached[i].ID] = &cached[i]
	}
	refs := newRefResolver(cached)

	res := &SaveResult{TempIDs: make(map[string]string)}

	// Hydrate incoming items with cache-owned fields before building the
	// tree, so parent references can resolve to remote row ids and variance
	// never takes the UI's value.
	for _, item := range incoming {
		if prev, ok := cachedByID[item.ID]; item.ID != "" && ok {
			item.RemoteRowID = prev.RemoteRowID
			item.Variance = prev.Variance
		}
	}

	tree := hierarchy.Build(incoming)
	cycleIDs := make(map[string]bool, len(tree.Cycles))
	for _, it := range tree.Cycles {
		cycleIDs[it.ID] = true
		res.Errors = append(res.Errors, domain.ItemError{
			ItemID: it.ID, Name: it.Name, Err: domain.ErrCycleDetected,
		})
	}
	flat := hierarchy.Flatten(tree)

	// Pass 1 (arena): persist every node, inserting temp-id items first and
	// recording the temp→permanent map. Parent references that are still
	// temporary are cleared for now and fixed in pass 2.
	seen := make(map[string]bool, len(flat))
	dirty := make([]*domain.WbsItem, 0, len(flat))
	for i := range flat {
		item := flat[i].Item
		item.ProjectID = projectID
		item.OrderIndex = flat[i].Order
		item.ParentRef = flat[i].Parent

		if item.ID == "" {
			persistRef := item.ParentRef
			if persistRef.Kind == domain.RefTemp {
				persistRef = domain.NoRef()
			}
			insert := *item
			insert.ParentRef = persistRef
			if err := s.items.Insert(ctx, &insert); err != nil {
				res.Errors = append(res.Errors, domain.ItemError{Name: item.Name, Err: err})
				continue
			}
			item.ID = insert.ID
			item.CreatedAt = insert.CreatedAt
			if item.TempID != "" {
				res.TempIDs[item.TempID] = item.ID
			}
			res.Created++
			seen[item.ID] = true
			continue
		}

		seen[item.ID] = true
		prev, ok := cachedByID[item.ID]
		if !ok {
			res.Errors = append(res.Errors, domain.ItemError{
				ItemID: item.ID, Name: item.Name, Err: domain.ErrNotFound,
			})
			continue
		}
		if !itemChanged(prev, item, refs) {
			continue
		}
		if item.ParentRef.Kind == domain.RefTemp {
			// Persisted below once the temp id resolves; keep old parent in
			// the meantime.
			hold := *item
			hold.ParentRef = prev.ParentRef
			if err := s.items.Update(ctx, &hold); err != nil {
				res.Errors = append(res.Errors, domain.ItemError{ItemID: item.ID, Name: item.Name, Err: err})
				continue
			}
		} else if err := s.items.Update(ctx, item); err != nil {
			res.Errors = append(res.Errors, domain.ItemError{ItemID: item.ID, Name: item.Name, Err: err})
			continue
		}
		res.Updated++
		dirty = append(dirty, item)
	}

	// Pass 2: rewrite parent references that pointed at a temp id now that
	// every new node has a permanent id.
	for i := range flat {
		item := flat[i].Item
		if item.ID == "" || item.ParentRef.Kind != domain.RefTemp {
			continue
		}
		permID, ok := res.TempIDs[item.ParentRef.ID]
		if !ok {
			res.Errors = append(res.Errors, domain.ItemError{
				ItemID: item.ID, Name: item.Name,
				Err: fmt.Errorf("%w: unresolved parent %s", domain.ErrValidation, item.ParentRef),
			})
			continue
		}
		item.ParentRef = domain.PermanentRef(permID)
		if err := s.items.SetParent(ctx, item.ID, item.ParentRef); err != nil {
			res.Errors = append(res.Errors, domain.ItemError{ItemID: item.ID, Name: item.Name, Err: err})
		}
	}

	// Deletes: present in cache, absent from the incoming set. Cycle members
	// were submitted, just not saveable; they are never treated as removals.
	var deleteIDs []string
	var deleteRows []int64
	for i := range cached {
		if seen[cached[i].ID] || cycleIDs[cached[i].ID] {
			continue
		}
		deleteIDs = append(deleteIDs, cached[i].ID)
		if cached[i].RemoteRowID != 0 && !cached[i].Skip {
			deleteRows = append(deleteRows, cached[i].RemoteRowID)
		}
	}
	if len(deleteIDs) > 0 {
		if err := s.items.Delete(ctx, deleteIDs); err != nil {
			return nil, fmt.Errorf("delete cache rows: %w", err)
		}
		res.Deleted = len(deleteIDs)
	}

	if sheetID != 0 {
		s.syncRemote(ctx, sheetID, flat, dirty, deleteRows, res)
	}

	s.audit.Record(ctx, actor, "wbs.save", projectID, res)
	return res, nil
}

// syncRemote pushes the reconciled state to the remote sheet: one batched
// update call for already-materialized rows, then strictly ordered single-row
// creates, then a batched delete. Skip rows are excluded from remote writes
// entirely; they are locked and formula-bearing in the remote system.
func (s *SyncService) syncRemote(ctx context.Context, sheetID int64, flat []hierarchy.FlatRow, dirty []*domain.WbsItem, deleteRows []int64, res *SaveResult) {
	sheet, err := s.sheets.GetSheet(ctx, sheetID)
	if err != nil {
		res.Errors = append(res.Errors, domain.ItemError{Err: fmt.Errorf("fetch sheet: %w", err)})
		return
	}
	accessor, err := remote.NewRowAccessor(sheet.Columns, remote.WbsFieldTitles, remote.WbsFormulaFields)
	if err != nil {
		res.Errors = append(res.Errors, domain.ItemError{Err: fmt.Errorf("resolve columns: %w", err)})
		return
	}

	// Batched update of rows that already exist remotely.
	var updates []remote.Row
	var updateItems []*domain.WbsItem
	for _, item := range dirty {
		if item.Skip || item.RemoteRowID == 0 {
			continue
		}
		row := remote.Row{ID: item.RemoteRowID}
		if err := buildCells(accessor, &row, item); err != nil {
			res.Errors = append(res.Errors, domain.ItemError{ItemID: item.ID, Name: item.Name, Err: err})
			continue
		}
		updates = append(updates, row)
		updateItems = append(updateItems, item)
	}
	if len(updates) > 0 {
		if _, err := s.sheets.UpdateRows(ctx, sheetID, updates); err != nil {
			for _, item := range updateItems {
				res.Errors = append(res.Errors, domain.ItemError{ItemID: item.ID, Name: item.Name, Err: err})
			}
		}
	}

	// Sequential creates in tree pre-order. Each creation must know the
	// just-created sibling's remote id to position the next one, so this
	// cannot be batched or parallelized without losing sibling order.
	byKey := make(map[string]*domain.WbsItem, len(flat))
	for i := range flat {
		it := flat[i].Item
		if it.ID != "" {
			byKey[domain.PermanentRef(it.ID).Key()] = it
		}
		// Flat rows keep the temp reference they were emitted with, so a
		// child created under a brand-new parent must be able to resolve it.
		if it.TempID != "" {
			byKey[domain.TempRef(it.TempID).Key()] = it
		}
	}
	lastSibling := make(map[string]int64) // parent key → last materialized row id
	for i := range flat {
		item := flat[i].Item
		if item.Skip || item.ID == "" {
			continue
		}
		parentKey := flat[i].Parent.Key()

		if item.RemoteRowID != 0 {
			lastSibling[parentKey] = item.RemoteRowID
			continue
		}

		parentRowID, err := remoteParentID(flat[i].Parent, byKey)
		if err != nil {
			res.Errors = append(res.Errors, domain.ItemError{ItemID: item.ID, Name: item.Name, Err: err})
			continue
		}

		row := remote.Row{}
		if prev, ok := lastSibling[parentKey]; ok {
			row.SiblingID = prev
		} else {
			row.ParentID = parentRowID
		}
		if err := buildCells(accessor, &row, item); err != nil {
			res.Errors = append(res.Errors, domain.ItemError{ItemID: item.ID, Name: item.Name, Err: err})
			continue
		}

		created, err := s.sheets.AddRows(ctx, sheetID, []remote.Row{row})
		if err != nil || len(created) == 0 {
			if err == nil {
				err = fmt.Errorf("remote returned no row")
			}
			res.Errors = append(res.Errors, domain.ItemError{ItemID: item.ID, Name: item.Name, Err: err})
			continue
		}

		item.RemoteRowID = created[0].ID
		lastSibling[parentKey] = created[0].ID
		if err := s.items.SetRemoteRowID(ctx, item.ID, created[0].ID); err != nil {
			res.Errors = append(res.Errors, domain.ItemError{ItemID: item.ID, Name: item.Name, Err: err})
		}
	}

	if len(deleteRows) > 0 {
		if err := s.sheets.DeleteRows(ctx, sheetID, deleteRows); err != nil {
			if errors.Is(err, remote.ErrNotFound) {
				// Rows already gone out-of-band; nothing to clean up.
				log.Printf("[wbs] delete rows: already removed remotely")
			} else {
				res.Errors = append(res.Errors, domain.ItemError{Err: fmt.Errorf("delete remote rows: %w", err)})
			}
		}
	}
}

// remoteParentID resolves the remote row id a create should attach under.
// The parent comes earlier in pre-order, so by the time a child is created
// the parent either carries a remote id or its own creation failed.
func remoteParentID(parent domain.Ref, byKey map[string]*domain.WbsItem) (int64, error) {
	switch parent.Kind {
	case domain.RefNone:
		return 0, nil
	case domain.RefRemote:
		return parent.RowID, nil
	case domain.RefPermanent, domain.RefTemp:
		if p, ok := byKey[parent.Key()]; ok && p.RemoteRowID != 0 {
			return p.RemoteRowID, nil
		}
		return 0, fmt.Errorf("parent %s not materialized remotely", parent)
	}
	return 0, nil
}

// buildCells writes every writable field onto the row. Formula-derived
// columns (variance) are never part of the payload, whatever the cache holds.
func buildCells(a *remote.RowAccessor, row *remote.Row, item *domain.WbsItem) error {
	set := func(field string, value interface{}) error {
		return a.Set(row, field, value)
	}
	if err := set(remote.FieldName, item.Name); err != nil {
		return err
	}
	if err := set(remote.FieldDescription, item.Description); err != nil {
		return err
	}
	if err := set(remote.FieldOwner, item.OwnerRef); err != nil {
		return err
	}
	if err := set(remote.FieldApprover, item.ApproverRef); err != nil {
		return err
	}
	if item.Status != "" {
		if err := set(remote.FieldStatus, string(item.Status.ToRemote())); err != nil {
			return err
		}
	}
	if item.StartDate != nil {
		if err := set(remote.FieldStartDate, item.StartDate.Format("2006-01-02")); err != nil {
			return err
		}
	}
	if item.EndDate != nil {
		if err := set(remote.FieldEndDate, item.EndDate.Format("2006-01-02")); err != nil {
			return err
		}
	}
	if err := set(remote.FieldBudget, item.Budget); err != nil {
		return err
	}
	if err := set(remote.FieldActual, item.Actual); err != nil {
		return err
	}
	return set(remote.FieldNotes, item.Notes)
}

// PullRemote imports the remote sheet into the cache: rows already linked are
// updated in place (including reading back formula-derived variance), unknown
// rows become new cached items, and cached rows whose remote counterpart
// vanished are dropped.
func (s *SyncService) PullRemote(ctx context.Context, projectID string, sheetID int64, actor string) (*PullResult, error) {
	sheet, err := s.sheets.GetSheet(ctx, sheetID)
	if err != nil {
		return nil, fmt.Errorf("fetch sheet: %w", err)
	}
	accessor, err := remote.NewRowAccessor(sheet.Columns, remote.WbsFieldTitles, remote.WbsFormulaFields)
	if err != nil {
		return nil, fmt.Errorf("resolve columns: %w", err)
	}

	cached, err := s.items.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}
	byRowID := make(map[int64]*domain.WbsItem, len(cached))
	for i := range cached {
		if cached[i].RemoteRowID != 0 {
			byRowID[cached[i].RemoteRowID] = &cached[i]
		}
	}
	refs := newRefResolver(cached)

	res := &PullResult{}
	seen := make(map[int64]bool, len(sheet.Rows))
	for i, row := range sheet.Rows {
		seen[row.ID] = true
		incoming := itemFromRow(accessor, row, projectID, i)

		if existing, ok := byRowID[row.ID]; ok {
			incoming.ID = existing.ID
			incoming.CreatedAt = existing.CreatedAt
			if !itemChanged(existing, &incoming, refs) {
				continue
			}
			if err := s.items.Update(ctx, &incoming); err != nil {
				return nil, fmt.Errorf("update item %s: %w", existing.ID, err)
			}
			res.Updated++
			continue
		}

		if err := s.items.Insert(ctx, &incoming); err != nil {
			return nil, fmt.Errorf("import row %d: %w", row.ID, err)
		}
		res.Imported++
	}

	// Remote rows deleted out-of-band invalidate their cached counterparts.
	var stale []string
	for i := range cached {
		if cached[i].RemoteRowID != 0 && !seen[cached[i].RemoteRowID] {
			stale = append(stale, cached[i].ID)
		}
	}
	if len(stale) > 0 {
		if err := s.items.Delete(ctx, stale); err != nil {
			return nil, fmt.Errorf("drop stale items: %w", err)
		}
		res.Removed = len(stale)
	}

	s.audit.Record(ctx, actor, "wbs.pull", projectID, res)
	return res, nil
}

// GetTree rebuilds the ordered tree from the cache, recomputing codes and
// completion rollups.
func (s *SyncService) GetTree(ctx context.Context, projectID string) (*hierarchy.Tree, error) {
	cached, err := s.items.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}
	items := make([]*domain.WbsItem, len(cached))
	for i := range cached {
		items[i] = &cached[i]
	}
	return hierarchy.Build(items), nil
}

// ClearCache drops every cached item for the project.
func (s *SyncService) ClearCache(ctx context.Context, projectID, actor string) (int64, error) {
	n, err := s.items.Clear(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	s.audit.Record(ctx, actor, "wbs.clear", projectID, map[string]int64{"removed": n})
	return n, nil
}

func itemFromRow(a *remote.RowAccessor, row remote.Row, projectID string, index int) domain.WbsItem {
	item := domain.WbsItem{
		ProjectID:   projectID,
		RemoteRowID: row.ID,
		Name:        a.String(row, remote.FieldName),
		Description: a.String(row, remote.FieldDescription),
		OwnerRef:    a.String(row, remote.FieldOwner),
		ApproverRef: a.String(row, remote.FieldApprover),
		Status:      domain.Status(a.String(row, remote.FieldStatus)),
		Budget:      a.String(row, remote.FieldBudget),
		Actual:      a.String(row, remote.FieldActual),
		Variance:    a.String(row, remote.FieldVariance),
		Notes:       a.String(row, remote.FieldNotes),
		Skip:        a.Bool(row, remote.FieldHeader),
		OrderIndex:  index,
	}
	if t, ok := a.Date(row, remote.FieldStartDate); ok {
		item.StartDate = &t
	}
	if t, ok := a.Date(row, remote.FieldEndDate); ok {
		item.EndDate = &t
	}
	if row.ParentID != 0 {
		item.ParentRef = domain.RemoteRef(row.ParentID)
	}
	return item
}

func validateItems(items []*domain.WbsItem) error {
	for _, it := range items {
		if it.ID == "" && it.TempID == "" {
			return fmt.Errorf("%w: item %q has neither id nor temp id", domain.ErrValidation, it.Name)
		}
		if it.Name == "" {
			return fmt.Errorf("%w: item name required", domain.ErrValidation)
		}
		if !it.Status.Valid() {
			return fmt.Errorf("%w: unknown status %q on %q", domain.ErrValidation, it.Status, it.Name)
		}
	}
	return nil
}

// refResolver maps any reference form onto the permanent id of the cached
// item it designates, so a Permanent and a Remote ref to the same parent
// compare equal instead of counting as an edit.
type refResolver map[string]string

func newRefResolver(items []domain.WbsItem) refResolver {
	r := make(refResolver, len(items)*2)
	for i := range items {
		r[domain.PermanentRef(items[i].ID).Key()] = items[i].ID
		if items[i].RemoteRowID != 0 {
			r[domain.RemoteRef(items[i].RemoteRowID).Key()] = items[i].ID
		}
	}
	return r
}

func (r refResolver) sameParent(a, b domain.Ref) bool {
	if a == b {
		return true
	}
	idA, okA := r[a.Key()]
	idB, okB := r[b.Key()]
	return okA && okB && idA == idB
}

// itemChanged compares the fields a save may change. Variance is excluded:
// it is remote-owned and only read back on sync.
func itemChanged(prev, next *domain.WbsItem, refs refResolver) bool {
	return prev.Name != next.Name ||
		prev.Description != next.Description ||
		prev.OwnerRef != next.OwnerRef ||
		prev.ApproverRef != next.ApproverRef ||
		prev.Status != next.Status ||
		!timePtrEqual(prev.StartDate, next.StartDate) ||
		!timePtrEqual(prev.EndDate, next.EndDate) ||
		prev.Budget != next.Budget ||
		prev.Actual != next.Actual ||
		prev.Notes != next.Notes ||
		prev.Skip != next.Skip ||
		prev.OrderIndex != next.OrderIndex ||
		!refs.sameParent(prev.ParentRef, next.ParentRef) ||
		prev.RemoteRowID != next.RemoteRowID
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
