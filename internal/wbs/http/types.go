package http

import (
	"time"

	"github.com/pmohub/wbs-sync-backend/internal/wbs/domain"
	"github.com/pmohub/wbs-sync-backend/internal/wbs/hierarchy"
)

// itemPayload is one row of an edited tree as the UI submits it. Exactly one
// of ID/TempID identifies the row; parent references carry whichever identity
// the UI knows.
type itemPayload struct {
	ID          string `json:"id,omitempty"`
	TempID      string `json:"temp_id,omitempty"`
	ParentID    string `json:"parent_id,omitempty"`
	ParentRowID int64  `json:"parent_row_id,omitempty"`
	ParentTemp  string `json:"parent_temp_id,omitempty"`

	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	OwnerRef    string     `json:"owner_ref,omitempty"`
	ApproverRef string     `json:"approver_ref,omitempty"`
	Status      string     `json:"status,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Budget      string     `json:"budget,omitempty"`
	Actual      string     `json:"actual,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Skip        bool       `json:"skip,omitempty"`
	OrderIndex  int        `json:"order_index"`
}

func (p itemPayload) toDomain() *domain.WbsItem {
	item := &domain.WbsItem{
		ID:          p.ID,
		TempID:      p.TempID,
		Name:        p.Name,
		Description: p.Description,
		OwnerRef:    p.OwnerRef,
		ApproverRef: p.ApproverRef,
		Status:      domain.Status(p.Status),
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
		Budget:      p.Budget,
		Actual:      p.Actual,
		Notes:       p.Notes,
		Skip:        p.Skip,
		OrderIndex:  p.OrderIndex,
	}
	switch {
	case p.ParentID != "":
		item.ParentRef = domain.PermanentRef(p.ParentID)
	case p.ParentRowID != 0:
		item.ParentRef = domain.RemoteRef(p.ParentRowID)
	case p.ParentTemp != "":
		item.ParentRef = domain.TempRef(p.ParentTemp)
	}
	return item
}

// nodeView is the tree representation returned to the UI, with derived code,
// depth and completion rollup.
type nodeView struct {
	Item            *domain.WbsItem `json:"item"`
	Code            string          `json:"code,omitempty"`
	Depth           int             `json:"depth"`
	PercentComplete float64         `json:"percent_complete"`
	Children        []nodeView      `json:"children,omitempty"`
}

func toNodeViews(nodes []*hierarchy.Node) []nodeView {
	out := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, nodeView{
			Item:            n.Item,
			Code:            n.Code,
			Depth:           n.Depth,
			PercentComplete: n.PercentComplete,
			Children:        toNodeViews(n.Children),
		})
	}
	return out
}
