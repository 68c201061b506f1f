package hierarchy

import "github.com/pmohub/wbs-sync-backend/internal/wbs/domain"

// FlatRow is one emitted row of a pre-order flattening. Order is a single
// global sequence across the entire tree, because the remote system's row
// order is one flat sequence, not per-level. Parent prefers the remote row
// id when the parent is already materialized remotely, so a newly-created
// child can be linked to it; otherwise it falls back to the permanent id,
// then to the temporary id for later resolution.
type FlatRow struct {
	Item   *domain.WbsItem
	Order  int
	Parent domain.Ref
}

// Flatten performs a pre-order traversal of the tree, producing the flat
// ordered list used both for cache persistence and for building the remote
// patch payload. Cycle-excluded items are not emitted.
func Flatten(t *Tree) []FlatRow {
	out := make([]FlatRow, 0, 16)
	order := 0

	var walk func(n *Node, parent *Node)
	walk = func(n *Node, parent *Node) {
		row := FlatRow{Item: n.Item, Order: order, Parent: parentRef(parent)}
		order++
		out = append(out, row)
		for _, c := range n.Children {
			walk(c, n)
		}
	}

	for _, r := range t.Roots {
		walk(r, nil)
	}
	return out
}

func parentRef(parent *Node) domain.Ref {
	if parent == nil {
		return domain.NoRef()
	}
	p := parent.Item
	if p.RemoteRowID != 0 {
		return domain.RemoteRef(p.RemoteRowID)
	}
	if p.ID != "" {
		return domain.PermanentRef(p.ID)
	}
	if p.TempID != "" {
		return domain.TempRef(p.TempID)
	}
	return domain.NoRef()
}
