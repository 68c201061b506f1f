// Package hierarchy converts between the flat row form the cache and the
// remote service use, and the ordered tree the rest of the service works on.
package hierarchy

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/pmohub/wbs-sync-backend/internal/wbs/domain"
)

// Node is one tree position. Code and Depth are recomputed on every build.
type Node struct {
	Item     *domain.WbsItem
	Children []*Node
	Code     string
	Depth    int
	// PercentComplete is rolled up bottom-up: a leaf is 100 when Complete,
	// otherwise 0; a parent averages its children.
	PercentComplete float64
}

// Tree is the result of a build: ordered roots plus any items that had to be
// excluded because they sit on a parent cycle.
type Tree struct {
	Roots  []*Node
	Cycles []*domain.WbsItem
}

// Build converts an unordered collection of items into an ordered tree.
//
// The lookup table is keyed by every identity form an item carries (permanent
// id, remote row id, temporary id), since a parent may be referenced by any
// of them. An item whose parent reference resolves to nothing is demoted to a
// root rather than discarded: data loss is never silent. Items on a parent
// cycle are unreachable from any root; they are collected into Tree.Cycles so
// the caller can fail them loudly instead of looping forever.
func Build(items []*domain.WbsItem) *Tree {
	index := make(map[string]*Node, len(items)*2)
	nodes := make([]*Node, 0, len(items))

	for _, item := range items {
		n := &Node{Item: item}
		nodes = append(nodes, n)
		if item.ID != "" {
			index[domain.PermanentRef(item.ID).Key()] = n
		}
		if item.RemoteRowID != 0 {
			index[domain.RemoteRef(item.RemoteRowID).Key()] = n
		}
		if item.TempID != "" {
			index[domain.TempRef(item.TempID).Key()] = n
		}
	}

	var roots []*Node
	for _, n := range nodes {
		ref := n.Item.ParentRef
		if ref.IsZero() {
			roots = append(roots, n)
			continue
		}
		parent, ok := index[ref.Key()]
		if !ok || parent == n {
			// Unknown or deleted parent: demote to root.
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}

	sortChildren(roots)
	for _, n := range nodes {
		sortChildren(n.Children)
	}

	// Visited-set guard: anything not reachable from a root sits on a cycle.
	visited := make(map[*Node]bool, len(nodes))
	var walk func(n *Node)
	walk = func(n *Node) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}

	var cycles []*domain.WbsItem
	for _, n := range nodes {
		if !visited[n] {
			cycles = append(cycles, n.Item)
		}
	}

	t := &Tree{Roots: roots, Cycles: cycles}
	assignCodes(t.Roots, "", 1)
	for _, r := range t.Roots {
		rollup(r)
	}
	return t
}

func sortChildren(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Item.OrderIndex < nodes[j].Item.OrderIndex
	})
}

// assignCodes numbers nodes in pre-order. The counter is per parent and
// resets on entry. Skip rows receive no code; their children restart counting
// under the skip row's own prefix, so a skip item never contributes a
// numbering level, only a level of visual indentation.
func assignCodes(nodes []*Node, prefix string, depth int) {
	n := 0
	for _, nd := range nodes {
		nd.Depth = depth
		if nd.Item.Skip {
			nd.Code = ""
			assignCodes(nd.Children, prefix, depth+1)
			continue
		}
		n++
		code := strconv.Itoa(n)
		if prefix != "" {
			code = fmt.Sprintf("%s.%d", prefix, n)
		}
		nd.Code = code
		assignCodes(nd.Children, code, depth+1)
	}
}

func rollup(n *Node) float64 {
	if len(n.Children) == 0 {
		if n.Item.Status == domain.StatusComplete {
			n.PercentComplete = 100
		} else {
			n.PercentComplete = 0
		}
		return n.PercentComplete
	}
	var sum float64
	for _, c := range n.Children {
		sum += rollup(c)
	}
	n.PercentComplete = sum / float64(len(n.Children))
	return n.PercentComplete
}
