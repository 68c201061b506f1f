package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmohub/wbs-sync-backend/internal/wbs/domain"
)

func TestFlatten_PreOrderGlobalSequence(t *testing.T) {
	items := []*domain.WbsItem{
		item("a", domain.NoRef(), 0),
		item("a1", domain.PermanentRef("a"), 1),
		item("a2", domain.PermanentRef("a"), 2),
		item("b", domain.NoRef(), 3),
		item("b1", domain.PermanentRef("b"), 4),
	}

	flat := Flatten(Build(items))
	require.Len(t, flat, 5)

	var ids []string
	for i, row := range flat {
		ids = append(ids, row.Item.ID)
		assert.Equal(t, i, row.Order, "order is one global sequence")
	}
	assert.Equal(t, []string{"a", "a1", "a2", "b", "b1"}, ids)
}

func TestFlatten_ParentPrefersRemoteRowID(t *testing.T) {
	parent := item("a", domain.NoRef(), 0)
	parent.RemoteRowID = 42
	child := item("b", domain.PermanentRef("a"), 1)

	flat := Flatten(Build([]*domain.WbsItem{parent, child}))
	require.Len(t, flat, 2)
	assert.Equal(t, domain.NoRef(), flat[0].Parent)
	assert.Equal(t, domain.RemoteRef(42), flat[1].Parent)
}

func TestFlatten_ParentFallsBackToPermanentThenTemp(t *testing.T) {
	t.Run("permanent id when not materialized remotely", func(t *testing.T) {
		parent := item("a", domain.NoRef(), 0)
		child := item("b", domain.PermanentRef("a"), 1)

		flat := Flatten(Build([]*domain.WbsItem{parent, child}))
		require.Len(t, flat, 2)
		assert.Equal(t, domain.PermanentRef("a"), flat[1].Parent)
	})

	t.Run("temp id for brand new parents", func(t *testing.T) {
		parent := &domain.WbsItem{TempID: "tmp-1", Name: "new"}
		child := &domain.WbsItem{TempID: "tmp-2", Name: "newer", ParentRef: domain.TempRef("tmp-1"), OrderIndex: 1}

		flat := Flatten(Build([]*domain.WbsItem{parent, child}))
		require.Len(t, flat, 2)
		assert.Equal(t, domain.TempRef("tmp-1"), flat[1].Parent)
	})
}

func TestFlatten_ExcludesCycleItems(t *testing.T) {
	items := []*domain.WbsItem{
		item("a", domain.NoRef(), 0),
		item("b", domain.PermanentRef("c"), 1),
		item("c", domain.PermanentRef("b"), 2),
	}

	flat := Flatten(Build(items))
	require.Len(t, flat, 1)
	assert.Equal(t, "a", flat[0].Item.ID)
}

func TestFlatten_RoundTrip(t *testing.T) {
	items := []*domain.WbsItem{
		item("a", domain.NoRef(), 0),
		item("a1", domain.PermanentRef("a"), 1),
		item("a11", domain.PermanentRef("a1"), 2),
		item("b", domain.NoRef(), 3),
	}

	flat := Flatten(Build(items))
	rebuilt := make([]*domain.WbsItem, 0, len(flat))
	for _, row := range flat {
		copied := *row.Item
		copied.ParentRef = row.Parent
		copied.OrderIndex = row.Order
		rebuilt = append(rebuilt, &copied)
	}

	again := Flatten(Build(rebuilt))
	require.Len(t, again, len(flat))
	for i := range flat {
		assert.Equal(t, flat[i].Item.ID, again[i].Item.ID)
		assert.Equal(t, flat[i].Parent, again[i].Parent)
	}
}
