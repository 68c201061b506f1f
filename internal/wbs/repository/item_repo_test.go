package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmohub/wbs-sync-backend/internal/wbs/domain"
)

func setupItemRepo(t *testing.T) (*ItemRepository, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewItemRepository(db)
	return repo, mock, db
}

var itemColumnNames = []string{
	"id", "project_id", "remote_row_id", "parent_id", "parent_row_id",
	"name", "description", "owner_ref", "approver_ref", "status",
	"start_date", "end_date", "budget", "actual", "variance", "notes",
	"skip", "order_index", "created_at", "updated_at",
}

func TestItemRepository_ListByProject(t *testing.T) {
	repo, mock, db := setupItemRepo(t)
	defer db.Close()

	t.Run("decodes refs and nullable fields", func(t *testing.T) {
		now := time.Now()
		start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery(`SELECT (.+) FROM wbs_items`).
			WithArgs("p1").
			WillReturnRows(sqlmock.NewRows(itemColumnNames).
				AddRow(
					"item-1", "p1", int64(100), nil, nil,
					"Task 1", "", "owner@example.com", "", "In Progress",
					start, nil, "1000", "900", "100", "",
					false, 0, now, now,
				).
				AddRow(
					"item-2", "p1", nil, "item-1", nil,
					"Subtask", "", "", "", "",
					nil, nil, "", "", "", "",
					false, 1, now, now,
				).
				AddRow(
					"item-3", "p1", nil, nil, int64(100),
					"Linked by row", "", "", "", "",
					nil, nil, "", "", "", "",
					true, 2, now, now,
				))

		items, err := repo.ListByProject(context.Background(), "p1")
		require.NoError(t, err)
		require.Len(t, items, 3)

		assert.Equal(t, int64(100), items[0].RemoteRowID)
		assert.Equal(t, domain.StatusInProgress, items[0].Status)
		require.NotNil(t, items[0].StartDate)
		assert.Equal(t, start, *items[0].StartDate)
		assert.Nil(t, items[0].EndDate)
		assert.True(t, items[0].ParentRef.IsZero())

		assert.Equal(t, domain.PermanentRef("item-1"), items[1].ParentRef)
		assert.Zero(t, items[1].RemoteRowID)

		assert.Equal(t, domain.RemoteRef(100), items[2].ParentRef)
		assert.True(t, items[2].Skip)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty project yields empty slice", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM wbs_items`).
			WithArgs("empty").
			WillReturnRows(sqlmock.NewRows(itemColumnNames))

		items, err := repo.ListByProject(context.Background(), "empty")
		require.NoError(t, err)
		assert.Empty(t, items)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestItemRepository_Insert(t *testing.T) {
	repo, mock, db := setupItemRepo(t)
	defer db.Close()

	t.Run("assigns a permanent id", func(t *testing.T) {
		item := &domain.WbsItem{
			ProjectID: "p1",
			Name:      "Task 1",
			ParentRef: domain.RemoteRef(100),
			Status:    domain.StatusNotStarted,
		}

		mock.ExpectQuery(`INSERT INTO wbs_items`).
			WithArgs(
				sqlmock.AnyArg(), // id (UUID)
				"p1",
				sqlmock.AnyArg(), // remote_row_id (null)
				sqlmock.AnyArg(), // parent_id (null)
				int64(100),       // parent_row_id
				"Task 1",
				"", "", "", "Not Started",
				nil, nil, "", "", "", "",
				false, 0,
			).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
				AddRow(time.Now(), time.Now()))

		err := repo.Insert(context.Background(), item)
		require.NoError(t, err)
		assert.NotEmpty(t, item.ID)
		assert.False(t, item.CreatedAt.IsZero())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects nameless items without touching the db", func(t *testing.T) {
		err := repo.Insert(context.Background(), &domain.WbsItem{ProjectID: "p1"})
		assert.ErrorIs(t, err, domain.ErrValidation)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate remote row id maps to the domain error", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO wbs_items`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "wbs_items_remote_row_id_key"})

		err := repo.Insert(context.Background(), &domain.WbsItem{ProjectID: "p1", Name: "dup", RemoteRowID: 100})
		assert.ErrorIs(t, err, domain.ErrDuplicateRemoteRow)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestItemRepository_Update(t *testing.T) {
	repo, mock, db := setupItemRepo(t)
	defer db.Close()

	t.Run("updates existing item", func(t *testing.T) {
		mock.ExpectExec(`UPDATE wbs_items`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Update(context.Background(), &domain.WbsItem{ID: "item-1", Name: "Renamed"})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing item returns not found", func(t *testing.T) {
		mock.ExpectExec(`UPDATE wbs_items`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Update(context.Background(), &domain.WbsItem{ID: "ghost", Name: "x"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestItemRepository_SetParent(t *testing.T) {
	repo, mock, db := setupItemRepo(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE wbs_items`).
		WithArgs("item-2", "item-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetParent(context.Background(), "item-2", domain.PermanentRef("item-1"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestItemRepository_SetRemoteRowID(t *testing.T) {
	repo, mock, db := setupItemRepo(t)
	defer db.Close()

	t.Run("links the remote row", func(t *testing.T) {
		mock.ExpectExec(`UPDATE wbs_items`).
			WithArgs("item-1", int64(555)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.SetRemoteRowID(context.Background(), "item-1", 555))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate link maps to the domain error", func(t *testing.T) {
		mock.ExpectExec(`UPDATE wbs_items`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "wbs_items_remote_row_id_key"})

		err := repo.SetRemoteRowID(context.Background(), "item-1", 555)
		assert.ErrorIs(t, err, domain.ErrDuplicateRemoteRow)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestItemRepository_Delete(t *testing.T) {
	repo, mock, db := setupItemRepo(t)
	defer db.Close()

	t.Run("deletes by id set", func(t *testing.T) {
		mock.ExpectExec(`DELETE FROM wbs_items WHERE id = ANY`).
			WithArgs(pq.Array([]string{"a", "b"})).
			WillReturnResult(sqlmock.NewResult(0, 2))

		require.NoError(t, repo.Delete(context.Background(), []string{"a", "b"}))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty set is a no-op", func(t *testing.T) {
		require.NoError(t, repo.Delete(context.Background(), nil))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestItemRepository_Clear(t *testing.T) {
	repo, mock, db := setupItemRepo(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM wbs_items WHERE project_id`).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.Clear(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
