package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	retr := NewRetryer(RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, NewDedupeGuard(), nil)
	return NewClient(server.URL, "test-token", retr)
}

func TestClient_GetSheet(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sheets/42", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(Sheet{
			ID:      42,
			Name:    "WBS - PRJ-001",
			Columns: []Column{{ID: 1, Title: "Task Name"}},
			Rows:    []Row{{ID: 10, RowNumber: 1}},
		})
	})

	sheet, err := client.GetSheet(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sheet.ID)
	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, int64(10), sheet.Rows[0].ID)
}

func TestClient_GetSheet_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
	})

	_, err := client.GetSheet(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
	assert.Equal(t, "Not Found", apiErr.Message)
}

func TestClient_GetSheet_AuthRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.GetSheet(context.Background(), 42)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestClient_AddRows(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sheets/42/rows", r.URL.Path)

		var rows []Row
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rows))
		require.Len(t, rows, 1)
		assert.Equal(t, int64(7), rows[0].ParentID)

		result, _ := json.Marshal([]Row{{ID: 555, ParentID: 7}})
		json.NewEncoder(w).Encode(apiResult{ResultCode: 0, Result: result})
	})

	created, err := client.AddRows(context.Background(), 42, []Row{{ParentID: 7}})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, int64(555), created[0].ID)
}

func TestClient_UpdateRows(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		result, _ := json.Marshal([]Row{{ID: 10}})
		json.NewEncoder(w).Encode(apiResult{Result: result})
	})

	updated, err := client.UpdateRows(context.Background(), 42, []Row{{ID: 10}})
	require.NoError(t, err)
	require.Len(t, updated, 1)
}

func TestClient_DeleteRows(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/sheets/42/rows", r.URL.Path)
		assert.Equal(t, "10,11", r.URL.Query().Get("ids"))
		json.NewEncoder(w).Encode(apiResult{})
	})

	require.NoError(t, client.DeleteRows(context.Background(), 42, []int64{10, 11}))
}

func TestClient_CreateFolder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/folders/99/folders", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "WBS (#PRJ-001)", body["name"])

		result, _ := json.Marshal(Folder{ID: 1234, Name: body["name"]})
		json.NewEncoder(w).Encode(apiResult{Result: result})
	})

	folder, err := client.CreateFolder(context.Background(), "WBS (#PRJ-001)", 99)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), folder.ID)
}

func TestClient_CopySheet(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sheets/5/copy", r.URL.Path)

		var body copyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "WBS - PRJ-001", body.NewName)
		assert.Equal(t, int64(1234), body.DestinationID)

		result, _ := json.Marshal(ObjectRef{ID: 77, Name: body.NewName, Permalink: "https://sheets.example/s/77"})
		json.NewEncoder(w).Encode(apiResult{Result: result})
	})

	ref, err := client.CopySheet(context.Background(), 5, "WBS - PRJ-001", 1234)
	require.NoError(t, err)
	assert.Equal(t, int64(77), ref.ID)
	assert.Equal(t, "https://sheets.example/s/77", ref.Permalink)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Sheet{ID: 42})
	}))
	defer server.Close()

	retr := NewRetryer(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, NewDedupeGuard(), nil)
	client := NewClient(server.URL, "test-token", retr)

	sheet, err := client.GetSheet(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sheet.ID)
	assert.Equal(t, 3, calls)
}

func TestClient_Webhooks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "/webhooks", r.URL.Path)
			json.NewEncoder(w).Encode([]Webhook{{ID: 1, Name: "existing"}})
		case http.MethodPost:
			var hook Webhook
			require.NoError(t, json.NewDecoder(r.Body).Decode(&hook))
			hook.ID = 2
			result, _ := json.Marshal(hook)
			json.NewEncoder(w).Encode(apiResult{Result: result})
		}
	})

	hooks, err := client.ListWebhooks(context.Background())
	require.NoError(t, err)
	require.Len(t, hooks, 1)

	created, err := client.CreateWebhook(context.Background(), Webhook{Name: "portfolio", ScopeID: 42})
	require.NoError(t, err)
	assert.Equal(t, int64(2), created.ID)
	assert.Equal(t, "portfolio", created.Name)
}
