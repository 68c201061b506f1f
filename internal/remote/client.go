package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Client talks to the remote spreadsheet service. Every call goes through the
// retryer, which owns backoff, rate limiting and the idempotency guard.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retr       *Retryer
}

// NewClient builds a client authenticated with a static bearer token.
func NewClient(baseURL, token string, retr *Retryer) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = 30 * time.Second
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		retr:       retr,
	}
}

// apiResult is the envelope the service wraps mutation responses in.
type apiResult struct {
	ResultCode int             `json:"resultCode"`
	Message    string          `json:"message,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// GetSheet fetches a sheet with its columns and rows.
func (c *Client) GetSheet(ctx context.Context, sheetID int64) (*Sheet, error) {
	var sheet Sheet
	op := "getSheet"
	err := c.retr.Do(ctx, op, []string{formatID(sheetID)}, func(ctx context.Context) error {
		return c.getJSON(ctx, op, fmt.Sprintf("/sheets/%d", sheetID), &sheet)
	})
	if err != nil {
		return nil, err
	}
	return &sheet, nil
}

// GetRow fetches a single row of a sheet.
func (c *Client) GetRow(ctx context.Context, sheetID, rowID int64) (*Row, error) {
	var row Row
	op := "getRow"
	err := c.retr.Do(ctx, op, []string{formatID(sheetID), formatID(rowID)}, func(ctx context.Context) error {
		return c.getJSON(ctx, op, fmt.Sprintf("/sheets/%d/rows/%d", sheetID, rowID), &row)
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetColumns fetches only the column definitions of a sheet.
func (c *Client) GetColumns(ctx context.Context, sheetID int64) ([]Column, error) {
	var cols []Column
	op := "getColumns"
	err := c.retr.Do(ctx, op, []string{formatID(sheetID)}, func(ctx context.Context) error {
		return c.getJSON(ctx, op, fmt.Sprintf("/sheets/%d/columns", sheetID), &cols)
	})
	if err != nil {
		return nil, err
	}
	return cols, nil
}

// AddRows creates rows and returns them with their assigned ids. The caller
// is responsible for ordering: a row positioned by SiblingID must be added
// after the sibling it names.
func (c *Client) AddRows(ctx context.Context, sheetID int64, rows []Row) ([]Row, error) {
	var created []Row
	op := "addRows"
	err := c.retr.Do(ctx, op, rowKeyParts(sheetID, rows), func(ctx context.Context) error {
		res, err := c.send(ctx, op, http.MethodPost, fmt.Sprintf("/sheets/%d/rows", sheetID), rows)
		if err != nil {
			return err
		}
		created = created[:0]
		return json.Unmarshal(res.Result, &created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateRows updates rows keyed by row id in one batched call.
func (c *Client) UpdateRows(ctx context.Context, sheetID int64, rows []Row) ([]Row, error) {
	var updated []Row
	op := "updateRows"
	err := c.retr.Do(ctx, op, rowKeyParts(sheetID, rows), func(ctx context.Context) error {
		res, err := c.send(ctx, op, http.MethodPut, fmt.Sprintf("/sheets/%d/rows", sheetID), rows)
		if err != nil {
			return err
		}
		updated = updated[:0]
		return json.Unmarshal(res.Result, &updated)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteRows removes rows by id.
func (c *Client) DeleteRows(ctx context.Context, sheetID int64, rowIDs []int64) error {
	ids := make([]string, len(rowIDs))
	for i, id := range rowIDs {
		ids[i] = formatID(id)
	}
	op := "deleteRows"
	path := fmt.Sprintf("/sheets/%d/rows?ids=%s", sheetID, strings.Join(ids, ","))
	return c.retr.Do(ctx, op, append([]string{formatID(sheetID)}, ids...), func(ctx context.Context) error {
		_, err := c.send(ctx, op, http.MethodDelete, path, nil)
		return err
	})
}

// CreateFolder creates a folder under the given parent container.
func (c *Client) CreateFolder(ctx context.Context, name string, parentID int64) (*Folder, error) {
	var folder Folder
	op := "createFolder"
	err := c.retr.Do(ctx, op, []string{name, formatID(parentID)}, func(ctx context.Context) error {
		res, err := c.send(ctx, op, http.MethodPost, fmt.Sprintf("/folders/%d/folders", parentID), map[string]string{"name": name})
		if err != nil {
			return err
		}
		return json.Unmarshal(res.Result, &folder)
	})
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

// GetFolder fetches a folder listing (child sheets, folders, reports,
// dashboards).
func (c *Client) GetFolder(ctx context.Context, folderID int64) (*Folder, error) {
	var folder Folder
	op := "getFolder"
	err := c.retr.Do(ctx, op, []string{formatID(folderID)}, func(ctx context.Context) error {
		return c.getJSON(ctx, op, fmt.Sprintf("/folders/%d", folderID), &folder)
	})
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

type copyRequest struct {
	NewName       string `json:"newName"`
	DestinationID int64  `json:"destinationId"`
}

// CopySheet copies a sheet into the destination folder under a new name.
func (c *Client) CopySheet(ctx context.Context, sheetID int64, newName string, destFolderID int64) (*ObjectRef, error) {
	return c.copyObject(ctx, "copySheet", fmt.Sprintf("/sheets/%d/copy", sheetID), newName, destFolderID)
}

// CopyReport copies a report into the destination folder.
func (c *Client) CopyReport(ctx context.Context, reportID int64, newName string, destFolderID int64) (*ObjectRef, error) {
	return c.copyObject(ctx, "copyReport", fmt.Sprintf("/reports/%d/copy", reportID), newName, destFolderID)
}

// CopyDashboard copies a dashboard into the destination folder.
func (c *Client) CopyDashboard(ctx context.Context, dashboardID int64, newName string, destFolderID int64) (*ObjectRef, error) {
	return c.copyObject(ctx, "copyDashboard", fmt.Sprintf("/dashboards/%d/copy", dashboardID), newName, destFolderID)
}

func (c *Client) copyObject(ctx context.Context, op, path, newName string, destFolderID int64) (*ObjectRef, error) {
	var ref ObjectRef
	err := c.retr.Do(ctx, op, []string{path, newName, formatID(destFolderID)}, func(ctx context.Context) error {
		res, err := c.send(ctx, op, http.MethodPost, path, copyRequest{NewName: newName, DestinationID: destFolderID})
		if err != nil {
			return err
		}
		return json.Unmarshal(res.Result, &ref)
	})
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// ListWebhooks returns all webhooks owned by the token.
func (c *Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	var hooks []Webhook
	op := "listWebhooks"
	err := c.retr.Do(ctx, op, nil, func(ctx context.Context) error {
		return c.getJSON(ctx, op, "/webhooks", &hooks)
	})
	if err != nil {
		return nil, err
	}
	return hooks, nil
}

// CreateWebhook registers a new webhook subscription.
func (c *Client) CreateWebhook(ctx context.Context, hook Webhook) (*Webhook, error) {
	var created Webhook
	op := "createWebhook"
	err := c.retr.Do(ctx, op, []string{hook.Name, formatID(hook.ScopeID)}, func(ctx context.Context) error {
		res, err := c.send(ctx, op, http.MethodPost, "/webhooks", hook)
		if err != nil {
			return err
		}
		return json.Unmarshal(res.Result, &created)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteWebhook removes a webhook subscription.
func (c *Client) DeleteWebhook(ctx context.Context, webhookID int64) error {
	op := "deleteWebhook"
	return c.retr.Do(ctx, op, []string{formatID(webhookID)}, func(ctx context.Context) error {
		_, err := c.send(ctx, op, http.MethodDelete, fmt.Sprintf("/webhooks/%d", webhookID), nil)
		return err
	})
}

func (c *Client) getJSON(ctx context.Context, op, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode JSON: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, op, method, path string, body interface{}) (*apiResult, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, statusError(op, resp)
	}

	var res apiResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return &res, nil
}

func statusError(op string, resp *http.Response) error {
	var msg struct {
		Message string `json:"message"`
	}
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(buf, &msg)
	return &APIError{Status: resp.StatusCode, Op: op, Message: msg.Message}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func rowKeyParts(sheetID int64, rows []Row) []string {
	parts := make([]string, 0, len(rows)+1)
	parts = append(parts, formatID(sheetID))
	for _, r := range rows {
		if r.ID != 0 {
			parts = append(parts, formatID(r.ID))
			continue
		}
		// New rows have no id yet; key on position instead.
		parts = append(parts, fmt.Sprintf("p%d-s%d", r.ParentID, r.SiblingID))
	}
	return parts
}
