package remote

import "time"

// Column describes one column of a remote sheet. Numeric ids are not stable
// across environments; columns are always resolved by title before use.
type Column struct {
	ID      int64  `json:"id"`
	Index   int    `json:"index"`
	Title   string `json:"title"`
	Type    string `json:"type"`
	Primary bool   `json:"primary,omitempty"`
}

// Hyperlink is a link attached to a cell.
type Hyperlink struct {
	URL string `json:"url"`
}

// Cell is one {columnId, value} pair of a row. Formula is populated only on
// reads; formula-bearing cells are never written back.
type Cell struct {
	ColumnID     int64       `json:"columnId"`
	Value        interface{} `json:"value,omitempty"`
	DisplayValue string      `json:"displayValue,omitempty"`
	Formula      string      `json:"formula,omitempty"`
	Hyperlink    *Hyperlink  `json:"hyperlink,omitempty"`
}

// Row is a flat list of cells plus positioning. On writes, ParentID positions
// the row as first child of the parent and SiblingID positions it directly
// after the named sibling; the remote service accepts at most one of the two.
type Row struct {
	ID         int64     `json:"id,omitempty"`
	RowNumber  int       `json:"rowNumber,omitempty"`
	ParentID   int64     `json:"parentId,omitempty"`
	SiblingID  int64     `json:"siblingId,omitempty"`
	Cells      []Cell    `json:"cells,omitempty"`
	ModifiedAt time.Time `json:"modifiedAt,omitempty"`
}

// Sheet is the full remote representation: columns plus rows.
type Sheet struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Permalink string   `json:"permalink,omitempty"`
	Columns   []Column `json:"columns,omitempty"`
	Rows      []Row    `json:"rows,omitempty"`
}

// ObjectRef is a summary reference to a sheet, folder, report or dashboard
// as listed in a folder.
type ObjectRef struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Permalink string `json:"permalink,omitempty"`
}

// Folder is a container listing. Children come back as summaries only.
type Folder struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Permalink  string      `json:"permalink,omitempty"`
	Sheets     []ObjectRef `json:"sheets,omitempty"`
	Folders    []ObjectRef `json:"folders,omitempty"`
	Reports    []ObjectRef `json:"reports,omitempty"`
	Dashboards []ObjectRef `json:"dashboards,omitempty"`
}

// Webhook is a row-event subscription on a sheet.
type Webhook struct {
	ID          int64    `json:"id,omitempty"`
	Name        string   `json:"name"`
	Scope       string   `json:"scope"`
	ScopeID     int64    `json:"scopeObjectId"`
	Events      []string `json:"events"`
	CallbackURL string   `json:"callbackUrl"`
	Enabled     bool     `json:"enabled"`
	Status      string   `json:"status,omitempty"`
}

// WebhookEvent is one entry of a webhook callback payload.
type WebhookEvent struct {
	ObjectType string `json:"objectType"`
	EventType  string `json:"eventType"`
	RowID      int64  `json:"rowId,omitempty"`
}

// WebhookPayload is the body the remote service posts to our callback URL.
// Challenge is set on verification requests and must be echoed back.
type WebhookPayload struct {
	Challenge string         `json:"challenge,omitempty"`
	WebhookID int64          `json:"webhookId,omitempty"`
	Events    []WebhookEvent `json:"events,omitempty"`
}
