package remote

import (
	"fmt"
	"strconv"
	"time"
)

// Semantic field names used throughout the service. The remote schema is
// fixed to a known set of column titles; everything above this layer works
// with field names only, so column ordering and numeric column ids never
// leak upward.
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldOwner       = "owner"
	FieldApprover    = "approver"
	FieldStatus      = "status"
	FieldStartDate   = "start_date"
	FieldEndDate     = "end_date"
	FieldBudget      = "budget"
	FieldActual      = "actual"
	FieldVariance    = "variance"
	FieldNotes       = "notes"
	FieldHeader      = "header"

	FieldBusinessCode = "business_code"
	FieldTitle        = "title"
	FieldApproval     = "approval"
	FieldWbsLink      = "wbs_link"
	FieldAppLink      = "app_link"
)

// WbsFieldTitles maps semantic fields to the column titles of a WBS sheet.
var WbsFieldTitles = map[string]string{
	FieldName:        "Task Name",
	FieldDescription: "Description",
	FieldOwner:       "Owner",
	FieldApprover:    "Approver",
	FieldStatus:      "Status",
	FieldStartDate:   "Start Date",
	FieldEndDate:     "End Date",
	FieldBudget:      "Budget",
	FieldActual:      "Actual",
	FieldVariance:    "Variance",
	FieldNotes:       "Notes",
	FieldHeader:      "Header",
}

// WbsFormulaFields are formula-derived remotely. The remote system is the
// source of truth for these; they are read back on sync and never written.
var WbsFormulaFields = map[string]bool{
	FieldVariance: true,
}

// PortfolioFieldTitles maps semantic fields to the portfolio sheet's columns.
var PortfolioFieldTitles = map[string]string{
	FieldBusinessCode: "Project Code",
	FieldTitle:        "Project Title",
	FieldApproval:     "Approval Status",
	FieldWbsLink:      "WBS Link",
	FieldAppLink:      "App Link",
}

// RowAccessor resolves row cells by semantic field name, given a sheet's
// column set and a field→title mapping.
type RowAccessor struct {
	columns map[string]int64 // field → column id
	formula map[string]bool
}

// NewRowAccessor builds an accessor from the sheet's columns. Every mapped
// title must exist in the sheet; a missing title is a schema mismatch and
// fails construction.
func NewRowAccessor(columns []Column, fieldTitles map[string]string, formulaFields map[string]bool) (*RowAccessor, error) {
	byTitle := make(map[string]int64, len(columns))
	for _, col := range columns {
		byTitle[col.Title] = col.ID
	}

	byField := make(map[string]int64, len(fieldTitles))
	for field, title := range fieldTitles {
		id, ok := byTitle[title]
		if !ok {
			return nil, fmt.Errorf("column %q not found in sheet", title)
		}
		byField[field] = id
	}

	if formulaFields == nil {
		formulaFields = map[string]bool{}
	}
	return &RowAccessor{columns: byField, formula: formulaFields}, nil
}

// NewRowAccessorFromMap builds an accessor from an already-resolved
// field→columnID map (e.g. one loaded from the column cache).
func NewRowAccessorFromMap(columns map[string]int64, formulaFields map[string]bool) *RowAccessor {
	if formulaFields == nil {
		formulaFields = map[string]bool{}
	}
	return &RowAccessor{columns: columns, formula: formulaFields}
}

// ColumnMap returns the resolved field→columnID map, for caching.
func (a *RowAccessor) ColumnMap() map[string]int64 {
	out := make(map[string]int64, len(a.columns))
	for k, v := range a.columns {
		out[k] = v
	}
	return out
}

// Covers reports whether the accessor resolves every field in fieldTitles.
// A cached column map that fails this check predates a schema change and
// must be dropped.
func (a *RowAccessor) Covers(fieldTitles map[string]string) bool {
	for field := range fieldTitles {
		if _, ok := a.columns[field]; !ok {
			return false
		}
	}
	return true
}

func (a *RowAccessor) cell(row Row, field string) (Cell, bool) {
	id, ok := a.columns[field]
	if !ok {
		return Cell{}, false
	}
	for _, c := range row.Cells {
		if c.ColumnID == id {
			return c, true
		}
	}
	return Cell{}, false
}

// String reads a cell's value as a string, falling back to the display value.
func (a *RowAccessor) String(row Row, field string) string {
	c, ok := a.cell(row, field)
	if !ok {
		return ""
	}
	switch v := c.Value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return c.DisplayValue
}

// Bool reads a checkbox cell.
func (a *RowAccessor) Bool(row Row, field string) bool {
	c, ok := a.cell(row, field)
	if !ok {
		return false
	}
	b, _ := c.Value.(bool)
	return b
}

// Date reads a date cell in the service's YYYY-MM-DD wire format.
func (a *RowAccessor) Date(row Row, field string) (time.Time, bool) {
	s := a.String(row, field)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Set writes a value cell onto the row. Formula-derived fields are refused:
// the remote system owns them.
func (a *RowAccessor) Set(row *Row, field string, value interface{}) error {
	if a.formula[field] {
		return fmt.Errorf("field %q is formula-derived and must not be written", field)
	}
	id, ok := a.columns[field]
	if !ok {
		return fmt.Errorf("unknown field %q", field)
	}
	row.Cells = append(row.Cells, Cell{ColumnID: id, Value: value})
	return nil
}

// SetHyperlink writes a hyperlink cell onto the row.
func (a *RowAccessor) SetHyperlink(row *Row, field, display, url string) error {
	if a.formula[field] {
		return fmt.Errorf("field %q is formula-derived and must not be written", field)
	}
	id, ok := a.columns[field]
	if !ok {
		return fmt.Errorf("unknown field %q", field)
	}
	row.Cells = append(row.Cells, Cell{ColumnID: id, Value: display, Hyperlink: &Hyperlink{URL: url}})
	return nil
}
