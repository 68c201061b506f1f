// Package provisioning creates the remote workspace (folder + cloned
// template sheets) for a newly approved project.
package provisioning

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/pmohub/wbs-sync-backend/internal/portfolio/domain"
	"github.com/pmohub/wbs-sync-backend/internal/remote"
)

// Step names the workflow states, in order. Failed(step) is reachable from
// any of them.
type Step string

const (
	StepFolderCreated  Step = "folder_created"
	StepTemplateCopied Step = "template_copied"
	StepHeaderPatched  Step = "header_patched"
	StepLinksWritten   Step = "links_written"
	StepComplete       Step = "complete"
)

// StepError surfaces a provisioning failure with the step name attached, so
// an operator can resume manually. Remote side effects of earlier steps are
// not rolled back.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("provisioning step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// SheetAPI is the slice of the remote client provisioning needs.
type SheetAPI interface {
	GetFolder(ctx context.Context, folderID int64) (*remote.Folder, error)
	CreateFolder(ctx context.Context, name string, parentID int64) (*remote.Folder, error)
	CopySheet(ctx context.Context, sheetID int64, newName string, destFolderID int64) (*remote.ObjectRef, error)
	CopyReport(ctx context.Context, reportID int64, newName string, destFolderID int64) (*remote.ObjectRef, error)
	CopyDashboard(ctx context.Context, dashboardID int64, newName string, destFolderID int64) (*remote.ObjectRef, error)
	GetSheet(ctx context.Context, sheetID int64) (*remote.Sheet, error)
	UpdateRows(ctx context.Context, sheetID int64, rows []remote.Row) ([]remote.Row, error)
	GetColumns(ctx context.Context, sheetID int64) ([]remote.Column, error)
}

// ProjectStore is the slice of the project repository provisioning needs.
type ProjectStore interface {
	SetWorkspace(ctx context.Context, id string, folderID, sheetID int64, remoteURL, internalURL string) (*domain.Project, error)
}

// AuditWriter records completed provisionings.
type AuditWriter interface {
	Record(ctx context.Context, actor, action, target string, payload interface{})
}

// Config carries the fixed remote locations the workflow operates between.
type Config struct {
	TemplateFolderID int64
	ParentFolderID   int64
	PortfolioSheetID int64
	AppBaseURL       string
	// MainSheetName selects which template sheet becomes the project's WBS
	// sheet (matched by substring).
	MainSheetName string
}

// Workflow provisions one workspace per approved project:
// Pending → FolderCreated → TemplateCopied → HeaderPatched → LinksWritten →
// Complete.
type Workflow struct {
	sheets   SheetAPI
	projects ProjectStore
	colCache *remote.ColumnCache
	audit    AuditWriter
	cfg      Config
}

func NewWorkflow(sheets SheetAPI, projects ProjectStore, colCache *remote.ColumnCache, audit AuditWriter, cfg Config) *Workflow {
	if cfg.MainSheetName == "" {
		cfg.MainSheetName = "WBS"
	}
	return &Workflow{sheets: sheets, projects: projects, colCache: colCache, audit: audit, cfg: cfg}
}

// FolderName derives the deterministic workspace folder name for a business
// code. Deterministic naming doubles as the duplicate-prevention check.
func FolderName(businessCode string) string {
	return fmt.Sprintf("WBS (#%s)", businessCode)
}

// Provision runs the state machine for one project. Non-approved or
// already-provisioned projects are no-ops: the trigger is idempotent and a
// repeat invocation performs zero remote calls.
func (w *Workflow) Provision(ctx context.Context, project *domain.Project) (*domain.Project, error) {
	if project.ApprovalStatus != domain.ApprovalApproved || project.Provisioned() {
		return project, nil
	}

	// Step 1: create the workspace folder, reusing one left behind by an
	// earlier partial failure.
	folder, err := w.ensureFolder(ctx, project.BusinessCode)
	if err != nil {
		return nil, &StepError{Step: StepFolderCreated, Err: err}
	}

	// Step 2: clone the template contents into it.
	mainSheet, err := w.copyTemplate(ctx, project.BusinessCode, folder.ID)
	if err != nil {
		return nil, &StepError{Step: StepTemplateCopied, Err: err}
	}

	// Step 3: rewrite the copied sheet's header row with the project code.
	sheet, err := w.patchHeader(ctx, mainSheet.ID, project.BusinessCode)
	if err != nil {
		return nil, &StepError{Step: StepHeaderPatched, Err: err}
	}

	// Step 4: write links back into the portfolio row.
	internalURL := fmt.Sprintf("%s/projects/%s/wbs", strings.TrimRight(w.cfg.AppBaseURL, "/"), project.BusinessCode)
	if err := w.writeLinks(ctx, project, sheet, internalURL); err != nil {
		return nil, &StepError{Step: StepLinksWritten, Err: err}
	}

	// Step 5: persist the workspace onto the project record.
	updated, err := w.projects.SetWorkspace(ctx, project.ID, folder.ID, sheet.ID, sheet.Permalink, internalURL)
	if err != nil {
		return nil, &StepError{Step: StepComplete, Err: err}
	}

	w.audit.Record(ctx, "system", "project.provisioned", project.BusinessCode, map[string]interface{}{
		"folder_id": folder.ID,
		"sheet_id":  sheet.ID,
	})
	log.Printf("[provisioning] workspace ready for %s: folder=%d sheet=%d", project.BusinessCode, folder.ID, sheet.ID)
	return updated, nil
}

func (w *Workflow) ensureFolder(ctx context.Context, businessCode string) (*remote.Folder, error) {
	name := FolderName(businessCode)

	parent, err := w.sheets.GetFolder(ctx, w.cfg.ParentFolderID)
	if err != nil {
		return nil, fmt.Errorf("list parent folder: %w", err)
	}
	for _, f := range parent.Folders {
		if f.Name == name {
			log.Printf("[provisioning] reusing existing folder %q (%d)", name, f.ID)
			return &remote.Folder{ID: f.ID, Name: f.Name, Permalink: f.Permalink}, nil
		}
	}

	folder, err := w.sheets.CreateFolder(ctx, name, w.cfg.ParentFolderID)
	if err != nil {
		return nil, fmt.Errorf("create folder %q: %w", name, err)
	}
	return folder, nil
}

// copyTemplate clones every sheet from the template folder. Reports and
// dashboards are copied best-effort: a failure there is logged and does not
// abort the workflow.
func (w *Workflow) copyTemplate(ctx context.Context, businessCode string, destFolderID int64) (*remote.ObjectRef, error) {
	tpl, err := w.sheets.GetFolder(ctx, w.cfg.TemplateFolderID)
	if err != nil {
		return nil, fmt.Errorf("list template folder: %w", err)
	}
	if len(tpl.Sheets) == 0 {
		return nil, fmt.Errorf("template folder %d has no sheets", w.cfg.TemplateFolderID)
	}

	var mainSheet *remote.ObjectRef
	for _, src := range tpl.Sheets {
		newName := fmt.Sprintf("%s - %s", src.Name, businessCode)
		copied, err := w.sheets.CopySheet(ctx, src.ID, newName, destFolderID)
		if err != nil {
			return nil, fmt.Errorf("copy sheet %q: %w", src.Name, err)
		}
		if mainSheet == nil || strings.Contains(src.Name, w.cfg.MainSheetName) {
			mainSheet = copied
		}
	}

	for _, src := range tpl.Reports {
		if _, err := w.sheets.CopyReport(ctx, src.ID, fmt.Sprintf("%s - %s", src.Name, businessCode), destFolderID); err != nil {
			log.Printf("[provisioning] copy report %q failed (continuing): %v", src.Name, err)
		}
	}
	for _, src := range tpl.Dashboards {
		if _, err := w.sheets.CopyDashboard(ctx, src.ID, fmt.Sprintf("%s - %s", src.Name, businessCode), destFolderID); err != nil {
			log.Printf("[provisioning] copy dashboard %q failed (continuing): %v", src.Name, err)
		}
	}

	return mainSheet, nil
}

// patchHeader overwrites the first row's name cell with the business code.
// This is how the generic template becomes project-specific.
func (w *Workflow) patchHeader(ctx context.Context, sheetID int64, businessCode string) (*remote.Sheet, error) {
	sheet, err := w.sheets.GetSheet(ctx, sheetID)
	if err != nil {
		return nil, fmt.Errorf("fetch copied sheet: %w", err)
	}
	if len(sheet.Rows) == 0 {
		return nil, fmt.Errorf("copied sheet %d has no rows", sheetID)
	}

	accessor, err := remote.NewRowAccessor(sheet.Columns, remote.WbsFieldTitles, remote.WbsFormulaFields)
	if err != nil {
		return nil, fmt.Errorf("resolve columns: %w", err)
	}

	header := remote.Row{ID: sheet.Rows[0].ID}
	if err := accessor.Set(&header, remote.FieldName, businessCode); err != nil {
		return nil, err
	}
	if _, err := w.sheets.UpdateRows(ctx, sheetID, []remote.Row{header}); err != nil {
		return nil, fmt.Errorf("patch header row: %w", err)
	}
	return sheet, nil
}

// writeLinks puts a hyperlink to the new sheet and one to the internal
// breakdown view into the originating portfolio row. A write that fails
// through a cache-derived accessor invalidates the cached column map and is
// retried once with freshly resolved columns, since the usual cause is the
// portfolio sheet having been restructured behind the cache's TTL.
func (w *Workflow) writeLinks(ctx context.Context, project *domain.Project, sheet *remote.Sheet, internalURL string) error {
	if project.PortfolioRowID == 0 {
		return fmt.Errorf("project %s has no portfolio row", project.BusinessCode)
	}

	accessor, fromCache, err := w.portfolioAccessor(ctx)
	if err != nil {
		return err
	}
	err = w.pushLinks(ctx, accessor, project, sheet, internalURL)
	if err == nil || !fromCache {
		return err
	}

	log.Printf("[provisioning] link write with cached columns failed, refetching: %v", err)
	if ierr := w.colCache.Invalidate(ctx, w.cfg.PortfolioSheetID); ierr != nil {
		log.Printf("[provisioning] invalidate portfolio columns: %v", ierr)
	}
	accessor, _, err = w.portfolioAccessor(ctx)
	if err != nil {
		return err
	}
	return w.pushLinks(ctx, accessor, project, sheet, internalURL)
}

func (w *Workflow) pushLinks(ctx context.Context, accessor *remote.RowAccessor, project *domain.Project, sheet *remote.Sheet, internalURL string) error {
	row := remote.Row{ID: project.PortfolioRowID}
	if err := accessor.SetHyperlink(&row, remote.FieldWbsLink, sheet.Name, sheet.Permalink); err != nil {
		return err
	}
	if err := accessor.SetHyperlink(&row, remote.FieldAppLink, "Breakdown view", internalURL); err != nil {
		return err
	}
	if _, err := w.sheets.UpdateRows(ctx, w.cfg.PortfolioSheetID, []remote.Row{row}); err != nil {
		return fmt.Errorf("write portfolio links: %w", err)
	}
	return nil
}

// portfolioAccessor resolves the portfolio sheet's columns, going through the
// Redis column cache so link write-back does not refetch the sheet. The
// second return reports whether the accessor came from the cache.
func (w *Workflow) portfolioAccessor(ctx context.Context) (*remote.RowAccessor, bool, error) {
	if w.colCache != nil {
		if cols, err := w.colCache.Get(ctx, w.cfg.PortfolioSheetID); err == nil && cols != nil {
			accessor := remote.NewRowAccessorFromMap(cols, nil)
			if accessor.Covers(remote.PortfolioFieldTitles) {
				return accessor, true, nil
			}
			// Cached map predates a schema change.
			if err := w.colCache.Invalidate(ctx, w.cfg.PortfolioSheetID); err != nil {
				log.Printf("[provisioning] invalidate portfolio columns: %v", err)
			}
		}
	}

	columns, err := w.sheets.GetColumns(ctx, w.cfg.PortfolioSheetID)
	if err != nil {
		return nil, false, fmt.Errorf("fetch portfolio columns: %w", err)
	}
	accessor, err := remote.NewRowAccessor(columns, remote.PortfolioFieldTitles, nil)
	if err != nil {
		return nil, false, fmt.Errorf("resolve portfolio columns: %w", err)
	}
	if w.colCache != nil {
		if err := w.colCache.Put(ctx, w.cfg.PortfolioSheetID, accessor.ColumnMap()); err != nil {
			log.Printf("[provisioning] cache portfolio columns: %v", err)
		}
	}
	return accessor, false, nil
}
