// Package polling implements the degraded, higher-latency substitute for
// push notifications: a scheduled pass over the portfolio sheet that drives
// the same row-processing path the webhook handler uses.
package polling

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pmohub/wbs-sync-backend/internal/portfolio/domain"
	"github.com/pmohub/wbs-sync-backend/internal/remote"
)

// SheetAPI is the slice of the remote client the poller needs.
type SheetAPI interface {
	GetSheet(ctx context.Context, sheetID int64) (*remote.Sheet, error)
	GetRow(ctx context.Context, sheetID, rowID int64) (*remote.Row, error)
	GetColumns(ctx context.Context, sheetID int64) ([]remote.Column, error)
	ListWebhooks(ctx context.Context) ([]remote.Webhook, error)
	CreateWebhook(ctx context.Context, hook remote.Webhook) (*remote.Webhook, error)
}

// ProjectStore is the slice of the project repository the poller needs.
type ProjectStore interface {
	GetByCode(ctx context.Context, businessCode string) (*domain.Project, error)
	Create(ctx context.Context, businessCode, title, approvalStatus string, portfolioRowID int64) (*domain.Project, error)
	UpdateRow(ctx context.Context, id, title, approvalStatus string, portfolioRowID int64) (*domain.Project, error)
	TouchSynced(ctx context.Context, id string, at time.Time) error
}

// Provisioner runs the workspace provisioning state machine.
type Provisioner interface {
	Provision(ctx context.Context, project *domain.Project) (*domain.Project, error)
}

// Report summarizes one polling pass.
type Report struct {
	Processed   int      `json:"processed"`
	Created     int      `json:"created"`
	Provisioned int      `json:"provisioned"`
	Skipped     int      `json:"skipped"`
	Errors      []string `json:"errors,omitempty"`
}

// Poller walks the remote portfolio sheet: unknown rows synthesize a
// Project and run the same processing path provisioning uses; known rows are
// reprocessed only when the remote modification time is newer than the
// project's recorded sync time.
type Poller struct {
	sheets      SheetAPI
	projects    ProjectStore
	provisioner Provisioner
	colCache    *remote.ColumnCache

	portfolioSheetID int64
	now              func() time.Time
}

func NewPoller(sheets SheetAPI, projects ProjectStore, provisioner Provisioner, colCache *remote.ColumnCache, portfolioSheetID int64) *Poller {
	return &Poller{
		sheets:           sheets,
		projects:         projects,
		provisioner:      provisioner,
		colCache:         colCache,
		portfolioSheetID: portfolioSheetID,
		now:              time.Now,
	}
}

// Run executes one full pass. Per-row failures are collected into the
// report; only fetching the sheet itself is fatal.
func (p *Poller) Run(ctx context.Context) (*Report, error) {
	sheet, err := p.sheets.GetSheet(ctx, p.portfolioSheetID)
	if err != nil {
		return nil, fmt.Errorf("fetch portfolio sheet: %w", err)
	}
	accessor, err := remote.NewRowAccessor(sheet.Columns, remote.PortfolioFieldTitles, nil)
	if err != nil {
		return nil, fmt.Errorf("resolve portfolio columns: %w", err)
	}
	if p.colCache != nil {
		if err := p.colCache.Put(ctx, p.portfolioSheetID, accessor.ColumnMap()); err != nil {
			log.Printf("[polling] cache portfolio columns: %v", err)
		}
	}

	report := &Report{}
	for _, row := range sheet.Rows {
		outcome, err := p.processRow(ctx, accessor, row)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		report.Processed++
		switch outcome {
		case outcomeCreated:
			report.Created++
		case outcomeProvisioned:
			report.Provisioned++
		case outcomeSkipped:
			report.Skipped++
		}
	}

	log.Printf("[polling] pass complete: processed=%d created=%d provisioned=%d skipped=%d errors=%d",
		report.Processed, report.Created, report.Provisioned, report.Skipped, len(report.Errors))
	return report, nil
}

type outcome int

const (
	outcomeUpdated outcome = iota
	outcomeCreated
	outcomeProvisioned
	outcomeSkipped
)

// processRow handles one portfolio row. This is the shared path: the webhook
// handler dispatches here too (via ProcessRowID), so polling and push cannot
// drift apart.
func (p *Poller) processRow(ctx context.Context, accessor *remote.RowAccessor, row remote.Row) (outcome, error) {
	code := accessor.String(row, remote.FieldBusinessCode)
	if code == "" {
		return outcomeSkipped, nil
	}
	title := accessor.String(row, remote.FieldTitle)
	approval := accessor.String(row, remote.FieldApproval)

	created := false
	project, err := p.projects.GetByCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		project, err = p.projects.Create(ctx, code, title, approval, row.ID)
		if err != nil {
			return 0, fmt.Errorf("synthesize project %s: %w", code, err)
		}
		created = true
	} else if err != nil {
		return 0, fmt.Errorf("load project %s: %w", code, err)
	} else {
		// Timestamp gate: remote row older than our last pass means nothing
		// to do.
		if project.LastSyncedAt != nil && !row.ModifiedAt.IsZero() && !row.ModifiedAt.After(*project.LastSyncedAt) {
			return outcomeSkipped, nil
		}
		project, err = p.projects.UpdateRow(ctx, project.ID, title, approval, row.ID)
		if err != nil {
			return 0, fmt.Errorf("refresh project %s: %w", code, err)
		}
	}

	provisioned := false
	if project.ApprovalStatus == domain.ApprovalApproved && !project.Provisioned() {
		if _, err := p.provisioner.Provision(ctx, project); err != nil {
			return 0, fmt.Errorf("provision %s: %w", code, err)
		}
		provisioned = true
	}

	if err := p.projects.TouchSynced(ctx, project.ID, p.now()); err != nil {
		return 0, fmt.Errorf("touch %s: %w", code, err)
	}

	switch {
	case created:
		return outcomeCreated, nil
	case provisioned:
		return outcomeProvisioned, nil
	default:
		return outcomeUpdated, nil
	}
}

// ProcessRowID fetches a single row and runs it through the shared path.
// Used by the webhook handler, which only receives row ids. The portfolio
// column map is served from the Redis cache when warm.
func (p *Poller) ProcessRowID(ctx context.Context, rowID int64) error {
	accessor, err := p.portfolioAccessor(ctx)
	if err != nil {
		return err
	}

	row, err := p.sheets.GetRow(ctx, p.portfolioSheetID, rowID)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			// Row deleted out-of-band; nothing to process.
			log.Printf("[polling] row %d gone remotely, skipping", rowID)
			return nil
		}
		return fmt.Errorf("fetch row %d: %w", rowID, err)
	}

	_, err = p.processRow(ctx, accessor, *row)
	return err
}

func (p *Poller) portfolioAccessor(ctx context.Context) (*remote.RowAccessor, error) {
	if p.colCache != nil {
		if cols, err := p.colCache.Get(ctx, p.portfolioSheetID); err == nil && cols != nil {
			accessor := remote.NewRowAccessorFromMap(cols, nil)
			if accessor.Covers(remote.PortfolioFieldTitles) {
				return accessor, nil
			}
			// Cached map predates a schema change; drop it and refetch.
			if err := p.colCache.Invalidate(ctx, p.portfolioSheetID); err != nil {
				log.Printf("[polling] invalidate portfolio columns: %v", err)
			}
		}
	}

	columns, err := p.sheets.GetColumns(ctx, p.portfolioSheetID)
	if err != nil {
		return nil, fmt.Errorf("fetch portfolio columns: %w", err)
	}
	accessor, err := remote.NewRowAccessor(columns, remote.PortfolioFieldTitles, nil)
	if err != nil {
		return nil, fmt.Errorf("resolve portfolio columns: %w", err)
	}
	if p.colCache != nil {
		if err := p.colCache.Put(ctx, p.portfolioSheetID, accessor.ColumnMap()); err != nil {
			log.Printf("[polling] cache portfolio columns: %v", err)
		}
	}
	return accessor, nil
}

// EnsureWebhook registers the row-event webhook on the portfolio sheet if no
// enabled hook with the same callback exists. Best-effort at startup: when
// it fails, polling still covers the sheet.
func (p *Poller) EnsureWebhook(ctx context.Context, callbackURL string) error {
	hooks, err := p.sheets.ListWebhooks(ctx)
	if err != nil {
		return fmt.Errorf("list webhooks: %w", err)
	}
	for _, h := range hooks {
		if h.ScopeID == p.portfolioSheetID && h.CallbackURL == callbackURL {
			return nil
		}
	}

	_, err = p.sheets.CreateWebhook(ctx, remote.Webhook{
		Name:        "wbs-sync portfolio rows",
		Scope:       "sheet",
		ScopeID:     p.portfolioSheetID,
		Events:      []string{"*.*"},
		CallbackURL: callbackURL,
		Enabled:     true,
	})
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}
	log.Printf("[polling] registered portfolio webhook for %s", callbackURL)
	return nil
}
