package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pmohub/wbs-sync-backend/internal/portfolio/domain"
	"github.com/pmohub/wbs-sync-backend/internal/portfolio/polling"
)

// ProjectLister is the read side of the project repository.
type ProjectLister interface {
	List(ctx context.Context) ([]domain.Project, error)
}

// Handler bundles the dependencies for portfolio HTTP endpoints.
type Handler struct {
	poller        *polling.Poller
	projects      ProjectLister
	webhookSecret string
}

func New(poller *polling.Poller, projects ProjectLister, webhookSecret string) *Handler {
	return &Handler{poller: poller, projects: projects, webhookSecret: webhookSecret}
}

// Register attaches portfolio routes.
func (h *Handler) Register(api *gin.RouterGroup) {
	api.GET("/projects", h.list)
	api.POST("/provisioning/check", h.provisioningCheck)
	api.POST("/webhooks/sheet", h.sheetWebhook)
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.projects.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "projects": items})
}

// provisioningCheck runs one polling pass immediately: the manual trigger for
// environments without webhooks or when an operator wants to resume after a
// partial provisioning failure.
func (h *Handler) provisioningCheck(c *gin.Context) {
	report, err := h.poller.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": len(report.Errors) == 0, "report": report})
}
