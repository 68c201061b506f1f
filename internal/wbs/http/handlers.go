package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	pdomain "github.com/pmohub/wbs-sync-backend/internal/portfolio/domain"
	"github.com/pmohub/wbs-sync-backend/internal/wbs/domain"
	"github.com/pmohub/wbs-sync-backend/internal/wbs/service"
)

// ProjectDirectory resolves the project a WBS request targets.
type ProjectDirectory interface {
	GetByCode(ctx context.Context, businessCode string) (*pdomain.Project, error)
}

// Handler bundles the dependencies for WBS HTTP endpoints.
type Handler struct {
	sync     *service.SyncService
	projects ProjectDirectory
}

func New(sync *service.SyncService, projects ProjectDirectory) *Handler {
	return &Handler{sync: sync, projects: projects}
}

// Register attaches the WBS routes under /projects/:code/wbs.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/:code/wbs", h.getTree)
	rg.POST("/:code/wbs/save", h.saveTree)
	rg.POST("/:code/wbs/sync", h.pullRemote)
	rg.DELETE("/:code/wbs/cache", h.clearCache)
}

func (h *Handler) project(c *gin.Context) (*pdomain.Project, bool) {
	code := c.Param("code")
	p, err := h.projects.GetByCode(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, pdomain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "project not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		}
		return nil, false
	}
	return p, true
}

func (h *Handler) getTree(c *gin.Context) {
	project, ok := h.project(c)
	if !ok {
		return
	}

	tree, err := h.sync.GetTree(c.Request.Context(), project.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "tree": toNodeViews(tree.Roots)})
}

type saveReq struct {
	Rows []itemPayload `json:"rows"`
}

func (h *Handler) saveTree(c *gin.Context) {
	project, ok := h.project(c)
	if !ok {
		return
	}

	var req saveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	items := make([]*domain.WbsItem, 0, len(req.Rows))
	for _, row := range req.Rows {
		items = append(items, row.toDomain())
	}

	res, err := h.sync.SaveTree(c.Request.Context(), project.ID, project.SheetID, actor(c), items)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":     len(res.Errors) == 0,
		"status": saveStatus(res),
		"result": res,
		"errors": errorViews(res.Errors),
	})
}

func (h *Handler) pullRemote(c *gin.Context) {
	project, ok := h.project(c)
	if !ok {
		return
	}
	if !project.Provisioned() {
		c.JSON(http.StatusConflict, gin.H{"ok": false, "error": "project has no workspace yet"})
		return
	}

	res, err := h.sync.PullRemote(c.Request.Context(), project.ID, project.SheetID, actor(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "result": res})
}

func (h *Handler) clearCache(c *gin.Context) {
	project, ok := h.project(c)
	if !ok {
		return
	}

	n, err := h.sync.ClearCache(c.Request.Context(), project.ID, actor(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "removed": n})
}

// saveStatus distinguishes "succeeded", "succeeded with partial errors" and
// "failed" for the UI.
func saveStatus(res *service.SaveResult) string {
	switch {
	case len(res.Errors) == 0:
		return "succeeded"
	case res.Updated+res.Created+res.Deleted > 0:
		return "partial"
	default:
		return "failed"
	}
}

func errorViews(errs []domain.ItemError) []gin.H {
	if len(errs) == 0 {
		return nil
	}
	out := make([]gin.H, 0, len(errs))
	for _, e := range errs {
		out = append(out, gin.H{
			"item_id": e.ItemID,
			"name":    e.Name,
			"message": e.Err.Error(),
		})
	}
	return out
}

func actor(c *gin.Context) string {
	if v := c.GetHeader("X-Actor"); v != "" {
		return v
	}
	return "anonymous"
}
