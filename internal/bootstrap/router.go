package bootstrap

import (
	"database/sql"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	httpapi "github.com/pmohub/wbs-sync-backend/internal/api/http"
	"github.com/pmohub/wbs-sync-backend/internal/api/http/middleware"
	"github.com/pmohub/wbs-sync-backend/internal/audit"
	phttp "github.com/pmohub/wbs-sync-backend/internal/portfolio/http"
	"github.com/pmohub/wbs-sync-backend/internal/portfolio/polling"
	"github.com/pmohub/wbs-sync-backend/internal/portfolio/repository"
	"github.com/pmohub/wbs-sync-backend/internal/remote"
	whttp "github.com/pmohub/wbs-sync-backend/internal/wbs/http"
	wbsrepo "github.com/pmohub/wbs-sync-backend/internal/wbs/repository"
	"github.com/pmohub/wbs-sync-backend/internal/wbs/service"
)

type RouterDeps struct {
	ServiceName   string
	Version       string
	DB            *pgxpool.Pool
	SQLDB         *sql.DB
	Redis         *redis.Client
	Sheets        *remote.Client
	Poller        *polling.Poller
	WebhookSecret string
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.Default()
	r.Use(cors.Default())

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.DB, dep.Redis)
	healthHandler.RegisterRoutes(r)

	api := r.Group("/api/v1")
	api.Use(middleware.RequestIDMiddleware())

	projectRepo := repository.NewProjectRepository(dep.DB)
	itemRepo := wbsrepo.NewItemRepository(dep.SQLDB)
	auditWriter := audit.NewWriter(dep.DB)

	syncService := service.NewSyncService(itemRepo, dep.Sheets, auditWriter)

	projectsGroup := api.Group("/projects")
	wbsHandler := whttp.New(syncService, projectRepo)
	wbsHandler.Register(projectsGroup)

	portfolioHandler := phttp.New(dep.Poller, projectRepo, dep.WebhookSecret)
	portfolioHandler.Register(api)

	return r
}
