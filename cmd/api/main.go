package main

import (
	"context"
	"log"

	"golang.org/x/time/rate"

	"github.com/pmohub/wbs-sync-backend/config"
	"github.com/pmohub/wbs-sync-backend/internal/audit"
	"github.com/pmohub/wbs-sync-backend/internal/bootstrap"
	"github.com/pmohub/wbs-sync-backend/internal/portfolio/polling"
	"github.com/pmohub/wbs-sync-backend/internal/portfolio/provisioning"
	"github.com/pmohub/wbs-sync-backend/internal/portfolio/repository"
	"github.com/pmohub/wbs-sync-backend/internal/remote"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	bootstrap.SetGinMode(cfg.App.Environment)

	ctx := context.Background()

	pool, err := bootstrap.OpenDB(ctx, bootstrap.DBOptions{
		DSN:      cfg.Database.DSN,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	sqlDB, err := bootstrap.OpenSQLDB(ctx, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer sqlDB.Close()

	rdb, err := bootstrap.OpenRedis(ctx, bootstrap.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Printf("[boot] redis unavailable, column cache disabled: %v", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.Sheet.RatePerSecond), cfg.Sheet.RatePerSecond)
	retryer := remote.NewRetryer(
		remote.RetryPolicy{MaxAttempts: cfg.Sheet.MaxRetries},
		remote.NewDedupeGuard(),
		limiter,
	)
	sheets := remote.NewClient(cfg.Sheet.BaseURL, cfg.Sheet.Token, retryer)

	colCache := remote.NewColumnCache(rdb)
	projectRepo := repository.NewProjectRepository(pool)
	auditWriter := audit.NewWriter(pool)

	workflow := provisioning.NewWorkflow(sheets, projectRepo, colCache, auditWriter, provisioning.Config{
		TemplateFolderID: cfg.Sheet.TemplateFolderID,
		ParentFolderID:   cfg.Sheet.ParentFolderID,
		PortfolioSheetID: cfg.Sheet.PortfolioSheetID,
		AppBaseURL:       cfg.App.BaseURL,
	})

	poller := polling.NewPoller(sheets, projectRepo, workflow, colCache, cfg.Sheet.PortfolioSheetID)

	if cfg.Sheet.WebhookCallback != "" {
		if err := poller.EnsureWebhook(ctx, cfg.Sheet.WebhookCallback); err != nil {
			log.Printf("[boot] webhook registration failed, polling will cover: %v", err)
		}
	}

	scheduler := polling.NewScheduler(poller)
	if err := scheduler.Start(cfg.App.PollCron); err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	defer scheduler.Stop()

	r := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName:   "wbs-sync-backend",
		Version:       cfg.App.Version,
		DB:            pool,
		SQLDB:         sqlDB,
		Redis:         rdb,
		Sheets:        sheets,
		Poller:        poller,
		WebhookSecret: cfg.Sheet.WebhookSecret,
	})

	log.Printf("[boot] listening on :%s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("server: %v", err)
	}
}
