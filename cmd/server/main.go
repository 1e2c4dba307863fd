// Package main runs the CRM HTTP server with WebSocket notifications and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-crm/backend/config"
	"github.com/aura-crm/backend/internal/associations"
	"github.com/aura-crm/backend/internal/auth"
	"github.com/aura-crm/backend/internal/campaigns"
	"github.com/aura-crm/backend/internal/companies"
	"github.com/aura-crm/backend/internal/middleware"
	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/internal/realtime"
	"github.com/aura-crm/backend/internal/repair"
	"github.com/aura-crm/backend/internal/tags"
	"github.com/aura-crm/backend/internal/users"
	"github.com/aura-crm/backend/internal/visibility"
	"github.com/aura-crm/backend/internal/worker"
	"github.com/aura-crm/backend/pkg/database"
	"github.com/aura-crm/backend/pkg/queue"
	"github.com/aura-crm/backend/pkg/redis"
	"github.com/aura-crm/backend/pkg/response"
	"github.com/aura-crm/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Reports are optional; without S3 the summary stays in the job status only.
	var (
		reportStore  worker.ReportStore
		reportLinker repair.ReportLinker
	)
	if cfg.AWS.Region != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ReportsBucket:        cfg.AWS.ReportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			reportStore, reportLinker = s3Client, s3Client
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Repositories
	userRepo := users.NewRepository(pool)
	companyRepo := companies.NewRepository(pool)
	campaignRepo := campaigns.NewRepository(pool)
	assocRepo := associations.NewRepository(pool)

	// Services
	assocSvc := associations.NewService(assocRepo, userRepo, companyRepo, hub, logger)
	companySvc := companies.NewService(companyRepo, hub, logger)
	campaignSvc := campaigns.NewService(campaignRepo, logger)
	tagRegistry := tags.NewRegistry(companyRepo, campaignRepo, hub, logger)
	resolver := visibility.NewResolver(campaignRepo, companyRepo, assocSvc)
	repairSvc := repair.NewService(assocRepo, companyRepo,
		repair.NewRedisLocker(rdb.Client, cfg.Repair.Timeout+time.Minute, logger),
		hub, repair.OptionsFrom(cfg.Repair), logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Handlers
	authHandler := auth.NewHandler(userRepo, jwtService, logger)
	userHandler := users.NewHandler(userRepo, assocRepo, logger)
	companyHandler := companies.NewHandler(companySvc, assocSvc, logger)
	campaignHandler := campaigns.NewHandler(campaignSvc, resolver, logger)
	assocHandler := associations.NewHandler(assocSvc, logger)
	tagHandler := tags.NewHandler(tagRegistry, logger)
	visibilityHandler := visibility.NewHandler(resolver, logger)
	repairHandler := repair.NewHandler(repairSvc, jobQueue, reportLinker, cfg.SyncRepairTimeout(), logger)

	companyOf := func(ctx context.Context, actor models.Actor) (*uuid.UUID, error) {
		co, err := assocSvc.GetCompanyForUser(ctx, actor.UserID)
		if err != nil || co == nil {
			return nil, err
		}
		return &co.ID, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins()))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := rdb.Healthy(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", middleware.RateLimitLogin(rdb.Client, cfg.Server.LoginRateLimit, logger), authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		staff := middleware.RequireStaff()
		admin := middleware.RequireRole(models.RoleAdmin)

		// Users
		api.GET("/me", userHandler.Me)
		api.GET("/me/campaigns", visibilityHandler.MyCampaigns)
		api.GET("/users", admin, userHandler.List)
		api.GET("/users/:id", userHandler.Get)
		api.GET("/users/:id/company", assocHandler.GetCompanyForUser)
		api.PATCH("/users/:id/role", admin, userHandler.UpdateRole)

		// Companies
		api.GET("/companies", staff, companyHandler.List)
		api.POST("/companies", staff, companyHandler.Create)
		api.GET("/companies/:id", companyHandler.Get)
		api.PATCH("/companies/:id", staff, companyHandler.Update)
		api.DELETE("/companies/:id", admin, companyHandler.Delete)
		api.GET("/companies/:id/users", staff, assocHandler.ListUsers)
		api.PUT("/companies/:id/users/:userId", staff, assocHandler.Set)
		api.DELETE("/companies/:id/users/:userId", staff, assocHandler.Remove)
		api.GET("/companies/:id/tags", staff, tagHandler.Get(tags.KindCompany))
		api.PUT("/companies/:id/tags", staff, tagHandler.Set(tags.KindCompany))
		api.GET("/companies/:id/campaigns", visibilityHandler.CompanyCampaigns)

		// Campaigns
		api.GET("/campaigns", staff, campaignHandler.List)
		api.POST("/campaigns/sync", admin, campaignHandler.Sync)
		api.GET("/campaigns/:id", campaignHandler.Get)
		api.GET("/campaigns/:id/tags", staff, tagHandler.Get(tags.KindCampaign))
		api.PUT("/campaigns/:id/tags", staff, tagHandler.Set(tags.KindCampaign))
		api.GET("/campaigns/:id/companies", staff, visibilityHandler.CampaignCompanies)

		// Tags
		api.GET("/tags", staff, tagHandler.List)

		// Admin: orphans and association repair
		adminGroup := api.Group("/admin")
		adminGroup.GET("/users/orphans", staff, userHandler.Orphans)
		adminGroup.POST("/associations/repair", admin, repairHandler.Run)
		adminGroup.POST("/associations/repair/jobs", admin, repairHandler.Enqueue)
		adminGroup.GET("/associations/repair/jobs/:id", admin, repairHandler.JobStatus)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtService.Actor, companyOf))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// In-process repair worker, for single-binary deployments.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Repair.InProcessWorker {
		processor := worker.NewRepairProcessor(repairSvc, reportStore, jobQueue, cfg.Repair.Timeout, logger)
		go processor.Run(workerCtx)
		logger.Info("repair worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
