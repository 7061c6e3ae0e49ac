package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/socratic-tutor-api/api/swagger"
	"github.com/noah-isme/socratic-tutor-api/internal/handler"
	"github.com/noah-isme/socratic-tutor-api/internal/llm"
	"github.com/noah-isme/socratic-tutor-api/internal/middleware"
	"github.com/noah-isme/socratic-tutor-api/internal/models"
	"github.com/noah-isme/socratic-tutor-api/internal/repository"
	"github.com/noah-isme/socratic-tutor-api/internal/service"
	"github.com/noah-isme/socratic-tutor-api/pkg/cache"
	"github.com/noah-isme/socratic-tutor-api/pkg/config"
	"github.com/noah-isme/socratic-tutor-api/pkg/database"
	"github.com/noah-isme/socratic-tutor-api/pkg/jobs"
	"github.com/noah-isme/socratic-tutor-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/socratic-tutor-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/socratic-tutor-api/pkg/middleware/requestid"
)

// @title Socratic Tutor API
// @version 1.0.0
// @description Tutoring session engine: prompt management, conversations, and provider gateway
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	metricsService := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Prompts.CacheTTL, logr, cfg.Prompts.CacheEnabled)

	promptRepo := repository.NewPromptRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	classRepo := repository.NewClassRepository(db)
	systemConfigRepo := repository.NewSystemConfigRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	auditService := service.NewAuditService(auditRepo, logr, jobs.QueueConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
	})
	auditService.Start(context.Background())
	defer auditService.Stop()

	settingsHolder := llm.NewSettingsHolder(llm.Settings{
		Provider:  cfg.LLM.Provider,
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		ModelName: cfg.LLM.ModelName,
	})
	providerFactory := llm.NewProviderFactory(settingsHolder, &http.Client{Timeout: cfg.LLM.Timeout})

	authService := service.NewAuthService(service.AuthConfig{Secret: cfg.JWT.Secret})
	promptService := service.NewPromptService(promptRepo, classRepo, auditService, cacheService, nil, logr)
	chatService := service.NewChatService(conversationRepo, messageRepo, classRepo, promptService, providerFactory, settingsHolder, metricsService, nil, logr)
	llmSettingsService := service.NewLLMSettingsService(systemConfigRepo, settingsHolder, auditService, cfg.LLM, nil, logr)

	if cfg.LLM.StartupSync {
		syncCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := llmSettingsService.SyncFromStore(syncCtx); err != nil {
			logr.Sugar().Warnw("failed to sync llm settings from store", "error", err)
		}
		cancel()
	}

	chatHandler := handler.NewChatHandler(chatService, logr)
	promptHandler := handler.NewPromptHandler(promptService)
	llmSettingsHandler := handler.NewLLMSettingsHandler(llmSettingsService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authService))

	conversations := api.Group("/conversations")
	{
		conversations.POST("", middleware.RequireRoles(models.RoleStudent), chatHandler.CreateConversation)
		conversations.GET("", middleware.RequireRoles(models.RoleStudent), chatHandler.ListConversations)
		conversations.GET("/:id/messages", chatHandler.GetMessages)
		conversations.POST("/:id/messages", middleware.RequireRoles(models.RoleStudent), chatHandler.SendMessage)
		conversations.POST("/:id/messages/stream", middleware.RequireRoles(models.RoleStudent), chatHandler.StreamMessage)
	}

	api.GET("/teacher/classes/:classID/students/:studentID/conversations",
		middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin),
		chatHandler.ListClassStudentConversations)

	prompts := api.Group("/prompts")
	{
		prompts.POST("", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), promptHandler.Create)
		prompts.POST("/:id/activate", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), promptHandler.Activate)
		prompts.GET("/history", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), promptHandler.History)
		prompts.GET("/effective", promptHandler.Effective)
	}

	admin := api.Group("/admin/settings/llm", middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("", llmSettingsHandler.Get)
		admin.PUT("", llmSettingsHandler.Update)
		admin.POST("/test", llmSettingsHandler.Test)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
