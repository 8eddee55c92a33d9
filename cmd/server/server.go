package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/config"
	"github.com/3Eeeecho/gallery-access/internal/handlers"
	"github.com/3Eeeecho/gallery-access/internal/jobs"
	"github.com/3Eeeecho/gallery-access/internal/pkg/cache"
	"github.com/3Eeeecho/gallery-access/internal/pkg/logger"
	"github.com/3Eeeecho/gallery-access/internal/pkg/metrics"
	"github.com/3Eeeecho/gallery-access/internal/pkg/utils"
	"github.com/3Eeeecho/gallery-access/internal/repositories"
	"github.com/3Eeeecho/gallery-access/internal/router"
	"github.com/3Eeeecho/gallery-access/internal/services/access"
	"github.com/3Eeeecho/gallery-access/internal/services/audit"
	"github.com/3Eeeecho/gallery-access/internal/services/credential"
	"github.com/3Eeeecho/gallery-access/internal/services/guard"
	"github.com/3Eeeecho/gallery-access/internal/services/session"
	"github.com/3Eeeecho/gallery-access/internal/services/sharelink"
	"github.com/3Eeeecho/gallery-access/internal/setup"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	cfg         *config.Config
	router      *gin.Engine
	httpServer  *http.Server
	db          *gorm.DB
	redisClient *redis.Client
	scheduler   *jobs.Scheduler
}

// NewServer 负责构建所有依赖
func NewServer(cfg *config.Config) (*Server, error) {
	// 初始化数据库连接
	db, err := setup.InitDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 初始化 Redis 连接，未配置时为 nil
	redisClient, err := setup.InitRedis(context.Background(), &cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	// 初始化 Elasticsearch，未配置时为 nil
	esClient, err := setup.InitElasticsearchClient(&cfg.Elasticsearch)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Elasticsearch: %w", err)
	}

	// 初始化对象存储，未配置时为 nil
	storageService, err := setup.InitStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	metrics.MustRegister("gallery-access")

	//  初始化 Repositories
	var redisCache *cache.RedisCache
	if redisClient != nil {
		redisCache = cache.NewRedisCache(redisClient)
	}
	var rateLimitRepo repositories.RateLimitRepository
	switch cfg.RateLimit.Backend {
	case "redis":
		rateLimitRepo = repositories.NewRateLimitCacheRepository(redisCache)
	default:
		rateLimitRepo = repositories.NewRateLimitDBRepository(db)
	}
	galleryRepo := repositories.NewGalleryRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	linkRepo := repositories.NewShareLinkRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	tm := repositories.NewTransactionManager(db)

	//  初始化 Services
	auditOpts := []audit.Option{
		audit.WithSinks(audit.NewElasticsearchSink(esClient, cfg.Elasticsearch.Index)),
		audit.WithArchiver(audit.NewStorageArchiver(storageService, cfg.Audit.ArchiveBucket)),
	}
	if redisCache != nil {
		auditOpts = append(auditOpts, audit.WithSinks(audit.NewAlertSink(redisCache, cfg.Audit.AlertStream)))
	}
	auditService := audit.NewAuditService(auditRepo, auditOpts...)

	hasher := utils.NewTokenHasher(cfg.Security.TokenHashSecret)
	guardService := guard.NewGuardService(rateLimitRepo, auditService, cfg)
	credentialService := credential.NewCredentialService(galleryRepo, auditService, cfg)
	sessionService := session.NewSessionService(sessionRepo, hasher, cfg)
	linkService := sharelink.NewLinkService(linkRepo, tm, credentialService, sessionService, auditService, hasher, cfg)
	accessService := access.NewAccessService(guardService, credentialService, sessionService, linkService, auditService)

	//  初始化 Handlers
	h := router.Handlers{
		Access:    handlers.NewAccessHandler(accessService),
		Gallery:   handlers.NewGalleryHandler(credentialService, accessService),
		ShareLink: handlers.NewShareLinkHandler(accessService, linkService),
	}
	if storageService != nil {
		h.Media = handlers.NewMediaHandler(storageService, cfg)
	}

	// 后台清理任务在 Run 中启动
	scheduler := jobs.NewMaintenanceScheduler(cfg, sessionService, linkService, guardService, auditService)

	// 初始化 Gin 引擎和注册路由
	engine := router.InitRouter(h, sessionService, cfg)

	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		cfg:         cfg,
		router:      engine,
		httpServer:  httpServer,
		db:          db,
		redisClient: redisClient,
		scheduler:   scheduler,
	}, nil
}

// Run 启动服务器和清理任务，并处理优雅关机
func (s *Server) Run(ctx context.Context, stopChan chan os.Signal) {
	// 确保在应用关闭时，所有连接都被释放
	defer setup.CloseDatabase(s.db)
	defer setup.CloseRedis(s.redisClient)

	jobsCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	s.scheduler.Start(jobsCtx)

	// 启动 HTTP 服务器
	go func() {
		logger.Info("Server is running", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// 等待停止信号
	select {
	case <-stopChan:
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")

	// 优雅关机
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	stopJobs()
	s.scheduler.Wait()
	logger.Info("Server exited gracefully")
}
