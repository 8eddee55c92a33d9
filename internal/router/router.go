package router

import (
	"net/http"

	_ "github.com/3Eeeecho/gallery-access/docs"
	"github.com/3Eeeecho/gallery-access/internal/config"
	"github.com/3Eeeecho/gallery-access/internal/handlers"
	"github.com/3Eeeecho/gallery-access/internal/middlewares"
	"github.com/3Eeeecho/gallery-access/internal/pkg/logger"
	"github.com/3Eeeecho/gallery-access/internal/services/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// Handlers 路由需要的全部 handler，MediaHandler 为 nil 时不注册媒体接口
type Handlers struct {
	Access    *handlers.AccessHandler
	Gallery   *handlers.GalleryHandler
	ShareLink *handlers.ShareLinkHandler
	Media     *handlers.MediaHandler
}

func InitRouter(h Handlers, sessions session.SessionService, cfg *config.Config) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	router := gin.Default() // 使用默认的 Gin 引擎，包含 Logger 和 Recovery 中间件

	// 访客 IP 参与频率限制和封禁，只信任配置中的反向代理
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Warn("设置可信代理失败，将不信任任何代理", zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}

	// Health Check 路由
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/api/v1")
	{
		// 访客访问路由 (无需登录)
		accessGroup := v1.Group("/access")
		{
			accessGroup.POST("/password", h.Access.AuthenticateWithPassword)
			accessGroup.POST("/session/validate", h.Access.ValidateSession)
			accessGroup.POST("/session/rotate", h.Access.RotateSession)
			accessGroup.POST("/session/revoke", h.Access.RevokeSession)
			accessGroup.POST("/links/redeem", h.Access.RedeemShareLink)
		}

		// 访客会话保护的媒体路由
		if h.Media != nil {
			v1.GET("/galleries/:gallery_id/media/*object",
				middlewares.GallerySessionMiddleware(sessions), h.Media.GetMediaURL)
		}

		// 需要所有者认证的路由
		authenticated := v1.Group("/")
		authenticated.Use(middlewares.AuthMiddleware(cfg))
		{
			galleryGroup := authenticated.Group("/galleries")
			{
				galleryGroup.POST("", h.Gallery.RegisterGallery)
				galleryGroup.PUT("/:gallery_id/password", h.Gallery.SetPassword)
				galleryGroup.PUT("/:gallery_id/public", h.Gallery.MakePublic)
				galleryGroup.DELETE("/:gallery_id/sessions", h.Gallery.RevokeAllSessions)
				galleryGroup.GET("/:gallery_id/audit-events", h.Gallery.ListAuditEvents)
				galleryGroup.POST("/:gallery_id/links", h.ShareLink.CreateShareLink)
				galleryGroup.GET("/:gallery_id/links", h.ShareLink.ListShareLinks)
			}

			linkGroup := authenticated.Group("/links")
			{
				linkGroup.POST("/:link_id/deactivate", h.ShareLink.DeactivateShareLink)
				linkGroup.DELETE("/:link_id", h.ShareLink.DeleteShareLink)
			}

			authenticated.POST("/security-events", h.Access.ReportSecurityEvent)
		}
	}

	return router
}
