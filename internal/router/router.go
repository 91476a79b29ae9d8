package router

import (
	"strings"

	"github.com/stamp-next/internal/cache"
	"github.com/stamp-next/internal/config"
	"github.com/stamp-next/internal/constants"
	customerhandlers "github.com/stamp-next/internal/http/handlers/customer"
	merchanthandlers "github.com/stamp-next/internal/http/handlers/merchant"
	"github.com/stamp-next/internal/logger"
	"github.com/stamp-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按顾客/商户分组）
	customerHandler := customerhandlers.New(c)
	merchantHandler := merchanthandlers.New(c)
	redisClient := cache.Client()
	scanRule := RateLimitRule{
		Prefix:        cache.Prefix() + ":rate:scan",
		WindowSeconds: cfg.RateLimit.ScanWindowSeconds,
		MaxRequests:   cfg.RateLimit.ScanMaxRequests,
	}
	scanLimiter := RateLimitMiddleware(redisClient, scanRule, KeyByActorAndIP)

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(MetricsMiddleware(c.Metrics))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		// 顾客接口
		customer := apiV1.Group("")
		customer.Use(
			ActorJWTAuthMiddleware(cfg.Auth, c.CustomerRepo, c.MerchantRepo, constants.ActorTypeCustomer),
			ActorRBACMiddleware(c.AuthzService),
		)
		{
			customer.POST("/scans", scanLimiter, customerHandler.Scan)
			customer.GET("/memberships", customerHandler.ListMemberships)
			customer.GET("/memberships/:id/state", customerHandler.GetMembershipState)
			customer.GET("/memberships/:id/stamps", customerHandler.ListStamps)
			customer.POST("/memberships/:id/tokens", customerHandler.IssueToken)
		}

		// 商户店员接口
		merchant := apiV1.Group("/merchant")
		merchant.Use(
			ActorJWTAuthMiddleware(cfg.Auth, c.CustomerRepo, c.MerchantRepo, constants.ActorTypeStaff),
			ActorRBACMiddleware(c.AuthzService),
		)
		{
			merchant.POST("/tokens", merchantHandler.IssueToken)
			merchant.POST("/scans", scanLimiter, merchantHandler.Scan)
			merchant.GET("/memberships/:id/state", merchantHandler.GetMembershipState)
			merchant.GET("/memberships/:id/stamps", merchantHandler.ListStamps)
			merchant.POST("/memberships/:id/redeem", merchantHandler.Redeem)
			merchant.GET("/memberships/:id/redemptions", merchantHandler.ListRedemptions)
		}
	}

	if cfg.Metrics.Enabled && c.Metrics != nil {
		path := strings.TrimSpace(cfg.Metrics.Path)
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(c.Metrics.Handler()))
	}

	// 健康检查
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
