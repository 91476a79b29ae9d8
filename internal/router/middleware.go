package router

import (
	"strconv"
	"strings"
	"time"

	"github.com/stamp-next/internal/authz"
	"github.com/stamp-next/internal/config"
	"github.com/stamp-next/internal/constants"
	"github.com/stamp-next/internal/http/handlers/shared"
	"github.com/stamp-next/internal/http/response"
	"github.com/stamp-next/internal/i18n"
	"github.com/stamp-next/internal/logger"
	"github.com/stamp-next/internal/metrics"
	"github.com/stamp-next/internal/repository"
	"github.com/stamp-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDKey = "request_id"
const requestIDHeader = "X-Request-ID"

// CORSMiddleware 跨域中间件
func CORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowedMethods := cfg.AllowedMethods
	if len(allowedMethods) == 0 {
		allowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	allowedHeaders := cfg.AllowedHeaders
	if len(allowedHeaders) == 0 {
		allowedHeaders = []string{
			"Content-Type",
			"Content-Length",
			"Accept-Language",
			"Authorization",
			"X-Request-ID",
		}
	}
	methodsHeader := strings.Join(allowedMethods, ", ")
	headersHeader := strings.Join(allowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowedOrigin := resolveAllowedOrigin(origin, allowedOrigins, cfg.AllowCredentials)
		if allowedOrigin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			if allowedOrigin != "*" {
				c.Writer.Header().Add("Vary", "Origin")
			}
		}
		if cfg.AllowCredentials {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", headersHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", methodsHeader)
		if cfg.MaxAge > 0 {
			c.Writer.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func resolveAllowedOrigin(origin string, allowedOrigins []string, allowCredentials bool) string {
	if len(allowedOrigins) == 0 {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			if allowCredentials && origin != "" {
				return origin
			}
			return "*"
		}
	}
	if origin == "" {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

// RequestIDMiddleware 请求 ID 中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Next()
	}
}

// LoggerMiddleware 结构化请求日志中间件
func LoggerMiddleware(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.L()
	}
	sugar := log.Sugar()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := sugar.With(
			"request_id", getRequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
		if actor, ok := c.Get(shared.ActorContextKey); ok {
			if value, typeOK := actor.(service.Actor); typeOK {
				entry = entry.With("actor_type", value.Type, "actor_id", value.ID)
			}
		}
		if len(c.Errors) > 0 {
			entry.Errorw("request", "errors", c.Errors.String())
			return
		}
		entry.Infow("request")
	}
}

// MetricsMiddleware 按路由模板记录请求耗时
func MetricsMiddleware(collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		if collector == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		collector.ObserveHTTP(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

func getRequestID(c *gin.Context) string {
	value, ok := c.Get(requestIDKey)
	if !ok {
		return ""
	}
	if requestID, ok := value.(string); ok {
		return requestID
	}
	return ""
}

func abortUnauthorized(c *gin.Context, key string) {
	response.Unauthorized(c, i18n.T(i18n.ResolveLocale(c), key))
	c.Abort()
}

// ActorJWTAuthMiddleware 校验外部身份系统签发的令牌，expectedType 限定操作者类型
func ActorJWTAuthMiddleware(cfg config.AuthConfig, customerRepo repository.CustomerRepository, merchantRepo repository.MerchantRepository, expectedType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(cfg.Secret) == "" {
			logger.Errorw("actor_auth_secret_missing")
			abortUnauthorized(c, "error.unauthorized")
			return
		}
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "error.auth_header_missing")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") || strings.TrimSpace(parts[1]) == "" {
			abortUnauthorized(c, "error.auth_header_invalid")
			return
		}

		actor, err := service.ParseActorToken(cfg.Secret, cfg.Issuer, strings.TrimSpace(parts[1]))
		if err != nil || actor.Type != expectedType {
			abortUnauthorized(c, "error.actor_token_invalid")
			return
		}

		switch actor.Type {
		case constants.ActorTypeCustomer:
			if customerRepo == nil {
				abortUnauthorized(c, "error.actor_token_invalid")
				return
			}
			customer, err := customerRepo.GetByID(actor.ID)
			if err != nil {
				shared.RespondServiceError(c, service.ErrStorageUnavailable)
				c.Abort()
				return
			}
			if customer == nil {
				abortUnauthorized(c, "error.actor_token_invalid")
				return
			}
			if strings.ToLower(strings.TrimSpace(customer.Status)) != constants.CustomerStatusActive {
				shared.RespondServiceError(c, service.ErrCustomerInactive)
				c.Abort()
				return
			}
		case constants.ActorTypeStaff:
			if merchantRepo == nil {
				abortUnauthorized(c, "error.actor_token_invalid")
				return
			}
			merchant, err := merchantRepo.GetByID(actor.MerchantID)
			if err != nil {
				shared.RespondServiceError(c, service.ErrStorageUnavailable)
				c.Abort()
				return
			}
			if merchant == nil {
				abortUnauthorized(c, "error.actor_token_invalid")
				return
			}
		}

		shared.SetActor(c, actor)
		c.Next()
	}
}

// ActorRBACMiddleware 按路由模板执行 RBAC 鉴权
func ActorRBACMiddleware(authzService *authz.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authzService == nil {
			logger.Errorw("actor_rbac_service_unavailable")
			abortUnauthorized(c, "error.unauthorized")
			return
		}
		actor, ok := shared.GetActor(c)
		if !ok {
			c.Abort()
			return
		}

		resource := c.FullPath()
		if strings.TrimSpace(resource) == "" {
			resource = c.Request.URL.Path
		}

		allowed, err := authzService.EnforceActor(actor.Type, actor.ID, resource, c.Request.Method)
		if err != nil {
			logger.Errorw("actor_rbac_enforce_failed",
				"actor_type", actor.Type,
				"actor_id", actor.ID,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"error", err,
			)
			abortUnauthorized(c, "error.unauthorized")
			return
		}
		if !allowed {
			logger.Warnw("actor_rbac_permission_denied",
				"actor_type", actor.Type,
				"actor_id", actor.ID,
				"method", c.Request.Method,
				"resource", authz.NormalizeObject(resource),
			)
			response.Forbidden(c, i18n.T(i18n.ResolveLocale(c), "error.forbidden"))
			c.Abort()
			return
		}

		c.Next()
	}
}
