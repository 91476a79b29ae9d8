package shared

import (
	"strconv"
	"strings"

	"github.com/stamp-next/internal/http/response"
	"github.com/stamp-next/internal/service"

	"github.com/gin-gonic/gin"
)

// ActorContextKey 鉴权中间件写入的操作者
const ActorContextKey = "actor"

// SetActor 写入已认证的操作者
func SetActor(c *gin.Context, actor service.Actor) {
	c.Set(ActorContextKey, actor)
}

// GetActor 读取已认证的操作者，缺失时返回 401。
func GetActor(c *gin.Context) (service.Actor, bool) {
	value, exists := c.Get(ActorContextKey)
	if !exists {
		RespondError(c, response.CodeUnauthorized, "error.unauthorized", nil)
		return service.Actor{}, false
	}
	actor, ok := value.(service.Actor)
	if !ok || actor.ID == 0 {
		RespondError(c, response.CodeUnauthorized, "error.unauthorized", nil)
		return service.Actor{}, false
	}
	return actor, true
}

// ParseUintParam 解析路径中的正整数参数，非法时返回 400。
func ParseUintParam(c *gin.Context, name, invalidKey string) (uint, bool) {
	raw := strings.TrimSpace(c.Param(name))
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		RespondError(c, response.CodeBadRequest, invalidKey, nil)
		return 0, false
	}
	return uint(value), true
}

// QueryInt 读取整数查询参数，非法时使用默认值。
func QueryInt(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
