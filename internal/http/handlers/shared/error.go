package shared

import (
	"github.com/stamp-next/internal/http/response"
	"github.com/stamp-next/internal/i18n"
	"github.com/stamp-next/internal/logger"
	"github.com/stamp-next/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// reasonCodes 业务原因码到响应码的映射，未列出的原因视为服务不可用
var reasonCodes = map[string]int{
	"token_invalid":         response.CodeBadRequest,
	"token_expired":         response.CodeGone,
	"token_already_used":    response.CodeConflict,
	"out_of_range":          response.CodeForbidden,
	"too_frequent":          response.CodeTooManyRequests,
	"membership_not_found":  response.CodeNotFound,
	"program_inactive":      response.CodeUnprocessable,
	"no_pending_reward":     response.CodeUnprocessable,
	"voucher_expired":       response.CodeGone,
	"code_mismatch":         response.CodeUnprocessable,
	"duplicate_join":        response.CodeConflict,
	"concurrency_conflict":  response.CodeConflict,
	"scan_payload_invalid":  response.CodeBadRequest,
	"token_request_invalid": response.CodeBadRequest,
	"customer_inactive":     response.CodeForbidden,
	"actor_not_allowed":     response.CodeForbidden,
}

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// RespondError 返回国际化错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, key string, err error) {
	msg := i18n.T(i18n.ResolveLocale(c), key)
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", code,
			"message", msg,
			"error", err,
		)
	}
	response.Error(c, code, msg)
}

// StatusForReason 原因码对应的响应码
func StatusForReason(reason string) int {
	if code, ok := reasonCodes[reason]; ok {
		return code
	}
	return response.CodeUnavailable
}

// RespondServiceError 按业务错误返回响应码、国际化消息与原因码。
// 业务拒绝只记 info 日志，存储故障记 error 日志。
func RespondServiceError(c *gin.Context, err error) {
	reason := service.ReasonOf(err)
	code := StatusForReason(reason)
	msg := i18n.T(i18n.ResolveLocale(c), "error."+reason)
	if code == response.CodeUnavailable {
		RequestLog(c).Errorw("handler_service_error",
			"reason", reason,
			"path", c.FullPath(),
			"error", err,
		)
	} else {
		RequestLog(c).Infow("handler_service_rejected",
			"reason", reason,
			"path", c.FullPath(),
		)
	}
	response.ErrorWithReason(c, code, msg, reason)
}
