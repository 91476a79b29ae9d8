package merchant

import (
	"strings"
	"time"

	"github.com/stamp-next/internal/constants"
	"github.com/stamp-next/internal/http/handlers/shared"
	"github.com/stamp-next/internal/http/response"
	"github.com/stamp-next/internal/service"

	"github.com/gin-gonic/gin"
)

// IssueTokenRequest 店员生成二维码请求
// join 需要 program_id，stamp 需要 membership_id；ttl_seconds 为 0 时使用默认有效期
type IssueTokenRequest struct {
	Purpose      string `json:"purpose" binding:"required"`
	ProgramID    uint   `json:"program_id"`
	MembershipID uint   `json:"membership_id"`
	TTLSeconds   int    `json:"ttl_seconds"`
}

// IssueToken 生成入会码或盖章码
func (h *Handler) IssueToken(c *gin.Context) {
	actor, ok := shared.GetActor(c)
	if !ok {
		return
	}
	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TTLSeconds < 0 {
		shared.RespondServiceError(c, service.ErrTokenRequestInvalid)
		return
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second

	var (
		issued *service.IssuedToken
		err    error
	)
	switch strings.ToLower(strings.TrimSpace(req.Purpose)) {
	case constants.TokenPurposeJoin:
		if req.ProgramID == 0 {
			shared.RespondServiceError(c, service.ErrTokenRequestInvalid)
			return
		}
		issued, err = h.ScanService.IssueJoinToken(c.Request.Context(), actor, req.ProgramID, ttl)
	case constants.TokenPurposeStamp:
		if req.MembershipID == 0 {
			shared.RespondServiceError(c, service.ErrTokenRequestInvalid)
			return
		}
		issued, err = h.ScanService.IssueStampToken(c.Request.Context(), actor, req.MembershipID, ttl)
	default:
		shared.RespondServiceError(c, service.ErrTokenRequestInvalid)
		return
	}
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, issued)
}
