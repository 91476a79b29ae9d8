package merchant

import (
	"strings"

	"github.com/stamp-next/internal/http/handlers/shared"
	"github.com/stamp-next/internal/http/response"
	"github.com/stamp-next/internal/service"

	"github.com/gin-gonic/gin"
)

// RedeemRequest 手工核销请求（顾客口述或出示兑换码）
type RedeemRequest struct {
	Code string `json:"code" binding:"required"`
}

// GetMembershipState 本商户会员卡状态
func (h *Handler) GetMembershipState(c *gin.Context) {
	actor, ok := shared.GetActor(c)
	if !ok {
		return
	}
	membershipID, ok := shared.ParseUintParam(c, "id", "error.membership_id_invalid")
	if !ok {
		return
	}
	state, err := h.ScanService.GetMembershipStateFor(c.Request.Context(), actor, membershipID)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, state)
}

// ListStamps 本商户会员卡盖章记录
func (h *Handler) ListStamps(c *gin.Context) {
	actor, ok := shared.GetActor(c)
	if !ok {
		return
	}
	membershipID, ok := shared.ParseUintParam(c, "id", "error.membership_id_invalid")
	if !ok {
		return
	}
	page, pageSize := shared.PaginationFromQuery(c)
	events, total, err := h.ScanService.ListStampsFor(c.Request.Context(), actor, membershipID, page, pageSize)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, events, shared.BuildPagination(page, pageSize, total))
}

// Redeem 按兑换码手工核销
func (h *Handler) Redeem(c *gin.Context) {
	actor, ok := shared.GetActor(c)
	if !ok {
		return
	}
	membershipID, ok := shared.ParseUintParam(c, "id", "error.membership_id_invalid")
	if !ok {
		return
	}
	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		shared.RespondServiceError(c, service.ErrCodeMismatch)
		return
	}
	state, err := h.ScanService.ManualRedeem(c.Request.Context(), actor, membershipID, req.Code)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, state)
}

// ListRedemptions 会员卡核销记录
func (h *Handler) ListRedemptions(c *gin.Context) {
	actor, ok := shared.GetActor(c)
	if !ok {
		return
	}
	membershipID, ok := shared.ParseUintParam(c, "id", "error.membership_id_invalid")
	if !ok {
		return
	}
	page, pageSize := shared.PaginationFromQuery(c)
	rows, total, err := h.ScanService.ListRedemptionsFor(c.Request.Context(), actor, membershipID, page, pageSize)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, rows, shared.BuildPagination(page, pageSize, total))
}
