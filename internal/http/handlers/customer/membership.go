package customer

import (
	"strings"

	"github.com/stamp-next/internal/http/handlers/shared"
	"github.com/stamp-next/internal/http/response"
	"github.com/stamp-next/internal/service"

	"github.com/gin-gonic/gin"
)

// IssueTokenRequest 顾客生成二维码请求
type IssueTokenRequest struct {
	Purpose string `json:"purpose" binding:"required"`
}

// ListMemberships 当前顾客的全部会员卡
func (h *Handler) ListMemberships(c *gin.Context) {
	actor, ok := shared.GetActor(c)
	if !ok {
		return
	}
	states, err := h.ScanService.ListMembershipsFor(c.Request.Context(), actor)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, states)
}

// GetMembershipState 会员卡当前状态
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

// ListStamps 会员卡盖章记录
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

// IssueToken 为自己的会员卡生成盖章码或核销码
func (h *Handler) IssueToken(c *gin.Context) {
	actor, ok := shared.GetActor(c)
	if !ok {
		return
	}
	membershipID, ok := shared.ParseUintParam(c, "id", "error.membership_id_invalid")
	if !ok {
		return
	}
	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondServiceError(c, service.ErrTokenRequestInvalid)
		return
	}
	purpose := strings.ToLower(strings.TrimSpace(req.Purpose))
	issued, err := h.ScanService.IssueMembershipToken(c.Request.Context(), actor, membershipID, purpose)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, issued)
}
