package merchant

import (
	"github.com/stamp-next/internal/constants"
	"github.com/stamp-next/internal/http/handlers/shared"
	"github.com/stamp-next/internal/http/response"
	"github.com/stamp-next/internal/service"

	"github.com/gin-gonic/gin"
)

// Scan 店员扫描顾客出示的盖章码或核销码
func (h *Handler) Scan(c *gin.Context) {
	actor, ok := shared.GetActor(c)
	if !ok {
		return
	}
	var payload service.ScanPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		shared.RespondServiceError(c, service.ErrScanPayloadInvalid)
		return
	}
	request, err := service.ParseScanPayload(payload, constants.ScanKindStamp, constants.ScanKindRedeem)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	result, err := h.ScanService.HandleScan(c.Request.Context(), actor, request)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, result)
}
