package admin

import (
	"strconv"
	"strings"

	"github.com/pagecart/pagecart/internal/http/response"
	"github.com/pagecart/pagecart/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListAttributions 获取推荐归属列表 (Admin)
func (h *Handler) ListAttributions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.AttributionListFilter{
		Page:         page,
		PageSize:     pageSize,
		ReferralCode: strings.TrimSpace(c.Query("referral_code")),
	}
	if merchantID, err := strconv.ParseUint(c.Query("merchant_id"), 10, 32); err == nil {
		filter.MerchantID = uint(merchantID)
	}
	if lockedParam := strings.TrimSpace(c.Query("locked")); lockedParam != "" {
		if locked, err := strconv.ParseBool(lockedParam); err == nil {
			filter.Locked = &locked
		}
	}

	attributions, total, err := h.AttributionRepo.ListAdmin(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "attribution fetch failed", err)
		return
	}

	pagination := response.BuildPagination(page, pageSize, total)
	response.SuccessWithPage(c, attributions, pagination)
}

// GetMerchantAttribution 获取商户推荐归属详情 (Admin)
func (h *Handler) GetMerchantAttribution(c *gin.Context) {
	merchantID, err := strconv.ParseUint(c.Param("merchant_id"), 10, 32)
	if err != nil || merchantID == 0 {
		respondError(c, response.CodeBadRequest, "bad request", nil)
		return
	}

	attribution, err := h.AttributionRepo.GetByMerchant(uint(merchantID))
	if err != nil {
		respondError(c, response.CodeInternal, "attribution fetch failed", err)
		return
	}
	if attribution == nil {
		respondError(c, response.CodeNotFound, "attribution not found", nil)
		return
	}

	response.Success(c, attribution)
}
