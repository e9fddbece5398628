package admin

import (
	"strconv"
	"strings"
	"time"

	"github.com/pagecart/pagecart/internal/http/response"
	"github.com/pagecart/pagecart/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListCommissions 获取佣金账目列表 (Admin)
func (h *Handler) ListCommissions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.CommissionListFilter{
		Page:         page,
		PageSize:     pageSize,
		ReferralCode: strings.TrimSpace(c.Query("referral_code")),
		Subject:      strings.TrimSpace(c.Query("subject")),
		Status:       strings.TrimSpace(c.Query("status")),
	}
	if from, err := time.Parse(time.RFC3339, c.Query("created_from")); err == nil {
		filter.CreatedFrom = &from
	}
	if to, err := time.Parse(time.RFC3339, c.Query("created_to")); err == nil {
		filter.CreatedTo = &to
	}

	entries, total, err := h.CommissionRepo.ListAdmin(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "commission fetch failed", err)
		return
	}

	pagination := response.BuildPagination(page, pageSize, total)
	response.SuccessWithPage(c, entries, pagination)
}
