package admin

import (
	"strconv"
	"strings"
	"time"

	"github.com/pagecart/pagecart/internal/http/response"
	"github.com/pagecart/pagecart/internal/repository"

	"github.com/gin-gonic/gin"
)

// AdminListOrders 获取订单列表 (Admin)
func (h *Handler) AdminListOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.OrderListFilter{
		Page:     page,
		PageSize: pageSize,
		SiteSlug: strings.TrimSpace(c.Query("site_slug")),
		Status:   strings.TrimSpace(c.Query("status")),
		OrderNo:  strings.TrimSpace(c.Query("order_no")),
		Provider: strings.TrimSpace(c.Query("provider")),
	}
	if merchantID, err := strconv.ParseUint(c.Query("merchant_id"), 10, 32); err == nil {
		filter.MerchantID = uint(merchantID)
	}
	if from, err := time.Parse(time.RFC3339, c.Query("created_from")); err == nil {
		filter.CreatedFrom = &from
	}
	if to, err := time.Parse(time.RFC3339, c.Query("created_to")); err == nil {
		filter.CreatedTo = &to
	}

	orders, total, err := h.OrderRepo.ListAdmin(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "order fetch failed", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, orders, pagination)
}

// AdminGetOrder 获取订单详情 (Admin)
func (h *Handler) AdminGetOrder(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "bad request", nil)
		return
	}

	order, err := h.OrderRepo.GetByID(uint(id))
	if err != nil {
		respondError(c, response.CodeInternal, "order fetch failed", err)
		return
	}
	if order == nil {
		respondError(c, response.CodeNotFound, "order not found", nil)
		return
	}

	response.Success(c, order)
}

// AdminListOrderPayments 获取订单支付流水 (Admin)
func (h *Handler) AdminListOrderPayments(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "bad request", nil)
		return
	}

	records, err := h.PaymentRecordRepo.ListByOrderID(uint(id))
	if err != nil {
		respondError(c, response.CodeInternal, "payment record fetch failed", err)
		return
	}

	response.Success(c, records)
}
