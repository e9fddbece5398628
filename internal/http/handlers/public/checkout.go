package public

import (
	"github.com/pagecart/pagecart/internal/http/response"
	"github.com/pagecart/pagecart/internal/service"

	"github.com/gin-gonic/gin"
)

// CheckoutItemRequest 结算行项目请求
type CheckoutItemRequest struct {
	CatalogItemID  uint                   `json:"catalog_item_id"`
	Title          string                 `json:"title" binding:"required"`
	Quantity       int                    `json:"quantity" binding:"required"`
	UnitPriceCents int64                  `json:"unit_price_cents"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// CreateCheckoutRequest 创建结算请求
type CreateCheckoutRequest struct {
	MerchantID    uint                  `json:"merchant_id" binding:"required"`
	SiteSlug      string                `json:"site_slug"`
	Currency      string                `json:"currency"`
	Items         []CheckoutItemRequest `json:"items" binding:"required"`
	SuccessURL    string                `json:"success_url" binding:"required"`
	CancelURL     string                `json:"cancel_url" binding:"required"`
	CaptureMethod string                `json:"capture_method"`
	Metadata      map[string]string     `json:"metadata"`
}

// CreateCheckout 创建订单并向支付提供方发起结算会话
func (h *Handler) CreateCheckout(c *gin.Context) {
	log := requestLog(c)
	var req CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	items := make([]service.CreateOrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.CreateOrderItemInput{
			CatalogItemID:  item.CatalogItemID,
			Title:          item.Title,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			Metadata:       item.Metadata,
		})
	}

	order, err := h.OrderLedger.CreateDraftOrder(service.CreateOrderInput{
		MerchantID: req.MerchantID,
		SiteSlug:   req.SiteSlug,
		Currency:   req.Currency,
		Items:      items,
	})
	if err != nil {
		respondCheckoutError(c, err)
		return
	}

	result, err := h.PaymentRouter.CreateCheckout(c.Request.Context(), order, service.CheckoutParams{
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
		CaptureMethod: req.CaptureMethod,
		Metadata:      req.Metadata,
	})
	if err != nil {
		log.Warnw("checkout_session_create_failed",
			"order_id", order.ID,
			"order_no", order.OrderNo,
			"error", err,
		)
		respondCheckoutError(c, err)
		return
	}

	response.Success(c, gin.H{
		"order_id":           order.ID,
		"order_no":           order.OrderNo,
		"currency":           order.Currency,
		"subtotal_cents":     order.SubtotalCents,
		"total_cents":        order.TotalCents,
		"platform_fee_cents": order.PlatformFeeCents,
		"status":             order.Status,
		"checkout_url":       result.URL,
		"provider_ref":       result.ProviderRef,
	})
}

// GetOrderByOrderNo 根据订单编号查询订单
func (h *Handler) GetOrderByOrderNo(c *gin.Context) {
	orderNo := c.Param("order_no")
	order, err := h.OrderRepo.GetByOrderNo(orderNo)
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
