package public

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pagecart/pagecart/internal/service"

	"github.com/gin-gonic/gin"
)

// PaymentWebhook 支付提供方回调入口。
// 响应使用 HTTP 状态码而非业务码：提供方依据非 2xx 状态决定是否重投。
func (h *Handler) PaymentWebhook(c *gin.Context) {
	log := requestLog(c)
	provider := strings.TrimSpace(c.Param("provider"))
	accountID, err := strconv.ParseUint(c.Param("account_id"), 10, 32)
	if err != nil || accountID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Warnw("webhook_body_read_failed", "provider", provider, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	log.Infow("webhook_received",
		"provider", provider,
		"payment_account_id", accountID,
		"client_ip", c.ClientIP(),
		"body_size", len(body),
	)

	headers := make(map[string]string)
	for key, values := range c.Request.Header {
		if len(values) == 0 {
			continue
		}
		headers[key] = values[0]
	}

	if err := h.WebhookIngestor.Ingest(c.Request.Context(), provider, uint(accountID), body, headers); err != nil {
		status := webhookHTTPStatus(err)
		log.Warnw("webhook_handle_failed",
			"provider", provider,
			"payment_account_id", accountID,
			"status", status,
			"error", err,
		)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func webhookHTTPStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrWebhookSignatureInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrWebhookProviderNotSupported):
		return http.StatusNotFound
	case errors.Is(err, service.ErrWebhookPayloadInvalid),
		errors.Is(err, service.ErrOrderStatusInvalid):
		return http.StatusBadRequest
	default:
		// 配置错误、网关验证失败、本地落账失败均返回 5xx 触发提供方重投
		return http.StatusInternalServerError
	}
}
