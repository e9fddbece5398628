package admin

import (
	"strconv"
	"strings"

	"github.com/pagecart/pagecart/internal/constants"
	"github.com/pagecart/pagecart/internal/http/response"
	"github.com/pagecart/pagecart/internal/models"
	"github.com/pagecart/pagecart/internal/repository"

	"github.com/gin-gonic/gin"
)

// CreatePaymentAccountRequest 创建支付账户请求
type CreatePaymentAccountRequest struct {
	MerchantID          uint                   `json:"merchant_id" binding:"required"`
	Provider            string                 `json:"provider" binding:"required"`
	AccountRef          string                 `json:"account_ref"`
	Status              string                 `json:"status"`
	CollectPlatformFee  *bool                  `json:"collect_platform_fee"`
	PlatformFeePercent  *models.Rate           `json:"platform_fee_percent"`
	PlatformFeeMinCents int64                  `json:"platform_fee_min_cents"`
	ConfigJSON          map[string]interface{} `json:"config_json"`
}

// CreatePaymentAccount 创建支付账户
func (h *Handler) CreatePaymentAccount(c *gin.Context) {
	var req CreatePaymentAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if _, ok := h.PaymentRegistry.Get(provider); !ok {
		respondError(c, response.CodeBadRequest, "payment provider not supported", nil)
		return
	}

	account := &models.PaymentAccount{
		MerchantID:          req.MerchantID,
		Provider:            provider,
		AccountRef:          strings.TrimSpace(req.AccountRef),
		Status:              constants.PaymentAccountStatusActive,
		PlatformFeeMinCents: req.PlatformFeeMinCents,
		ConfigJSON:          models.JSON(req.ConfigJSON),
	}
	if req.Status != "" {
		account.Status = req.Status
	}
	if req.CollectPlatformFee != nil {
		account.CollectPlatformFee = *req.CollectPlatformFee
	}
	if req.PlatformFeePercent != nil {
		account.PlatformFeePercent = *req.PlatformFeePercent
	}

	if err := h.PaymentAccountRepo.Create(account); err != nil {
		respondError(c, response.CodeInternal, "payment account create failed", err)
		return
	}

	response.Success(c, account)
}

// UpdatePaymentAccountRequest 更新支付账户请求
type UpdatePaymentAccountRequest struct {
	Provider            string                 `json:"provider"`
	AccountRef          *string                `json:"account_ref"`
	Status              string                 `json:"status"`
	CollectPlatformFee  *bool                  `json:"collect_platform_fee"`
	PlatformFeePercent  *models.Rate           `json:"platform_fee_percent"`
	PlatformFeeMinCents *int64                 `json:"platform_fee_min_cents"`
	ConfigJSON          map[string]interface{} `json:"config_json"`
}

// UpdatePaymentAccount 更新支付账户
func (h *Handler) UpdatePaymentAccount(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "bad request", nil)
		return
	}

	var req UpdatePaymentAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	account, err := h.PaymentAccountRepo.GetByID(uint(id))
	if err != nil {
		respondError(c, response.CodeInternal, "payment account fetch failed", err)
		return
	}
	if account == nil {
		respondError(c, response.CodeNotFound, "payment account not found", nil)
		return
	}

	if req.Provider != "" {
		provider := strings.ToLower(strings.TrimSpace(req.Provider))
		if _, ok := h.PaymentRegistry.Get(provider); !ok {
			respondError(c, response.CodeBadRequest, "payment provider not supported", nil)
			return
		}
		account.Provider = provider
	}
	if req.AccountRef != nil {
		account.AccountRef = strings.TrimSpace(*req.AccountRef)
	}
	if req.Status != "" {
		account.Status = req.Status
	}
	if req.CollectPlatformFee != nil {
		account.CollectPlatformFee = *req.CollectPlatformFee
	}
	if req.PlatformFeePercent != nil {
		account.PlatformFeePercent = *req.PlatformFeePercent
	}
	if req.PlatformFeeMinCents != nil {
		account.PlatformFeeMinCents = *req.PlatformFeeMinCents
	}
	if req.ConfigJSON != nil {
		account.ConfigJSON = models.JSON(req.ConfigJSON)
	}

	if err := h.PaymentAccountRepo.Update(account); err != nil {
		respondError(c, response.CodeInternal, "payment account update failed", err)
		return
	}

	response.Success(c, account)
}

// DeletePaymentAccount 删除支付账户
func (h *Handler) DeletePaymentAccount(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "bad request", nil)
		return
	}

	if err := h.PaymentAccountRepo.Delete(uint(id)); err != nil {
		respondError(c, response.CodeInternal, "payment account delete failed", err)
		return
	}

	response.Success(c, gin.H{"deleted": true})
}

// GetPaymentAccount 获取支付账户详情
func (h *Handler) GetPaymentAccount(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "bad request", nil)
		return
	}

	account, err := h.PaymentAccountRepo.GetByID(uint(id))
	if err != nil {
		respondError(c, response.CodeInternal, "payment account fetch failed", err)
		return
	}
	if account == nil {
		respondError(c, response.CodeNotFound, "payment account not found", nil)
		return
	}

	response.Success(c, account)
}

// GetPaymentAccounts 获取支付账户列表
func (h *Handler) GetPaymentAccounts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.PaymentAccountListFilter{
		Page:     page,
		PageSize: pageSize,
		Provider: strings.TrimSpace(c.Query("provider")),
		Status:   strings.TrimSpace(c.Query("status")),
	}
	if merchantID, err := strconv.ParseUint(c.Query("merchant_id"), 10, 32); err == nil {
		filter.MerchantID = uint(merchantID)
	}

	accounts, total, err := h.PaymentAccountRepo.ListAdmin(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "payment account fetch failed", err)
		return
	}

	pagination := response.BuildPagination(page, pageSize, total)
	response.SuccessWithPage(c, accounts, pagination)
}
