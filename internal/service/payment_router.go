package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pagecart/pagecart/internal/logger"
	"github.com/pagecart/pagecart/internal/models"
	"github.com/pagecart/pagecart/internal/payment"
	"github.com/pagecart/pagecart/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentRouter 支付路由服务：解析商户收款配置、计算平台服务费并分发到适配器。
type PaymentRouter struct {
	accountRepo repository.PaymentAccountRepository
	registry    *payment.Registry
}

// NewPaymentRouter 创建支付路由服务
func NewPaymentRouter(accountRepo repository.PaymentAccountRepository, registry *payment.Registry) *PaymentRouter {
	return &PaymentRouter{
		accountRepo: accountRepo,
		registry:    registry,
	}
}

func routerLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// CheckoutParams 创建结算的请求参数
type CheckoutParams struct {
	SuccessURL    string
	CancelURL     string
	CaptureMethod string
	Metadata      map[string]string
}

// GetMerchantPaymentConfig 解析商户唯一启用的支付账户，缺失视为配置错误。
func (s *PaymentRouter) GetMerchantPaymentConfig(merchantID uint) (*models.PaymentAccount, error) {
	account, err := s.accountRepo.GetActiveByMerchant(merchantID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrPaymentAccountMissing
	}
	return account, nil
}

// ComputePlatformFee 计算平台服务费：百分比部分向下取整，最低金额只做下限。
func (s *PaymentRouter) ComputePlatformFee(totalCents int64, account *models.PaymentAccount) int64 {
	if account == nil || !account.CollectPlatformFee || totalCents <= 0 {
		return 0
	}
	fee := decimal.NewFromInt(totalCents).
		Mul(account.PlatformFeePercent.Decimal).
		Floor().
		IntPart()
	if fee < account.PlatformFeeMinCents {
		fee = account.PlatformFeeMinCents
	}
	if fee < 0 {
		return 0
	}
	return fee
}

// CreateCheckout 为已落库订单创建提供方结算会话。
// 订单创建时冻结的服务费金额作为分账指令下发，后续配置变更不影响既有订单。
func (s *PaymentRouter) CreateCheckout(ctx context.Context, order *models.Order, params CheckoutParams) (*payment.CheckoutResult, error) {
	if order == nil {
		return nil, ErrOrderNotFound
	}
	log := routerLogger(
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"merchant_id", order.MerchantID,
	)

	account, err := s.GetMerchantPaymentConfig(order.MerchantID)
	if err != nil {
		log.Warnw("checkout_payment_account_unresolved", "error", err)
		return nil, err
	}
	adapter, ok := s.registry.Get(account.Provider)
	if !ok {
		log.Warnw("checkout_provider_not_registered", "provider", account.Provider)
		return nil, fmt.Errorf("%w: provider %s", ErrPaymentAccountConfigInvalid, account.Provider)
	}

	input := payment.CheckoutInput{
		OrderID:       order.ID,
		OrderNo:       order.OrderNo,
		Currency:      order.Currency,
		SuccessURL:    strings.TrimSpace(params.SuccessURL),
		CancelURL:     strings.TrimSpace(params.CancelURL),
		CaptureMethod: strings.TrimSpace(params.CaptureMethod),
		Metadata:      params.Metadata,
	}
	for _, item := range order.Items {
		input.Items = append(input.Items, payment.CheckoutItem{
			CatalogItemID:   item.CatalogItemID,
			Title:           item.Title,
			Quantity:        item.Quantity,
			UnitAmountCents: item.UnitPriceCents,
		})
	}
	// 仅支持分账的提供方携带分账指令
	if adapter.SupportsSplit() && order.PlatformFeeCents > 0 && strings.TrimSpace(account.AccountRef) != "" {
		input.PlatformFeeCents = order.PlatformFeeCents
		input.DestinationAccount = strings.TrimSpace(account.AccountRef)
	}

	result, err := adapter.CreateCheckout(ctx, account.ConfigJSON, input)
	if err != nil {
		log.Warnw("checkout_provider_create_failed",
			"provider", account.Provider,
			"error", err,
		)
		return nil, classifyCheckoutError(err)
	}
	log.Infow("checkout_session_created",
		"provider", account.Provider,
		"provider_ref", result.ProviderRef,
		"platform_fee_cents", input.PlatformFeeCents,
	)
	return result, nil
}

// classifyCheckoutError 把适配器错误翻译成服务层错误，处理器只认服务层哨兵。
func classifyCheckoutError(err error) error {
	switch {
	case errors.Is(err, payment.ErrConfigInvalid):
		return fmt.Errorf("%w: %v", ErrPaymentAccountConfigInvalid, err)
	case errors.Is(err, payment.ErrRequestFailed):
		return fmt.Errorf("%w: %v", ErrPaymentGatewayRequestFailed, err)
	case errors.Is(err, payment.ErrResponseInvalid):
		return fmt.Errorf("%w: %v", ErrPaymentGatewayResponseInvalid, err)
	default:
		return err
	}
}
