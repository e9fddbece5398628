package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pagecart/pagecart/internal/constants"
	"github.com/pagecart/pagecart/internal/logger"
	"github.com/pagecart/pagecart/internal/models"
	"github.com/pagecart/pagecart/internal/payment"
	"github.com/pagecart/pagecart/internal/repository"

	"go.uber.org/zap"
)

// WebhookIngestor 支付回调入口：先用账户配置校验签名，再把标准化事件
// 派发到订单账本的状态迁移。未知事件记录后确认，避免提供方无限重投。
type WebhookIngestor struct {
	registry    *payment.Registry
	accountRepo repository.PaymentAccountRepository
	orderRepo   repository.OrderRepository
	ledger      *OrderLedger
}

// NewWebhookIngestor 创建回调接收服务
func NewWebhookIngestor(
	registry *payment.Registry,
	accountRepo repository.PaymentAccountRepository,
	orderRepo repository.OrderRepository,
	ledger *OrderLedger,
) *WebhookIngestor {
	return &WebhookIngestor{
		registry:    registry,
		accountRepo: accountRepo,
		orderRepo:   orderRepo,
		ledger:      ledger,
	}
}

func webhookLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// Ingest 处理一次回调投递。返回 nil 表示事件可以向提供方确认，
// 返回错误时由上层按错误类型决定 HTTP 状态。
func (s *WebhookIngestor) Ingest(ctx context.Context, provider string, accountID uint, body []byte, headers map[string]string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	log := webhookLogger("provider", provider, "payment_account_id", accountID)

	adapter, ok := s.registry.Get(provider)
	if !ok {
		log.Warnw("webhook_provider_not_supported")
		return ErrWebhookProviderNotSupported
	}

	account, err := s.accountRepo.GetByID(accountID)
	if err != nil {
		log.Errorw("webhook_account_fetch_failed", "error", err)
		return err
	}
	if account == nil || !strings.EqualFold(account.Provider, provider) {
		log.Warnw("webhook_account_mismatch")
		return ErrWebhookProviderNotSupported
	}

	event, err := adapter.ParseWebhook(ctx, map[string]interface{}(account.ConfigJSON), body, headers, time.Now())
	if err != nil {
		return s.classifyParseError(log, err)
	}

	log = log.With("event_id", event.ID, "event_type", event.Type)

	if event.Type == constants.WebhookEventIgnored {
		log.Infow("webhook_event_ignored")
		return nil
	}

	order, err := s.resolveOrder(event)
	if err != nil {
		log.Errorw("webhook_order_resolve_failed", "error", err)
		return err
	}
	if order == nil {
		// 找不到订单的事件确认掉，留日志供人工排查
		log.Warnw("webhook_order_not_found", "order_id", event.OrderID, "order_no", event.OrderNo)
		return nil
	}

	log = log.With("order_id", order.ID, "order_no", order.OrderNo)

	providerPaymentID := event.ProviderPaymentID
	if providerPaymentID == "" {
		providerPaymentID = event.ID
	}

	switch event.Type {
	case constants.WebhookEventPaymentSucceeded:
		if _, err := s.ledger.MarkOrderPaid(order.ID, event.AmountCents, provider, providerPaymentID, models.JSON(event.Raw)); err != nil {
			log.Errorw("webhook_payment_apply_failed", "error", err)
			return err
		}
		log.Infow("webhook_payment_applied", "amount_cents", event.AmountCents)
		return nil
	case constants.WebhookEventPaymentFailed:
		if err := s.ledger.MarkOrderFailed(order.ID); err != nil {
			log.Errorw("webhook_failure_apply_failed", "error", err)
			return err
		}
		log.Infow("webhook_failure_applied")
		return nil
	case constants.WebhookEventRefundSucceeded:
		if err := s.ledger.MarkOrderRefunded(order.ID, event.AmountCents, provider, providerPaymentID, models.JSON(event.Raw)); err != nil {
			log.Errorw("webhook_refund_apply_failed", "error", err)
			return err
		}
		log.Infow("webhook_refund_applied", "amount_cents", event.AmountCents)
		return nil
	default:
		log.Warnw("webhook_event_type_unknown")
		return nil
	}
}

func (s *WebhookIngestor) resolveOrder(event *payment.WebhookEvent) (*models.Order, error) {
	if event.OrderID != 0 {
		order, err := s.orderRepo.GetByID(event.OrderID)
		if err != nil {
			return nil, err
		}
		if order != nil {
			return order, nil
		}
	}
	if event.OrderNo != "" {
		return s.orderRepo.GetByOrderNo(event.OrderNo)
	}
	return nil, nil
}

func (s *WebhookIngestor) classifyParseError(log *zap.SugaredLogger, err error) error {
	switch {
	case errors.Is(err, payment.ErrSignatureInvalid):
		log.Warnw("webhook_signature_invalid", "error", err)
		return ErrWebhookSignatureInvalid
	case errors.Is(err, payment.ErrConfigInvalid):
		log.Errorw("webhook_account_config_invalid", "error", err)
		return ErrPaymentAccountConfigInvalid
	case errors.Is(err, payment.ErrRequestFailed):
		log.Errorw("webhook_verify_request_failed", "error", err)
		return ErrPaymentGatewayRequestFailed
	case errors.Is(err, payment.ErrResponseInvalid):
		log.Warnw("webhook_payload_invalid", "error", err)
		return ErrWebhookPayloadInvalid
	default:
		log.Errorw("webhook_parse_failed", "error", err)
		return ErrWebhookPayloadInvalid
	}
}
