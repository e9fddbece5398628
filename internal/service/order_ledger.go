package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/pagecart/pagecart/internal/constants"
	"github.com/pagecart/pagecart/internal/logger"
	"github.com/pagecart/pagecart/internal/models"
	"github.com/pagecart/pagecart/internal/queue"
	"github.com/pagecart/pagecart/internal/repository"

	"go.uber.org/zap"
)

// OrderLedger 订单账本服务：负责订单与订单项的原子创建、状态机迁移、
// 幂等的支付入账和一次性归属锁定。
type OrderLedger struct {
	orderRepo       repository.OrderRepository
	recordRepo      repository.PaymentRecordRepository
	attributionRepo repository.AttributionRepository
	router          *PaymentRouter
	accountant      *CommissionAccountant
	queueClient     *queue.Client
}

// NewOrderLedger 创建订单账本服务
func NewOrderLedger(
	orderRepo repository.OrderRepository,
	recordRepo repository.PaymentRecordRepository,
	attributionRepo repository.AttributionRepository,
	router *PaymentRouter,
	accountant *CommissionAccountant,
	queueClient *queue.Client,
) *OrderLedger {
	return &OrderLedger{
		orderRepo:       orderRepo,
		recordRepo:      recordRepo,
		attributionRepo: attributionRepo,
		router:          router,
		accountant:      accountant,
		queueClient:     queueClient,
	}
}

func ledgerLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// CreateOrderItemInput 下单行项目输入
type CreateOrderItemInput struct {
	CatalogItemID  uint
	Title          string
	Quantity       int
	UnitPriceCents int64
	Metadata       models.JSON
}

// CreateOrderInput 下单输入
type CreateOrderInput struct {
	MerchantID uint
	SiteSlug   string
	Currency   string
	Items      []CreateOrderItemInput
}

// CreateDraftOrder 创建待支付订单。服务费配置在此刻解析并冻结进订单行，
// 订单行与订单项要么同时可见要么都不可见。
func (s *OrderLedger) CreateDraftOrder(input CreateOrderInput) (*models.Order, error) {
	if input.MerchantID == 0 {
		return nil, ErrOrderItemInvalid
	}
	if len(input.Items) == 0 {
		return nil, ErrOrderItemsEmpty
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = constants.SiteCurrencyDefault
	}

	subtotalCents := int64(0)
	for _, item := range input.Items {
		if item.Quantity < 1 || item.UnitPriceCents < 0 {
			return nil, ErrOrderItemInvalid
		}
		if strings.TrimSpace(item.Title) == "" {
			return nil, ErrOrderItemInvalid
		}
		subtotalCents += item.UnitPriceCents * int64(item.Quantity)
	}
	totalCents := subtotalCents

	account, err := s.router.GetMerchantPaymentConfig(input.MerchantID)
	if err != nil {
		return nil, err
	}
	feeCents := s.router.ComputePlatformFee(totalCents, account)

	now := time.Now()
	order := &models.Order{
		OrderNo:          generateOrderNo(),
		MerchantID:       input.MerchantID,
		SiteSlug:         strings.TrimSpace(input.SiteSlug),
		Currency:         currency,
		SubtotalCents:    subtotalCents,
		TotalCents:       totalCents,
		PlatformFeeCents: feeCents,
		Status:           constants.OrderStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.orderRepo.Create(order); err != nil {
		ledgerLogger("merchant_id", input.MerchantID).Errorw("order_create_failed", "error", err)
		return nil, ErrOrderCreateFailed
	}

	items := make([]models.OrderItem, 0, len(input.Items))
	for _, item := range input.Items {
		items = append(items, models.OrderItem{
			OrderID:        order.ID,
			CatalogItemID:  item.CatalogItemID,
			Title:          strings.TrimSpace(item.Title),
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     item.UnitPriceCents * int64(item.Quantity),
			Metadata:       item.Metadata,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	if err := s.orderRepo.CreateItems(items); err != nil {
		// 订单项写入失败时补偿删除订单行，外部不可见任何半成品订单
		if delErr := s.orderRepo.HardDelete(order.ID); delErr != nil {
			ledgerLogger("order_id", order.ID, "order_no", order.OrderNo).
				Errorw("order_compensation_delete_failed", "error", delErr)
		}
		ledgerLogger("order_id", order.ID, "order_no", order.OrderNo).
			Errorw("order_items_create_failed", "error", err)
		return nil, ErrOrderCreateFailed
	}

	order.Items = items
	return order, nil
}

// MarkOrderPaid 幂等入账：同一 (provider, provider_payment_id) 的重复投递只生效一次。
// 支付状态写入之后的归属锁定与佣金记账均为尽力而为，失败不回滚支付确认。
func (s *OrderLedger) MarkOrderPaid(orderID uint, amountCents int64, provider, providerPaymentID string, raw models.JSON) (*models.Order, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	providerPaymentID = strings.TrimSpace(providerPaymentID)
	if orderID == 0 || provider == "" || providerPaymentID == "" {
		return nil, ErrOrderNotFound
	}
	log := ledgerLogger(
		"order_id", orderID,
		"provider", provider,
		"provider_payment_id", providerPaymentID,
	)

	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		log.Errorw("order_paid_fetch_failed", "error", err)
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	switch order.Status {
	case constants.OrderStatusPending:
		// 正常路径
	case constants.OrderStatusPaid:
		// 重复投递，当作已生效
		log.Infow("order_paid_duplicate_delivery")
		return order, nil
	default:
		log.Warnw("order_paid_invalid_status", "status", order.Status)
		return nil, ErrOrderStatusInvalid
	}

	record := &models.PaymentRecord{
		OrderID:           order.ID,
		Provider:          provider,
		ProviderPaymentID: providerPaymentID,
		AmountCents:       amountCents,
		State:             constants.PaymentRecordStateSucceeded,
		ProviderPayload:   raw,
	}
	if err := s.recordRepo.Create(record); err != nil {
		if isUniqueViolation(err) {
			// 唯一键冲突说明事件已被并发投递应用过，按成功处理
			log.Infow("order_paid_record_already_applied")
			current, fetchErr := s.orderRepo.GetByID(order.ID)
			if fetchErr != nil || current == nil {
				return order, nil
			}
			return current, nil
		}
		// 提供方已确认收款，本地流水落库失败属于最高级别故障
		s.alertLedgerFailure(order, provider, providerPaymentID, "payment_record_create_failed", err)
		return nil, ErrLedgerWriteFailed
	}

	now := time.Now()
	rows, err := s.orderRepo.UpdateStatusFrom(order.ID, constants.OrderStatusPending, constants.OrderStatusPaid, map[string]interface{}{
		"provider":            provider,
		"provider_payment_id": providerPaymentID,
		"paid_at":             now,
	})
	if err != nil {
		s.alertLedgerFailure(order, provider, providerPaymentID, "order_status_update_failed", err)
		return nil, ErrLedgerWriteFailed
	}
	if rows == 0 {
		// 并发投递已完成迁移
		log.Infow("order_paid_status_already_updated")
	}

	if locked, err := s.attributionRepo.Lock(order.MerchantID, now); err != nil {
		log.Errorw("attribution_lock_failed", "merchant_id", order.MerchantID, "error", err)
	} else if locked > 0 {
		log.Infow("attribution_locked", "merchant_id", order.MerchantID)
	}

	if s.accountant != nil {
		if err := s.accountant.RecordPlatformFeeCommission(order); err != nil {
			// 佣金记账失败不回滚支付确认，转入重试队列
			log.Errorw("commission_record_failed", "error", err)
			if s.queueClient != nil {
				if enqueueErr := s.queueClient.EnqueueCommissionRetry(queue.CommissionRetryPayload{
					OrderID: order.ID,
				}); enqueueErr != nil {
					log.Errorw("commission_retry_enqueue_failed", "error", enqueueErr)
				}
			}
		}
	}

	paid, err := s.orderRepo.GetByID(order.ID)
	if err == nil && paid != nil {
		return paid, nil
	}
	return order, nil
}

// MarkOrderFailed 仅允许 pending -> failed，终态订单上的失败事件按无操作处理。
func (s *OrderLedger) MarkOrderFailed(orderID uint) error {
	if orderID == 0 {
		return ErrOrderNotFound
	}
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if order.Status != constants.OrderStatusPending {
		// 不回退已支付订单
		ledgerLogger("order_id", orderID, "status", order.Status).
			Infow("order_failed_event_skipped")
		return nil
	}
	now := time.Now()
	rows, err := s.orderRepo.UpdateStatusFrom(orderID, constants.OrderStatusPending, constants.OrderStatusFailed, map[string]interface{}{
		"failed_at": now,
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		ledgerLogger("order_id", orderID).Infow("order_failed_race_lost")
	}
	return nil
}

// MarkOrderRefunded 仅允许 paid -> refunded，pending 订单上的退款事件是逻辑错误。
func (s *OrderLedger) MarkOrderRefunded(orderID uint, amountCents int64, provider, providerPaymentID string, raw models.JSON) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	providerPaymentID = strings.TrimSpace(providerPaymentID)
	if orderID == 0 {
		return ErrOrderNotFound
	}
	log := ledgerLogger(
		"order_id", orderID,
		"provider", provider,
		"provider_payment_id", providerPaymentID,
	)

	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}
	switch order.Status {
	case constants.OrderStatusPaid:
		// 正常路径
	case constants.OrderStatusRefunded:
		log.Infow("order_refund_duplicate_delivery")
		return nil
	default:
		log.Warnw("order_refund_invalid_status", "status", order.Status)
		return ErrOrderStatusInvalid
	}

	if providerPaymentID != "" {
		record := &models.PaymentRecord{
			OrderID:           order.ID,
			Provider:          provider,
			ProviderPaymentID: providerPaymentID,
			AmountCents:       amountCents,
			State:             constants.PaymentRecordStateRefunded,
			ProviderPayload:   raw,
		}
		if err := s.recordRepo.Create(record); err != nil {
			if isUniqueViolation(err) {
				log.Infow("order_refund_record_already_applied")
				return nil
			}
			s.alertLedgerFailure(order, provider, providerPaymentID, "refund_record_create_failed", err)
			return ErrLedgerWriteFailed
		}
	}

	now := time.Now()
	if _, err := s.orderRepo.UpdateStatusFrom(orderID, constants.OrderStatusPaid, constants.OrderStatusRefunded, map[string]interface{}{
		"refunded_cents": amountCents,
		"refunded_at":    now,
	}); err != nil {
		s.alertLedgerFailure(order, provider, providerPaymentID, "refund_status_update_failed", err)
		return ErrLedgerWriteFailed
	}
	log.Infow("order_refunded", "amount_cents", amountCents)
	return nil
}

// alertLedgerFailure 记账失败的运营告警：错误日志之外再投递一条对账任务。
func (s *OrderLedger) alertLedgerFailure(order *models.Order, provider, providerPaymentID, reason string, cause error) {
	ledgerLogger(
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"provider", provider,
		"provider_payment_id", providerPaymentID,
	).Errorw("ledger_write_failed", "reason", reason, "error", cause)

	if s.queueClient == nil {
		return
	}
	if err := s.queueClient.EnqueueLedgerReconcileAlert(queue.LedgerReconcileAlertPayload{
		OrderID:           order.ID,
		OrderNo:           order.OrderNo,
		Provider:          provider,
		ProviderPaymentID: providerPaymentID,
		Reason:            reason,
	}); err != nil {
		ledgerLogger("order_id", order.ID).Errorw("ledger_alert_enqueue_failed", "error", err)
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func generateOrderNo() string {
	now := time.Now().Format("20060102150405")
	randPart := randNumeric(6)
	return fmt.Sprintf("PC%s%s", now, randPart)
}

func randNumeric(length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			b.WriteString("0")
			continue
		}
		b.WriteString(fmt.Sprintf("%d", n.Int64()))
	}
	return b.String()
}
