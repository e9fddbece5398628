package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pagecart/pagecart/internal/constants"
	"github.com/pagecart/pagecart/internal/models"
	"github.com/pagecart/pagecart/internal/payment"
	stripeadapter "github.com/pagecart/pagecart/internal/payment/stripe"
	"github.com/pagecart/pagecart/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// fakeWebhookAdapter 固定返回预设事件或错误，用于回调链路测试。
type fakeWebhookAdapter struct {
	event *payment.WebhookEvent
	err   error
}

func (a *fakeWebhookAdapter) Provider() string {
	return "fakepay"
}

func (a *fakeWebhookAdapter) SupportsSplit() bool {
	return false
}

func (a *fakeWebhookAdapter) CreateCheckout(_ context.Context, _ map[string]interface{}, _ payment.CheckoutInput) (*payment.CheckoutResult, error) {
	return nil, payment.ErrRequestFailed
}

func (a *fakeWebhookAdapter) ParseWebhook(_ context.Context, _ map[string]interface{}, _ []byte, _ map[string]string, _ time.Time) (*payment.WebhookEvent, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.event, nil
}

func setupWebhookIngestorTest(t *testing.T, adapter payment.Adapter) (*WebhookIngestor, *OrderLedger, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:webhook_ingestor_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.PaymentAccount{},
		&models.PaymentRecord{},
		&models.Attribution{},
		&models.CommissionLedgerEntry{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	orderRepo := repository.NewOrderRepository(db)
	recordRepo := repository.NewPaymentRecordRepository(db)
	accountRepo := repository.NewPaymentAccountRepository(db)
	attributionRepo := repository.NewAttributionRepository(db)
	commissionRepo := repository.NewCommissionRepository(db)

	registry := payment.NewRegistry(adapter)
	router := NewPaymentRouter(accountRepo, registry)
	accountant := NewCommissionAccountant(attributionRepo, commissionRepo, models.NewRateFromFloat(0.2))
	ledger := NewOrderLedger(orderRepo, recordRepo, attributionRepo, router, accountant, nil)
	ingestor := NewWebhookIngestor(registry, accountRepo, orderRepo, ledger)
	return ingestor, ledger, db
}

func createWebhookTestAccount(t *testing.T, db *gorm.DB, merchantID uint, provider string) *models.PaymentAccount {
	t.Helper()
	account := &models.PaymentAccount{
		MerchantID:          merchantID,
		Provider:            provider,
		Status:              constants.PaymentAccountStatusActive,
		CollectPlatformFee:  true,
		PlatformFeePercent:  models.NewRateFromFloat(0.05),
		PlatformFeeMinCents: 200,
		ConfigJSON:          models.JSON{"secret": "test"},
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("create payment account failed: %v", err)
	}
	return account
}

func createWebhookTestOrder(t *testing.T, ledger *OrderLedger, merchantID uint) *models.Order {
	t.Helper()
	order, err := ledger.CreateDraftOrder(CreateOrderInput{
		MerchantID: merchantID,
		Items: []CreateOrderItemInput{
			{CatalogItemID: 1, Title: "Plan", Quantity: 1, UnitPriceCents: 10000},
		},
	})
	if err != nil {
		t.Fatalf("create draft order failed: %v", err)
	}
	return order
}

func TestIngestRejectsUnknownProvider(t *testing.T) {
	ingestor, _, _ := setupWebhookIngestorTest(t, &fakeWebhookAdapter{})
	err := ingestor.Ingest(context.Background(), "unknownpay", 1, []byte("{}"), nil)
	if !errors.Is(err, ErrWebhookProviderNotSupported) {
		t.Fatalf("expected provider not supported, got: %v", err)
	}
}

func TestIngestRejectsAccountProviderMismatch(t *testing.T) {
	ingestor, _, db := setupWebhookIngestorTest(t, &fakeWebhookAdapter{})
	account := createWebhookTestAccount(t, db, 1, constants.PaymentProviderStripe)

	err := ingestor.Ingest(context.Background(), "fakepay", account.ID, []byte("{}"), nil)
	if !errors.Is(err, ErrWebhookProviderNotSupported) {
		t.Fatalf("expected provider mismatch rejection, got: %v", err)
	}
}

func TestIngestClassifiesSignatureError(t *testing.T) {
	adapter := &fakeWebhookAdapter{err: fmt.Errorf("%w: bad signature", payment.ErrSignatureInvalid)}
	ingestor, _, db := setupWebhookIngestorTest(t, adapter)
	account := createWebhookTestAccount(t, db, 1, "fakepay")

	err := ingestor.Ingest(context.Background(), "fakepay", account.ID, []byte("{}"), nil)
	if !errors.Is(err, ErrWebhookSignatureInvalid) {
		t.Fatalf("expected signature invalid, got: %v", err)
	}
}

func TestIngestClassifiesConfigError(t *testing.T) {
	adapter := &fakeWebhookAdapter{err: fmt.Errorf("%w: missing secret", payment.ErrConfigInvalid)}
	ingestor, _, db := setupWebhookIngestorTest(t, adapter)
	account := createWebhookTestAccount(t, db, 1, "fakepay")

	err := ingestor.Ingest(context.Background(), "fakepay", account.ID, []byte("{}"), nil)
	if !errors.Is(err, ErrPaymentAccountConfigInvalid) {
		t.Fatalf("expected config invalid, got: %v", err)
	}
}

func TestIngestAcksIgnoredEvent(t *testing.T) {
	adapter := &fakeWebhookAdapter{event: &payment.WebhookEvent{
		ID:   "evt_1",
		Type: constants.WebhookEventIgnored,
	}}
	ingestor, _, db := setupWebhookIngestorTest(t, adapter)
	account := createWebhookTestAccount(t, db, 1, "fakepay")

	if err := ingestor.Ingest(context.Background(), "fakepay", account.ID, []byte("{}"), nil); err != nil {
		t.Fatalf("ignored event must be acked, got: %v", err)
	}
}

func TestIngestAcksUnknownOrder(t *testing.T) {
	adapter := &fakeWebhookAdapter{event: &payment.WebhookEvent{
		ID:      "evt_1",
		Type:    constants.WebhookEventPaymentSucceeded,
		OrderNo: "PC00000000000000000000",
	}}
	ingestor, _, db := setupWebhookIngestorTest(t, adapter)
	account := createWebhookTestAccount(t, db, 1, "fakepay")

	if err := ingestor.Ingest(context.Background(), "fakepay", account.ID, []byte("{}"), nil); err != nil {
		t.Fatalf("unknown order event must be acked, got: %v", err)
	}
}

func TestIngestAppliesPaymentSucceeded(t *testing.T) {
	adapter := &fakeWebhookAdapter{}
	ingestor, ledger, db := setupWebhookIngestorTest(t, adapter)
	account := createWebhookTestAccount(t, db, 1, "fakepay")
	order := createWebhookTestOrder(t, ledger, 1)

	adapter.event = &payment.WebhookEvent{
		ID:                "evt_1",
		Type:              constants.WebhookEventPaymentSucceeded,
		OrderID:           order.ID,
		ProviderPaymentID: "pay_1",
		AmountCents:       order.TotalCents,
	}
	if err := ingestor.Ingest(context.Background(), "fakepay", account.ID, []byte("{}"), nil); err != nil {
		t.Fatalf("ingest payment succeeded failed: %v", err)
	}

	var reloaded models.Order
	if err := db.First(&reloaded, order.ID).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	if reloaded.Status != constants.OrderStatusPaid {
		t.Fatalf("expected paid status, got %s", reloaded.Status)
	}

	var record models.PaymentRecord
	if err := db.Where("order_id = ?", order.ID).First(&record).Error; err != nil {
		t.Fatalf("load payment record failed: %v", err)
	}
	if record.Provider != "fakepay" || record.ProviderPaymentID != "pay_1" {
		t.Fatalf("unexpected payment record: %+v", record)
	}
}

func TestIngestResolvesOrderByOrderNo(t *testing.T) {
	adapter := &fakeWebhookAdapter{}
	ingestor, ledger, db := setupWebhookIngestorTest(t, adapter)
	account := createWebhookTestAccount(t, db, 1, "fakepay")
	order := createWebhookTestOrder(t, ledger, 1)

	// 事件缺少支付流水号时回退到事件 ID 作为幂等键
	adapter.event = &payment.WebhookEvent{
		ID:          "evt_2",
		Type:        constants.WebhookEventPaymentSucceeded,
		OrderNo:     order.OrderNo,
		AmountCents: order.TotalCents,
	}
	if err := ingestor.Ingest(context.Background(), "fakepay", account.ID, []byte("{}"), nil); err != nil {
		t.Fatalf("ingest by order no failed: %v", err)
	}

	var record models.PaymentRecord
	if err := db.Where("order_id = ?", order.ID).First(&record).Error; err != nil {
		t.Fatalf("load payment record failed: %v", err)
	}
	if record.ProviderPaymentID != "evt_2" {
		t.Fatalf("expected event id fallback, got %s", record.ProviderPaymentID)
	}
}

func TestCreateCheckoutTranslatesGatewayError(t *testing.T) {
	adapter := &fakeWebhookAdapter{}
	_, ledger, db := setupWebhookIngestorTest(t, adapter)
	createWebhookTestAccount(t, db, 1, "fakepay")
	order := createWebhookTestOrder(t, ledger, 1)

	router := NewPaymentRouter(repository.NewPaymentAccountRepository(db), payment.NewRegistry(adapter))
	_, err := router.CreateCheckout(context.Background(), order, CheckoutParams{
		SuccessURL: "https://shop.example.com/success",
		CancelURL:  "https://shop.example.com/cancel",
	})
	if !errors.Is(err, ErrPaymentGatewayRequestFailed) {
		t.Fatalf("expected gateway request failed sentinel, got: %v", err)
	}
}

func TestIngestStripeChargeRefundedTransitionsPaidOrder(t *testing.T) {
	ingestor, ledger, db := setupWebhookIngestorTest(t, stripeadapter.NewAdapter())
	account := &models.PaymentAccount{
		MerchantID:         1,
		Provider:           constants.PaymentProviderStripe,
		Status:             constants.PaymentAccountStatusActive,
		CollectPlatformFee: true,
		PlatformFeePercent: models.NewRateFromFloat(0.05),
		ConfigJSON: models.JSON{
			"secret_key":     "sk_test_123456",
			"webhook_secret": "whsec_123456",
		},
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("create payment account failed: %v", err)
	}
	order := createWebhookTestOrder(t, ledger, 1)

	if _, err := ledger.MarkOrderPaid(order.ID, order.TotalCents, constants.PaymentProviderStripe, "pi_1", nil); err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}

	// 退款事件携带与支付记录相同的 payment_intent，靠 charge 自身 ID 区分幂等键
	body, err := json.Marshal(map[string]interface{}{
		"id":   "evt_refund_1",
		"type": "charge.refunded",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":              "ch_1",
				"object":          "charge",
				"payment_intent":  "pi_1",
				"amount_refunded": order.TotalCents,
				"metadata": map[string]interface{}{
					"order_id": fmt.Sprintf("%d", order.ID),
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal webhook body failed: %v", err)
	}
	signedAt := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte("whsec_123456"))
	mac.Write([]byte(fmt.Sprintf("%d.%s", signedAt, body)))
	headers := map[string]string{
		"Stripe-Signature": fmt.Sprintf("t=%d,v1=%s", signedAt, hex.EncodeToString(mac.Sum(nil))),
	}

	if err := ingestor.Ingest(context.Background(), constants.PaymentProviderStripe, account.ID, body, headers); err != nil {
		t.Fatalf("ingest stripe refund failed: %v", err)
	}

	var reloaded models.Order
	if err := db.First(&reloaded, order.ID).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	if reloaded.Status != constants.OrderStatusRefunded {
		t.Fatalf("expected refunded status, got %s", reloaded.Status)
	}
	if reloaded.RefundedCents != order.TotalCents {
		t.Fatalf("expected refunded cents %d, got %d", order.TotalCents, reloaded.RefundedCents)
	}

	var records []models.PaymentRecord
	if err := db.Where("order_id = ?", order.ID).Order("id").Find(&records).Error; err != nil {
		t.Fatalf("load payment records failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected payment and refund records, got %d", len(records))
	}
	if records[1].ProviderPaymentID != "ch_1" {
		t.Fatalf("expected refund keyed by charge id, got %s", records[1].ProviderPaymentID)
	}
}

func TestIngestAppliesRefund(t *testing.T) {
	adapter := &fakeWebhookAdapter{}
	ingestor, ledger, db := setupWebhookIngestorTest(t, adapter)
	account := createWebhookTestAccount(t, db, 1, "fakepay")
	order := createWebhookTestOrder(t, ledger, 1)

	if _, err := ledger.MarkOrderPaid(order.ID, order.TotalCents, "fakepay", "pay_1", nil); err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}

	adapter.event = &payment.WebhookEvent{
		ID:                "evt_3",
		Type:              constants.WebhookEventRefundSucceeded,
		OrderID:           order.ID,
		ProviderPaymentID: "re_1",
		AmountCents:       order.TotalCents,
	}
	if err := ingestor.Ingest(context.Background(), "fakepay", account.ID, []byte("{}"), nil); err != nil {
		t.Fatalf("ingest refund failed: %v", err)
	}

	var reloaded models.Order
	if err := db.First(&reloaded, order.ID).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	if reloaded.Status != constants.OrderStatusRefunded {
		t.Fatalf("expected refunded status, got %s", reloaded.Status)
	}
}
