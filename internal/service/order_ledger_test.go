package service

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pagecart/pagecart/internal/constants"
	"github.com/pagecart/pagecart/internal/models"
	"github.com/pagecart/pagecart/internal/payment"
	"github.com/pagecart/pagecart/internal/payment/paypal"
	"github.com/pagecart/pagecart/internal/payment/stripe"
	"github.com/pagecart/pagecart/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupOrderLedgerTest(t *testing.T) (*OrderLedger, *PaymentRouter, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:order_ledger_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	registry := payment.NewRegistry(stripe.NewAdapter(), paypal.NewAdapter())
	router := NewPaymentRouter(accountRepo, registry)
	accountant := NewCommissionAccountant(attributionRepo, commissionRepo, models.NewRateFromFloat(0.2))
	ledger := NewOrderLedger(orderRepo, recordRepo, attributionRepo, router, accountant, nil)
	return ledger, router, db
}

func createLedgerTestAccount(t *testing.T, db *gorm.DB, merchantID uint, percent float64, minCents int64) *models.PaymentAccount {
	t.Helper()
	account := &models.PaymentAccount{
		MerchantID:          merchantID,
		Provider:            constants.PaymentProviderStripe,
		AccountRef:          fmt.Sprintf("acct_test_%d", merchantID),
		Status:              constants.PaymentAccountStatusActive,
		CollectPlatformFee:  true,
		PlatformFeePercent:  models.NewRateFromFloat(percent),
		PlatformFeeMinCents: minCents,
		ConfigJSON:          models.JSON{"secret_key": "sk_test"},
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("create payment account failed: %v", err)
	}
	return account
}

func createLedgerTestAttribution(t *testing.T, db *gorm.DB, merchantID uint, code string) *models.Attribution {
	t.Helper()
	attribution := &models.Attribution{
		MerchantID:   merchantID,
		ReferralCode: code,
	}
	if err := db.Create(attribution).Error; err != nil {
		t.Fatalf("create attribution failed: %v", err)
	}
	return attribution
}

func createLedgerTestOrder(t *testing.T, ledger *OrderLedger, merchantID uint) *models.Order {
	t.Helper()
	order, err := ledger.CreateDraftOrder(CreateOrderInput{
		MerchantID: merchantID,
		SiteSlug:   "demo",
		Currency:   "usd",
		Items: []CreateOrderItemInput{
			{CatalogItemID: 1, Title: "Starter Plan", Quantity: 2, UnitPriceCents: 2500},
			{CatalogItemID: 2, Title: "Setup", Quantity: 1, UnitPriceCents: 5000},
		},
	})
	if err != nil {
		t.Fatalf("create draft order failed: %v", err)
	}
	return order
}

func TestComputePlatformFeePercentWithMinimum(t *testing.T) {
	_, router, db := setupOrderLedgerTest(t)
	account := createLedgerTestAccount(t, db, 1, 0.05, 200)

	if fee := router.ComputePlatformFee(1000, account); fee != 200 {
		t.Fatalf("expected minimum fee 200, got %d", fee)
	}
	if fee := router.ComputePlatformFee(10000, account); fee != 500 {
		t.Fatalf("expected percent fee 500, got %d", fee)
	}
	if fee := router.ComputePlatformFee(0, account); fee != 0 {
		t.Fatalf("expected zero fee for zero total, got %d", fee)
	}

	account.CollectPlatformFee = false
	if fee := router.ComputePlatformFee(10000, account); fee != 0 {
		t.Fatalf("expected zero fee when collection disabled, got %d", fee)
	}
}

func TestComputePlatformFeeFloorsFraction(t *testing.T) {
	_, router, db := setupOrderLedgerTest(t)
	account := createLedgerTestAccount(t, db, 1, 0.0333, 0)

	// 999 * 0.0333 = 33.2667，向下取整
	if fee := router.ComputePlatformFee(999, account); fee != 33 {
		t.Fatalf("expected floored fee 33, got %d", fee)
	}
}

func TestCreateDraftOrderFreezesPlatformFee(t *testing.T) {
	ledger, _, db := setupOrderLedgerTest(t)
	createLedgerTestAccount(t, db, 1, 0.05, 200)

	order := createLedgerTestOrder(t, ledger, 1)
	if order.SubtotalCents != 10000 || order.TotalCents != 10000 {
		t.Fatalf("unexpected order amounts: %+v", order)
	}
	if order.PlatformFeeCents != 500 {
		t.Fatalf("expected frozen fee 500, got %d", order.PlatformFeeCents)
	}
	if order.Status != constants.OrderStatusPending {
		t.Fatalf("expected pending status, got %s", order.Status)
	}
	if order.Currency != "USD" {
		t.Fatalf("expected normalized currency USD, got %s", order.Currency)
	}
	if !strings.HasPrefix(order.OrderNo, "PC") {
		t.Fatalf("unexpected order no: %s", order.OrderNo)
	}

	var itemCount int64
	if err := db.Model(&models.OrderItem{}).Where("order_id = ?", order.ID).Count(&itemCount).Error; err != nil {
		t.Fatalf("count order items failed: %v", err)
	}
	if itemCount != 2 {
		t.Fatalf("expected 2 persisted items, got %d", itemCount)
	}
}

func TestCreateDraftOrderRejectsInvalidInput(t *testing.T) {
	ledger, _, db := setupOrderLedgerTest(t)
	createLedgerTestAccount(t, db, 1, 0.05, 200)

	if _, err := ledger.CreateDraftOrder(CreateOrderInput{MerchantID: 1}); !errors.Is(err, ErrOrderItemsEmpty) {
		t.Fatalf("expected empty items error, got: %v", err)
	}
	if _, err := ledger.CreateDraftOrder(CreateOrderInput{
		MerchantID: 1,
		Items:      []CreateOrderItemInput{{CatalogItemID: 1, Title: "x", Quantity: 0, UnitPriceCents: 100}},
	}); !errors.Is(err, ErrOrderItemInvalid) {
		t.Fatalf("expected invalid item error for zero quantity, got: %v", err)
	}
	if _, err := ledger.CreateDraftOrder(CreateOrderInput{
		MerchantID: 1,
		Items:      []CreateOrderItemInput{{CatalogItemID: 1, Title: "  ", Quantity: 1, UnitPriceCents: 100}},
	}); !errors.Is(err, ErrOrderItemInvalid) {
		t.Fatalf("expected invalid item error for blank title, got: %v", err)
	}
	if _, err := ledger.CreateDraftOrder(CreateOrderInput{
		MerchantID: 99,
		Items:      []CreateOrderItemInput{{CatalogItemID: 1, Title: "x", Quantity: 1, UnitPriceCents: 100}},
	}); !errors.Is(err, ErrPaymentAccountMissing) {
		t.Fatalf("expected missing account error, got: %v", err)
	}
}

func TestCreateDraftOrderItemFailureLeavesNoRows(t *testing.T) {
	ledger, _, db := setupOrderLedgerTest(t)
	createLedgerTestAccount(t, db, 1, 0.05, 200)

	// chan 无法序列化为 JSON，订单项写入必然失败
	_, err := ledger.CreateDraftOrder(CreateOrderInput{
		MerchantID: 1,
		Items: []CreateOrderItemInput{
			{CatalogItemID: 1, Title: "x", Quantity: 1, UnitPriceCents: 100, Metadata: models.JSON{"bad": make(chan int)}},
		},
	})
	if !errors.Is(err, ErrOrderCreateFailed) {
		t.Fatalf("expected create failed error, got: %v", err)
	}

	var orderCount int64
	if err := db.Unscoped().Model(&models.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders failed: %v", err)
	}
	if orderCount != 0 {
		t.Fatalf("expected no order rows after compensation, got %d", orderCount)
	}
	var itemCount int64
	if err := db.Unscoped().Model(&models.OrderItem{}).Count(&itemCount).Error; err != nil {
		t.Fatalf("count order items failed: %v", err)
	}
	if itemCount != 0 {
		t.Fatalf("expected no order item rows, got %d", itemCount)
	}
}

func TestMarkOrderPaidDuplicateDelivery(t *testing.T) {
	ledger, _, db := setupOrderLedgerTest(t)
	createLedgerTestAccount(t, db, 1, 0.05, 200)
	createLedgerTestAttribution(t, db, 1, "REF-001")
	order := createLedgerTestOrder(t, ledger, 1)

	paid, err := ledger.MarkOrderPaid(order.ID, order.TotalCents, constants.PaymentProviderStripe, "pi_123", models.JSON{"id": "evt_1"})
	if err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if paid.Status != constants.OrderStatusPaid {
		t.Fatalf("expected paid status, got %s", paid.Status)
	}
	if paid.PaidAt == nil {
		t.Fatalf("expected paid_at to be set")
	}

	// 重复投递同一事件
	again, err := ledger.MarkOrderPaid(order.ID, order.TotalCents, constants.PaymentProviderStripe, "pi_123", models.JSON{"id": "evt_1"})
	if err != nil {
		t.Fatalf("duplicate delivery failed: %v", err)
	}
	if again.Status != constants.OrderStatusPaid {
		t.Fatalf("expected paid status after duplicate, got %s", again.Status)
	}

	var recordCount int64
	if err := db.Model(&models.PaymentRecord{}).Where("order_id = ?", order.ID).Count(&recordCount).Error; err != nil {
		t.Fatalf("count payment records failed: %v", err)
	}
	if recordCount != 1 {
		t.Fatalf("expected exactly 1 payment record, got %d", recordCount)
	}

	var commissionCount int64
	if err := db.Model(&models.CommissionLedgerEntry{}).Where("subject_id = ?", order.ID).Count(&commissionCount).Error; err != nil {
		t.Fatalf("count commission entries failed: %v", err)
	}
	if commissionCount != 1 {
		t.Fatalf("expected exactly 1 commission entry, got %d", commissionCount)
	}
}

func TestMarkOrderPaidRecordConflictTreatedAsApplied(t *testing.T) {
	ledger, _, db := setupOrderLedgerTest(t)
	createLedgerTestAccount(t, db, 1, 0.05, 200)
	order := createLedgerTestOrder(t, ledger, 1)

	// 并发投递先写入了同一笔流水，订单仍停留在 pending
	record := &models.PaymentRecord{
		OrderID:           order.ID,
		Provider:          constants.PaymentProviderStripe,
		ProviderPaymentID: "pi_race",
		AmountCents:       order.TotalCents,
		State:             constants.PaymentRecordStateSucceeded,
	}
	if err := db.Create(record).Error; err != nil {
		t.Fatalf("seed payment record failed: %v", err)
	}

	if _, err := ledger.MarkOrderPaid(order.ID, order.TotalCents, constants.PaymentProviderStripe, "pi_race", nil); err != nil {
		t.Fatalf("expected unique conflict to be treated as applied, got: %v", err)
	}

	var recordCount int64
	if err := db.Model(&models.PaymentRecord{}).Where("order_id = ?", order.ID).Count(&recordCount).Error; err != nil {
		t.Fatalf("count payment records failed: %v", err)
	}
	if recordCount != 1 {
		t.Fatalf("expected exactly 1 payment record, got %d", recordCount)
	}
}

func TestMarkOrderPaidCommissionAmount(t *testing.T) {
	ledger, _, db := setupOrderLedgerTest(t)
	createLedgerTestAccount(t, db, 1, 0.05, 200)
	createLedgerTestAttribution(t, db, 1, "REF-001")
	order := createLedgerTestOrder(t, ledger, 1)

	if _, err := ledger.MarkOrderPaid(order.ID, order.TotalCents, constants.PaymentProviderStripe, "pi_123", nil); err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}

	var entry models.CommissionLedgerEntry
	if err := db.Where("subject_id = ?", order.ID).First(&entry).Error; err != nil {
		t.Fatalf("load commission entry failed: %v", err)
	}
	// 服务费 500 的 20%
	if entry.AmountCents != 100 {
		t.Fatalf("expected commission 100, got %d", entry.AmountCents)
	}
	if entry.ReferralCode != "REF-001" {
		t.Fatalf("unexpected referral code: %s", entry.ReferralCode)
	}
	if entry.Subject != constants.CommissionSubjectOrderPlatformFee {
		t.Fatalf("unexpected subject: %s", entry.Subject)
	}
	if entry.Status != constants.CommissionStatusPending {
		t.Fatalf("unexpected status: %s", entry.Status)
	}
	if entry.Currency != "USD" {
		t.Fatalf("unexpected currency: %s", entry.Currency)
	}
}

func TestAttributionLockedOnlyOnce(t *testing.T) {
	ledger, _, db := setupOrderLedgerTest(t)
	createLedgerTestAccount(t, db, 1, 0.05, 200)
	createLedgerTestAttribution(t, db, 1, "REF-001")

	first := createLedgerTestOrder(t, ledger, 1)
	if _, err := ledger.MarkOrderPaid(first.ID, first.TotalCents, constants.PaymentProviderStripe, "pi_1", nil); err != nil {
		t.Fatalf("mark first order paid failed: %v", err)
	}

	var locked models.Attribution
	if err := db.Where("merchant_id = ?", 1).First(&locked).Error; err != nil {
		t.Fatalf("load attribution failed: %v", err)
	}
	if locked.LockedAt == nil {
		t.Fatalf("expected attribution locked after first payment")
	}
	firstLockedAt := *locked.LockedAt

	second := createLedgerTestOrder(t, ledger, 1)
	if _, err := ledger.MarkOrderPaid(second.ID, second.TotalCents, constants.PaymentProviderStripe, "pi_2", nil); err != nil {
		t.Fatalf("mark second order paid failed: %v", err)
	}

	if err := db.Where("merchant_id = ?", 1).First(&locked).Error; err != nil {
		t.Fatalf("reload attribution failed: %v", err)
	}
	if locked.ReferralCode != "REF-001" {
		t.Fatalf("referral code changed: %s", locked.ReferralCode)
	}
	if !locked.LockedAt.Equal(firstLockedAt) {
		t.Fatalf("locked_at changed on second payment: %v vs %v", locked.LockedAt, firstLockedAt)
	}

	var commissionCount int64
	if err := db.Model(&models.CommissionLedgerEntry{}).Count(&commissionCount).Error; err != nil {
		t.Fatalf("count commission entries failed: %v", err)
	}
	if commissionCount != 2 {
		t.Fatalf("expected one commission entry per paid order, got %d", commissionCount)
	}
}

func TestMarkOrderFailedOnlyFromPending(t *testing.T) {
	ledger, _, db := setupOrderLedgerTest(t)
	createLedgerTestAccount(t, db, 1, 0.05, 200)

	order := createLedgerTestOrder(t, ledger, 1)
	if err := ledger.MarkOrderFailed(order.ID); err != nil {
		t.Fatalf("mark failed on pending order failed: %v", err)
	}
	reloaded := reloadLedgerTestOrder(t, db, order.ID)
	if reloaded.Status != constants.OrderStatusFailed {
		t.Fatalf("expected failed status, got %s", reloaded.Status)
	}
	if reloaded.FailedAt == nil {
		t.Fatalf("expected failed_at to be set")
	}

	paidOrder := createLedgerTestOrder(t, ledger, 1)
	if _, err := ledger.MarkOrderPaid(paidOrder.ID, paidOrder.TotalCents, constants.PaymentProviderStripe, "pi_x", nil); err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if err := ledger.MarkOrderFailed(paidOrder.ID); err != nil {
		t.Fatalf("failure event on paid order should be a no-op, got: %v", err)
	}
	reloaded = reloadLedgerTestOrder(t, db, paidOrder.ID)
	if reloaded.Status != constants.OrderStatusPaid {
		t.Fatalf("paid order must not regress, got %s", reloaded.Status)
	}
}

func TestMarkOrderRefundedRejectsPendingOrder(t *testing.T) {
	ledger, _, db := setupOrderLedgerTest(t)
	createLedgerTestAccount(t, db, 1, 0.05, 200)
	order := createLedgerTestOrder(t, ledger, 1)

	err := ledger.MarkOrderRefunded(order.ID, order.TotalCents, constants.PaymentProviderStripe, "re_1", nil)
	if !errors.Is(err, ErrOrderStatusInvalid) {
		t.Fatalf("expected invalid status error, got: %v", err)
	}
	reloaded := reloadLedgerTestOrder(t, db, order.ID)
	if reloaded.Status != constants.OrderStatusPending {
		t.Fatalf("order must stay pending, got %s", reloaded.Status)
	}
}

func TestMarkOrderRefundedFromPaid(t *testing.T) {
	ledger, _, db := setupOrderLedgerTest(t)
	createLedgerTestAccount(t, db, 1, 0.05, 200)
	order := createLedgerTestOrder(t, ledger, 1)

	if _, err := ledger.MarkOrderPaid(order.ID, order.TotalCents, constants.PaymentProviderStripe, "pi_1", nil); err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if err := ledger.MarkOrderRefunded(order.ID, order.TotalCents, constants.PaymentProviderStripe, "re_1", nil); err != nil {
		t.Fatalf("mark refunded failed: %v", err)
	}

	reloaded := reloadLedgerTestOrder(t, db, order.ID)
	if reloaded.Status != constants.OrderStatusRefunded {
		t.Fatalf("expected refunded status, got %s", reloaded.Status)
	}
	if reloaded.RefundedCents != order.TotalCents {
		t.Fatalf("expected refunded cents %d, got %d", order.TotalCents, reloaded.RefundedCents)
	}
	if reloaded.RefundedAt == nil {
		t.Fatalf("expected refunded_at to be set")
	}

	// 退款事件重复投递
	if err := ledger.MarkOrderRefunded(order.ID, order.TotalCents, constants.PaymentProviderStripe, "re_1", nil); err != nil {
		t.Fatalf("duplicate refund delivery should be a no-op, got: %v", err)
	}

	var refundRecords int64
	if err := db.Model(&models.PaymentRecord{}).
		Where("order_id = ? AND state = ?", order.ID, constants.PaymentRecordStateRefunded).
		Count(&refundRecords).Error; err != nil {
		t.Fatalf("count refund records failed: %v", err)
	}
	if refundRecords != 1 {
		t.Fatalf("expected exactly 1 refund record, got %d", refundRecords)
	}
}

func reloadLedgerTestOrder(t *testing.T, db *gorm.DB, id uint) *models.Order {
	t.Helper()
	var order models.Order
	if err := db.First(&order, id).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	return &order
}
