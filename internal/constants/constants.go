package constants

// 订单状态常量
const (
	OrderStatusPending  = "pending"
	OrderStatusPaid     = "paid"
	OrderStatusFailed   = "failed"
	OrderStatusRefunded = "refunded"
)

// 支付提供方常量
const (
	PaymentProviderStripe = "stripe"
	PaymentProviderPaypal = "paypal"
)

// 支付账户状态常量
const (
	PaymentAccountStatusActive   = "active"
	PaymentAccountStatusInactive = "inactive"
)

// 支付记录状态常量
const (
	PaymentRecordStateSucceeded = "succeeded"
	PaymentRecordStateRefunded  = "refunded"
)

// 回调事件类型常量
const (
	WebhookEventPaymentSucceeded = "payment_succeeded"
	WebhookEventPaymentFailed    = "payment_failed"
	WebhookEventRefundSucceeded  = "refund_succeeded"
	WebhookEventIgnored          = "ignored"
)

// 扣款方式常量
const (
	CaptureMethodAutomatic = "automatic"
	CaptureMethodManual    = "manual"
)

// 佣金科目常量
const (
	CommissionSubjectOrderPlatformFee = "order_platform_fee"
)

// 佣金状态常量
const (
	CommissionStatusPending = "pending"
	CommissionStatusSettled = "settled"
)

// 队列常量
const (
	QueueDefault             = "default"
	TaskLedgerReconcileAlert = "ledger:reconcile_alert"
	TaskCommissionRetry      = "commission:retry"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "pc"
)

// 币种常量
const (
	SiteCurrencyDefault = "USD"
)
