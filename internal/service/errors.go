package service

import "errors"

// 服务层错误，处理器按规则表映射为 HTTP 状态码。
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidPassword    = errors.New("invalid password")

	ErrPaymentAccountMissing       = errors.New("payment account missing")
	ErrPaymentAccountConfigInvalid = errors.New("payment account config invalid")

	ErrOrderItemsEmpty    = errors.New("order items empty")
	ErrOrderItemInvalid   = errors.New("order item invalid")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderCreateFailed  = errors.New("order create failed")
	ErrOrderStatusInvalid = errors.New("order status invalid")

	ErrWebhookProviderNotSupported = errors.New("webhook provider not supported")
	ErrWebhookSignatureInvalid     = errors.New("webhook signature invalid")
	ErrWebhookPayloadInvalid       = errors.New("webhook payload invalid")

	ErrPaymentGatewayRequestFailed   = errors.New("payment gateway request failed")
	ErrPaymentGatewayResponseInvalid = errors.New("payment gateway response invalid")

	// ErrLedgerWriteFailed 提供方已确认扣款但本地账目写入失败，必须进入人工对账通道。
	ErrLedgerWriteFailed = errors.New("ledger write failed after payment confirmed")
)
