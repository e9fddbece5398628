package models

import (
	"time"
)

// PaymentRecord 支付流水记录
type PaymentRecord struct {
	ID                uint      `gorm:"primarykey" json:"id"`                                                                          // 主键
	OrderID           uint      `gorm:"index;not null" json:"order_id"`                                                                // 订单ID
	Provider          string    `gorm:"not null;index:idx_payment_record_provider_ref,unique" json:"provider"`                         // 支付提供方
	ProviderPaymentID string    `gorm:"type:varchar(255);not null;index:idx_payment_record_provider_ref,unique" json:"provider_payment_id"` // 提供方支付流水号
	AmountCents       int64     `gorm:"not null;default:0" json:"amount_cents"`                                                        // 金额（最小货币单位）
	State             string    `gorm:"index;not null" json:"state"`                                                                   // 流水状态
	ProviderPayload   JSON      `gorm:"type:json" json:"provider_payload"`                                                             // 提供方原始数据
	CreatedAt         time.Time `gorm:"index" json:"created_at"`                                                                       // 创建时间
	UpdatedAt         time.Time `gorm:"index" json:"updated_at"`                                                                       // 更新时间
}

// TableName 指定表名
func (PaymentRecord) TableName() string {
	return "payment_records"
}
