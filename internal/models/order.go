package models

import (
	"time"

	"gorm.io/gorm"
)

// Order 订单表
type Order struct {
	ID                uint           `gorm:"primarykey" json:"id"`                            // 主键
	OrderNo           string         `gorm:"uniqueIndex;not null" json:"order_no"`            // 订单编号
	MerchantID        uint           `gorm:"index;not null" json:"merchant_id"`               // 商户ID
	SiteSlug          string         `gorm:"index;type:varchar(100)" json:"site_slug"`        // 站点标识
	Currency          string         `gorm:"not null" json:"currency"`                        // 币种（ISO 4217）
	SubtotalCents     int64          `gorm:"not null;default:0" json:"subtotal_cents"`        // 商品小计（最小货币单位）
	TotalCents        int64          `gorm:"not null;default:0" json:"total_cents"`           // 实付金额（最小货币单位）
	PlatformFeeCents  int64          `gorm:"not null;default:0" json:"platform_fee_cents"`    // 平台服务费（下单时冻结）
	RefundedCents     int64          `gorm:"not null;default:0" json:"refunded_cents"`        // 已退款金额
	Status            string         `gorm:"index;not null" json:"status"`                    // 订单状态
	Provider          string         `gorm:"index" json:"provider,omitempty"`                 // 支付提供方
	ProviderPaymentID *string        `gorm:"index" json:"provider_payment_id,omitempty"`      // 提供方支付流水号
	PaidAt            *time.Time     `gorm:"index" json:"paid_at"`                            // 支付时间
	FailedAt          *time.Time     `gorm:"index" json:"failed_at"`                          // 失败时间
	RefundedAt        *time.Time     `gorm:"index" json:"refunded_at"`                        // 退款时间
	CreatedAt         time.Time      `gorm:"index" json:"created_at"`                         // 创建时间
	UpdatedAt         time.Time      `gorm:"index" json:"updated_at"`                         // 更新时间
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`                                  // 软删除时间

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"` // 订单项
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
