package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentAccount 商户收款配置
type PaymentAccount struct {
	ID                  uint           `gorm:"primarykey" json:"id"`                             // 主键
	MerchantID          uint           `gorm:"index;not null" json:"merchant_id"`                // 商户ID
	Provider            string         `gorm:"not null" json:"provider"`                         // 支付提供方（stripe/paypal）
	AccountRef          string         `gorm:"type:varchar(255)" json:"account_ref"`             // 提供方子账户标识（分账目标）
	Status              string         `gorm:"index;not null" json:"status"`                     // 状态（active/inactive）
	CollectPlatformFee  bool           `gorm:"not null;default:false" json:"collect_platform_fee"` // 是否收取平台服务费
	PlatformFeePercent  Rate           `gorm:"type:decimal(10,4);not null;default:0" json:"platform_fee_percent"` // 服务费比例（0..1）
	PlatformFeeMinCents int64          `gorm:"not null;default:0" json:"platform_fee_min_cents"` // 服务费最低金额
	ConfigJSON          JSON           `gorm:"type:json" json:"config_json"`                     // 提供方配置（密钥等）
	CreatedAt           time.Time      `gorm:"index" json:"created_at"`                          // 创建时间
	UpdatedAt           time.Time      `gorm:"index" json:"updated_at"`                          // 更新时间
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`                                   // 软删除时间
}

// TableName 指定表名
func (PaymentAccount) TableName() string {
	return "payment_accounts"
}
