package models

import (
	"time"

	"gorm.io/gorm"
)

// Attribution 商户推荐归属记录
type Attribution struct {
	ID           uint           `gorm:"primarykey" json:"id"`                                // 主键
	MerchantID   uint           `gorm:"not null;uniqueIndex" json:"merchant_id"`             // 商户ID
	ReferralCode string         `gorm:"type:varchar(32);not null;index" json:"referral_code"` // 推荐码
	LockedAt     *time.Time     `gorm:"index" json:"locked_at,omitempty"`                    // 锁定时间（首次支付成功时一次性写入）
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`                             // 创建时间
	UpdatedAt    time.Time      `gorm:"index" json:"updated_at"`                             // 更新时间
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`                                      // 软删除时间
}

// TableName 指定表名
func (Attribution) TableName() string {
	return "attributions"
}
