package models

import (
	"time"

	"gorm.io/gorm"
)

// CommissionLedgerEntry 推荐佣金账目记录
type CommissionLedgerEntry struct {
	ID           uint           `gorm:"primarykey" json:"id"`                                                                                 // 主键
	ReferralCode string         `gorm:"type:varchar(32);not null;index;index:idx_commission_ledger_unique,unique" json:"referral_code"`       // 推荐码
	Subject      string         `gorm:"type:varchar(40);not null;default:'order_platform_fee';index:idx_commission_ledger_unique,unique" json:"subject"` // 科目
	SubjectID    uint           `gorm:"not null;index;index:idx_commission_ledger_unique,unique" json:"subject_id"`                           // 科目对象ID（订单ID）
	AmountCents  int64          `gorm:"not null;default:0" json:"amount_cents"`                                                               // 佣金金额
	Currency     string         `gorm:"not null" json:"currency"`                                                                             // 币种
	Status       string         `gorm:"type:varchar(32);not null;index" json:"status"`                                                        // 状态
	Adjustments  JSON           `gorm:"type:json" json:"adjustments"`                                                                         // 调整记录
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`                                                                              // 创建时间
	UpdatedAt    time.Time      `gorm:"index" json:"updated_at"`                                                                              // 更新时间
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`                                                                                       // 软删除时间
}

// TableName 指定表名
func (CommissionLedgerEntry) TableName() string {
	return "commission_ledger_entries"
}
