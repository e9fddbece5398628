package repository

import (
	"strings"

	"github.com/pagecart/pagecart/internal/models"

	"gorm.io/gorm"
)

// PaymentRecordRepository 支付流水数据访问接口
type PaymentRecordRepository interface {
	Create(record *models.PaymentRecord) error
	GetByProviderRef(provider, providerPaymentID string) (*models.PaymentRecord, error)
	ListByOrderID(orderID uint) ([]models.PaymentRecord, error)
	CountByOrderID(orderID uint) (int64, error)
	WithTx(tx *gorm.DB) *GormPaymentRecordRepository
}

// GormPaymentRecordRepository GORM 实现
type GormPaymentRecordRepository struct {
	db *gorm.DB
}

// NewPaymentRecordRepository 创建支付流水仓库
func NewPaymentRecordRepository(db *gorm.DB) *GormPaymentRecordRepository {
	return &GormPaymentRecordRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentRecordRepository) WithTx(tx *gorm.DB) *GormPaymentRecordRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentRecordRepository{db: tx}
}

// Create 创建支付流水，(provider, provider_payment_id) 唯一约束由数据库保证
func (r *GormPaymentRecordRepository) Create(record *models.PaymentRecord) error {
	return r.db.Create(record).Error
}

// GetByProviderRef 根据提供方流水号获取支付流水
func (r *GormPaymentRecordRepository) GetByProviderRef(provider, providerPaymentID string) (*models.PaymentRecord, error) {
	provider = strings.TrimSpace(provider)
	providerPaymentID = strings.TrimSpace(providerPaymentID)
	if provider == "" || providerPaymentID == "" {
		return nil, nil
	}
	var record models.PaymentRecord
	result := r.db.Where("provider = ? AND provider_payment_id = ?", provider, providerPaymentID).
		Limit(1).Find(&record)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &record, nil
}

// ListByOrderID 获取订单支付流水
func (r *GormPaymentRecordRepository) ListByOrderID(orderID uint) ([]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	if err := r.db.Where("order_id = ?", orderID).Order("id desc").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// CountByOrderID 统计订单支付流水数量
func (r *GormPaymentRecordRepository) CountByOrderID(orderID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&models.PaymentRecord{}).Where("order_id = ?", orderID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
