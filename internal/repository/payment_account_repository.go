package repository

import (
	"errors"

	"github.com/pagecart/pagecart/internal/constants"
	"github.com/pagecart/pagecart/internal/models"

	"gorm.io/gorm"
)

// PaymentAccountRepository 支付账户数据访问接口
type PaymentAccountRepository interface {
	Create(account *models.PaymentAccount) error
	Update(account *models.PaymentAccount) error
	Delete(id uint) error
	GetByID(id uint) (*models.PaymentAccount, error)
	GetActiveByMerchant(merchantID uint) (*models.PaymentAccount, error)
	ListAdmin(filter PaymentAccountListFilter) ([]models.PaymentAccount, int64, error)
	WithTx(tx *gorm.DB) *GormPaymentAccountRepository
}

// GormPaymentAccountRepository GORM 实现
type GormPaymentAccountRepository struct {
	db *gorm.DB
}

// NewPaymentAccountRepository 创建支付账户仓库
func NewPaymentAccountRepository(db *gorm.DB) *GormPaymentAccountRepository {
	return &GormPaymentAccountRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentAccountRepository) WithTx(tx *gorm.DB) *GormPaymentAccountRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentAccountRepository{db: tx}
}

// Create 创建支付账户
func (r *GormPaymentAccountRepository) Create(account *models.PaymentAccount) error {
	return r.db.Create(account).Error
}

// Update 更新支付账户
func (r *GormPaymentAccountRepository) Update(account *models.PaymentAccount) error {
	return r.db.Save(account).Error
}

// Delete 删除支付账户（软删除）
func (r *GormPaymentAccountRepository) Delete(id uint) error {
	if id == 0 {
		return nil
	}
	return r.db.Delete(&models.PaymentAccount{}, id).Error
}

// GetByID 根据 ID 获取支付账户
func (r *GormPaymentAccountRepository) GetByID(id uint) (*models.PaymentAccount, error) {
	var account models.PaymentAccount
	if err := r.db.First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// GetActiveByMerchant 获取商户唯一启用的支付账户
func (r *GormPaymentAccountRepository) GetActiveByMerchant(merchantID uint) (*models.PaymentAccount, error) {
	if merchantID == 0 {
		return nil, nil
	}
	var account models.PaymentAccount
	result := r.db.Where("merchant_id = ? AND status = ?", merchantID, constants.PaymentAccountStatusActive).
		Order("id desc").Limit(1).Find(&account)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &account, nil
}

// ListAdmin 管理端支付账户列表
func (r *GormPaymentAccountRepository) ListAdmin(filter PaymentAccountListFilter) ([]models.PaymentAccount, int64, error) {
	query := r.db.Model(&models.PaymentAccount{})

	if filter.MerchantID != 0 {
		query = query.Where("merchant_id = ?", filter.MerchantID)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var accounts []models.PaymentAccount
	if err := query.Order("id desc").Find(&accounts).Error; err != nil {
		return nil, 0, err
	}
	return accounts, total, nil
}
