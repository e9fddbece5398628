package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/pagecart/pagecart/internal/models"

	"gorm.io/gorm"
)

// AttributionRepository 推荐归属数据访问接口
type AttributionRepository interface {
	Create(attribution *models.Attribution) error
	GetByMerchant(merchantID uint) (*models.Attribution, error)
	Lock(merchantID uint, lockedAt time.Time) (int64, error)
	ListAdmin(filter AttributionListFilter) ([]models.Attribution, int64, error)
	WithTx(tx *gorm.DB) *GormAttributionRepository
}

// GormAttributionRepository GORM 实现
type GormAttributionRepository struct {
	db *gorm.DB
}

// NewAttributionRepository 创建推荐归属仓库
func NewAttributionRepository(db *gorm.DB) *GormAttributionRepository {
	return &GormAttributionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAttributionRepository) WithTx(tx *gorm.DB) *GormAttributionRepository {
	if tx == nil {
		return r
	}
	return &GormAttributionRepository{db: tx}
}

// Create 创建归属记录
func (r *GormAttributionRepository) Create(attribution *models.Attribution) error {
	return r.db.Create(attribution).Error
}

// GetByMerchant 获取商户归属记录
func (r *GormAttributionRepository) GetByMerchant(merchantID uint) (*models.Attribution, error) {
	if merchantID == 0 {
		return nil, nil
	}
	var attribution models.Attribution
	if err := r.db.Where("merchant_id = ?", merchantID).First(&attribution).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attribution, nil
}

// Lock 一次性锁定归属时间，仅未锁定行生效，返回生效行数
func (r *GormAttributionRepository) Lock(merchantID uint, lockedAt time.Time) (int64, error) {
	if merchantID == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Attribution{}).
		Where("merchant_id = ? AND locked_at IS NULL", merchantID).
		Updates(map[string]interface{}{
			"locked_at":  lockedAt,
			"updated_at": lockedAt,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ListAdmin 管理端推荐归属列表
func (r *GormAttributionRepository) ListAdmin(filter AttributionListFilter) ([]models.Attribution, int64, error) {
	query := r.db.Model(&models.Attribution{})

	if filter.MerchantID != 0 {
		query = query.Where("merchant_id = ?", filter.MerchantID)
	}
	if filter.ReferralCode != "" {
		query = query.Where("referral_code = ?", strings.TrimSpace(filter.ReferralCode))
	}
	if filter.Locked != nil {
		if *filter.Locked {
			query = query.Where("locked_at IS NOT NULL")
		} else {
			query = query.Where("locked_at IS NULL")
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var attributions []models.Attribution
	if err := query.Order("id desc").Find(&attributions).Error; err != nil {
		return nil, 0, err
	}
	return attributions, total, nil
}
