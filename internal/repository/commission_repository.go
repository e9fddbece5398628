package repository

import (
	"strings"

	"github.com/pagecart/pagecart/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommissionRepository 佣金账目数据访问接口
type CommissionRepository interface {
	Upsert(entry *models.CommissionLedgerEntry) error
	GetBySubject(referralCode, subject string, subjectID uint) (*models.CommissionLedgerEntry, error)
	ListAdmin(filter CommissionListFilter) ([]models.CommissionLedgerEntry, int64, error)
	WithTx(tx *gorm.DB) *GormCommissionRepository
}

// GormCommissionRepository GORM 实现
type GormCommissionRepository struct {
	db *gorm.DB
}

// NewCommissionRepository 创建佣金账目仓库
func NewCommissionRepository(db *gorm.DB) *GormCommissionRepository {
	return &GormCommissionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCommissionRepository) WithTx(tx *gorm.DB) *GormCommissionRepository {
	if tx == nil {
		return r
	}
	return &GormCommissionRepository{db: tx}
}

// Upsert 幂等写入佣金账目，命中唯一键时不做任何修改
func (r *GormCommissionRepository) Upsert(entry *models.CommissionLedgerEntry) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "referral_code"},
			{Name: "subject"},
			{Name: "subject_id"},
		},
		DoNothing: true,
	}).Create(entry).Error
}

// GetBySubject 根据唯一键获取佣金账目
func (r *GormCommissionRepository) GetBySubject(referralCode, subject string, subjectID uint) (*models.CommissionLedgerEntry, error) {
	referralCode = strings.TrimSpace(referralCode)
	if referralCode == "" || subjectID == 0 {
		return nil, nil
	}
	var entry models.CommissionLedgerEntry
	result := r.db.Where("referral_code = ? AND subject = ? AND subject_id = ?", referralCode, subject, subjectID).
		Limit(1).Find(&entry)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &entry, nil
}

// ListAdmin 管理端佣金账目列表
func (r *GormCommissionRepository) ListAdmin(filter CommissionListFilter) ([]models.CommissionLedgerEntry, int64, error) {
	query := r.db.Model(&models.CommissionLedgerEntry{})

	if filter.ReferralCode != "" {
		query = query.Where("referral_code = ?", strings.TrimSpace(filter.ReferralCode))
	}
	if filter.Subject != "" {
		query = query.Where("subject = ?", filter.Subject)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var entries []models.CommissionLedgerEntry
	if err := query.Order("id desc").Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
