package service

import (
	"github.com/pagecart/pagecart/internal/constants"
	"github.com/pagecart/pagecart/internal/logger"
	"github.com/pagecart/pagecart/internal/models"
	"github.com/pagecart/pagecart/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CommissionAccountant 分销佣金记账：对收取了平台服务费且商户存在已锁定归属的订单，
// 按配置比例为推荐人记一笔待结算佣金。
type CommissionAccountant struct {
	attributionRepo repository.AttributionRepository
	commissionRepo  repository.CommissionRepository
	shareRate       models.Rate
}

// NewCommissionAccountant 创建佣金记账服务
func NewCommissionAccountant(
	attributionRepo repository.AttributionRepository,
	commissionRepo repository.CommissionRepository,
	shareRate models.Rate,
) *CommissionAccountant {
	return &CommissionAccountant{
		attributionRepo: attributionRepo,
		commissionRepo:  commissionRepo,
		shareRate:       shareRate,
	}
}

func commissionLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// RecordPlatformFeeCommission 以订单为主体写入佣金分录。
// 同一订单重复调用只会生效一次，金额向下取整到最小货币单位。
func (s *CommissionAccountant) RecordPlatformFeeCommission(order *models.Order) error {
	if order == nil || order.ID == 0 {
		return nil
	}
	log := commissionLogger("order_id", order.ID, "merchant_id", order.MerchantID)

	if order.PlatformFeeCents <= 0 {
		return nil
	}

	attribution, err := s.attributionRepo.GetByMerchant(order.MerchantID)
	if err != nil {
		return err
	}
	if attribution == nil || attribution.LockedAt == nil {
		// 无已锁定归属的商户不产生佣金
		return nil
	}

	amountCents := decimal.NewFromInt(order.PlatformFeeCents).
		Mul(s.shareRate.Decimal).
		Floor().
		IntPart()
	if amountCents <= 0 {
		return nil
	}

	entry := &models.CommissionLedgerEntry{
		ReferralCode: attribution.ReferralCode,
		Subject:      constants.CommissionSubjectOrderPlatformFee,
		SubjectID:    order.ID,
		AmountCents:  amountCents,
		Currency:     order.Currency,
		Status:       constants.CommissionStatusPending,
	}
	if err := s.commissionRepo.Upsert(entry); err != nil {
		return err
	}
	log.Infow("commission_recorded",
		"referral_code", attribution.ReferralCode,
		"amount_cents", amountCents,
	)
	return nil
}
