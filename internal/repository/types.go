package repository

import "time"

// OrderListFilter 查询订单列表的过滤条件
type OrderListFilter struct {
	Page        int
	PageSize    int
	MerchantID  uint
	SiteSlug    string
	Status      string
	OrderNo     string
	Provider    string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// PaymentAccountListFilter 查询支付账户列表的过滤条件
type PaymentAccountListFilter struct {
	Page       int
	PageSize   int
	MerchantID uint
	Provider   string
	Status     string
}

// AttributionListFilter 查询推荐归属列表的过滤条件
type AttributionListFilter struct {
	Page         int
	PageSize     int
	MerchantID   uint
	ReferralCode string
	Locked       *bool
}

// CommissionListFilter 查询佣金账目列表的过滤条件
type CommissionListFilter struct {
	Page         int
	PageSize     int
	ReferralCode string
	Subject      string
	Status       string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
}
