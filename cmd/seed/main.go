package main

import (
	"github.com/pagecart/pagecart/internal/config"
	"github.com/pagecart/pagecart/internal/constants"
	"github.com/pagecart/pagecart/internal/logger"
	"github.com/pagecart/pagecart/internal/models"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 演示商户的支付账户配置
	accounts := []models.PaymentAccount{
		{
			MerchantID:          1,
			Provider:            constants.PaymentProviderStripe,
			AccountRef:          "acct_demo_stripe",
			Status:              constants.PaymentAccountStatusActive,
			CollectPlatformFee:  true,
			PlatformFeePercent:  models.NewRateFromFloat(0.05),
			PlatformFeeMinCents: 200,
			ConfigJSON: models.JSON{
				"secret_key":      "sk_test_replace_me",
				"publishable_key": "pk_test_replace_me",
				"webhook_secret":  "whsec_replace_me",
			},
		},
		{
			MerchantID:          2,
			Provider:            constants.PaymentProviderPaypal,
			Status:              constants.PaymentAccountStatusActive,
			CollectPlatformFee:  true,
			PlatformFeePercent:  models.NewRateFromFloat(0.05),
			PlatformFeeMinCents: 200,
			ConfigJSON: models.JSON{
				"client_id":     "paypal_client_replace_me",
				"client_secret": "paypal_secret_replace_me",
				"webhook_id":    "paypal_webhook_replace_me",
				"sandbox":       true,
			},
		},
	}
	for i := range accounts {
		account := &accounts[i]
		var existing models.PaymentAccount
		if err := models.DB.Where("merchant_id = ? AND provider = ?", account.MerchantID, account.Provider).
			First(&existing).Error; err != nil {
			if err := models.DB.Create(account).Error; err != nil {
				stdLog.Printf("Failed to create payment account for merchant %d: %v", account.MerchantID, err)
			} else {
				stdLog.Printf("Created payment account: merchant=%d provider=%s", account.MerchantID, account.Provider)
			}
		} else {
			stdLog.Printf("Payment account already exists: merchant=%d provider=%s", account.MerchantID, account.Provider)
		}
	}

	// 演示商户的推荐归属
	attributions := []models.Attribution{
		{MerchantID: 1, ReferralCode: "DEMO-REF-001"},
		{MerchantID: 2, ReferralCode: "DEMO-REF-002"},
	}
	for i := range attributions {
		attribution := &attributions[i]
		var existing models.Attribution
		if err := models.DB.Where("merchant_id = ?", attribution.MerchantID).First(&existing).Error; err != nil {
			if err := models.DB.Create(attribution).Error; err != nil {
				stdLog.Printf("Failed to create attribution for merchant %d: %v", attribution.MerchantID, err)
			} else {
				stdLog.Printf("Created attribution: merchant=%d referral_code=%s", attribution.MerchantID, attribution.ReferralCode)
			}
		} else {
			stdLog.Printf("Attribution already exists: merchant=%d", attribution.MerchantID)
		}
	}

	stdLog.Println("Seed completed")
}
