package router

import (
	"fmt"
	"strings"

	"github.com/pagecart/pagecart/internal/cache"
	"github.com/pagecart/pagecart/internal/config"
	adminhandlers "github.com/pagecart/pagecart/internal/http/handlers/admin"
	publichandlers "github.com/pagecart/pagecart/internal/http/handlers/public"
	"github.com/pagecart/pagecart/internal/logger"
	"github.com/pagecart/pagecart/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按前台/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "pc"
	}
	redisClient := cache.Client()
	adminLoginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:admin_login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		Message:       "too many login attempts",
	}
	webhookRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:webhook", redisPrefix),
		WindowSeconds: cfg.Security.WebhookRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.WebhookRateLimit.MaxRequests,
		Message:       "too many requests",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 下单与结算
		apiV1.POST("/checkout", publicHandler.CreateCheckout)
		apiV1.GET("/orders/by-order-no/:order_no", publicHandler.GetOrderByOrderNo)

		// 回调入口携带提供方与支付账户 ID，先定位配置再验签
		apiV1.POST("/payments/webhook/:provider/:account_id",
			RateLimitMiddleware(redisClient, webhookRule, KeyByIPAndParam("provider")),
			publicHandler.PaymentWebhook,
		)

		// 管理员接口
		admin := apiV1.Group("/admin")
		{
			// 登录接口（无需鉴权）
			admin.POST("/login", RateLimitMiddleware(redisClient, adminLoginRule, KeyByIP), adminHandler.AdminLogin)

			// 需要鉴权的接口
			authorized := admin.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.AdminRepo))
			{
				authorized.PUT("/password", adminHandler.UpdateAdminPassword)

				// 订单管理
				authorized.GET("/orders", adminHandler.AdminListOrders)
				authorized.GET("/orders/:id", adminHandler.AdminGetOrder)
				authorized.GET("/orders/:id/payments", adminHandler.AdminListOrderPayments)

				// 支付账户管理
				authorized.POST("/payment-accounts", adminHandler.CreatePaymentAccount)
				authorized.GET("/payment-accounts", adminHandler.GetPaymentAccounts)
				authorized.GET("/payment-accounts/:id", adminHandler.GetPaymentAccount)
				authorized.PUT("/payment-accounts/:id", adminHandler.UpdatePaymentAccount)
				authorized.DELETE("/payment-accounts/:id", adminHandler.DeletePaymentAccount)

				// 推荐归属
				authorized.GET("/attributions", adminHandler.ListAttributions)
				authorized.GET("/attributions/by-merchant/:merchant_id", adminHandler.GetMerchantAttribution)

				// 佣金账目
				authorized.GET("/commissions", adminHandler.ListCommissions)
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
