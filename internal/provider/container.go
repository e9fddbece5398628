package provider

import (
	"github.com/pagecart/pagecart/internal/cache"
	"github.com/pagecart/pagecart/internal/config"
	"github.com/pagecart/pagecart/internal/logger"
	"github.com/pagecart/pagecart/internal/models"
	"github.com/pagecart/pagecart/internal/payment"
	"github.com/pagecart/pagecart/internal/payment/paypal"
	"github.com/pagecart/pagecart/internal/payment/stripe"
	"github.com/pagecart/pagecart/internal/queue"
	"github.com/pagecart/pagecart/internal/repository"
	"github.com/pagecart/pagecart/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Adapters
	PaymentRegistry *payment.Registry

	// Repositories
	AdminRepo          repository.AdminRepository
	OrderRepo          repository.OrderRepository
	PaymentAccountRepo repository.PaymentAccountRepository
	PaymentRecordRepo  repository.PaymentRecordRepository
	AttributionRepo    repository.AttributionRepository
	CommissionRepo     repository.CommissionRepository

	// Services
	AuthService          *service.AuthService
	PaymentRouter        *service.PaymentRouter
	CommissionAccountant *service.CommissionAccountant
	OrderLedger          *service.OrderLedger
	WebhookIngestor      *service.WebhookIngestor
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
	c.PaymentAccountRepo = repository.NewPaymentAccountRepository(db)
	c.PaymentRecordRepo = repository.NewPaymentRecordRepository(db)
	c.AttributionRepo = repository.NewAttributionRepository(db)
	c.CommissionRepo = repository.NewCommissionRepository(db)
}

func (c *Container) initServices() {
	// 适配器注册表在启动时构建一次
	c.PaymentRegistry = payment.NewRegistry(
		stripe.NewAdapter(),
		paypal.NewAdapter(),
	)

	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo)
	c.PaymentRouter = service.NewPaymentRouter(c.PaymentAccountRepo, c.PaymentRegistry)
	c.CommissionAccountant = service.NewCommissionAccountant(
		c.AttributionRepo,
		c.CommissionRepo,
		models.NewRateFromFloat(c.Config.Commission.ShareRate),
	)
	c.OrderLedger = service.NewOrderLedger(
		c.OrderRepo,
		c.PaymentRecordRepo,
		c.AttributionRepo,
		c.PaymentRouter,
		c.CommissionAccountant,
		c.QueueClient,
	)
	c.WebhookIngestor = service.NewWebhookIngestor(
		c.PaymentRegistry,
		c.PaymentAccountRepo,
		c.OrderRepo,
		c.OrderLedger,
	)
}
