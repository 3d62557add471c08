package provider

import (
	"github.com/budo-next/internal/cache"
	"github.com/budo-next/internal/config"
	"github.com/budo-next/internal/logger"
	"github.com/budo-next/internal/models"
	"github.com/budo-next/internal/queue"
	"github.com/budo-next/internal/repository"
	"github.com/budo-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	MemorialRepo repository.MemorialRepository
	OrderRepo    repository.OrderRepository

	// Services
	NotifyService  *service.NotifyService
	OrderService   *service.OrderService
	PaymentService *service.PaymentService
	ThanksService  *service.ThanksService
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

	c.initRepositories()
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.MemorialRepo = repository.NewMemorialRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
}

func (c *Container) initServices() {
	cfg := c.Config
	c.NotifyService = service.NewNotifyService(c.OrderRepo, c.MemorialRepo, c.QueueClient, &cfg.Notify, &cfg.ChatOps)
	c.OrderService = service.NewOrderService(c.OrderRepo, c.MemorialRepo, c.NotifyService)
	c.PaymentService = service.NewPaymentService(c.OrderRepo, c.NotifyService, &cfg.Payment, cfg.Server.BaseURL)
	c.ThanksService = service.NewThanksService(c.MemorialRepo, c.NotifyService, cfg.Thanks, cfg.Server.IsRelease())
}
