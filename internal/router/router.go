package router

import (
	"github.com/budo-next/internal/config"
	publichandlers "github.com/budo-next/internal/http/handlers/public"
	"github.com/budo-next/internal/logger"
	"github.com/budo-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 公开接口
		public := apiV1.Group("/public")
		{
			public.GET("/memorials/:memorial_no", publicHandler.GetMemorial)
			public.GET("/memorials/:memorial_no/orders", publicHandler.ListMemorialOrders)

			public.POST("/orders", publicHandler.CreateOrder)
			public.GET("/orders", publicHandler.ListOrders)
			public.GET("/orders/:order_no", publicHandler.GetOrder)
			public.PUT("/orders/:order_no", publicHandler.UpdateOrder)

			// 网关以 GET 或 POST 回调
			public.GET("/payments/callback", publicHandler.PaymentCallback)
			public.POST("/payments/callback", publicHandler.PaymentCallback)
			public.POST("/payments/approve", publicHandler.PaymentApprove)
		}

		// 任务触发接口
		jobs := apiV1.Group("/jobs")
		{
			jobs.POST("/thanks", publicHandler.TriggerThanks)
		}
	}

	return r
}
