package router

import (
	"net/http"
	"time"

	"ngo_donation/internal/config"
	"ngo_donation/internal/middleware"
	"ngo_donation/internal/service"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

// Deps 路由依赖，由 main 显式构造后传入。
type Deps struct {
	Config    config.AppConfig
	Redis     *rd.Client // nil 时关闭限流
	Orders    *service.OrderService
	Verifier  *service.VerificationService
	Failures  *service.FailureNotifier
	Reports   *service.ReportingService
	StartedAt time.Time
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) {
	debug := d.Config.IsDevelopment()

	r.Use(
		middleware.RequestID(),
		middleware.AccessLog(),
		middleware.Recovery(debug),
		middleware.BodyLimit(d.Config.MaxBodyBytes),
	)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"message":   d.Config.NGOName + " donation backend is running",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "OK",
			"uptime": time.Since(d.StartedAt).Seconds(),
		})
	})

	api := r.Group("/api")
	if d.Redis != nil {
		api.Use(middleware.RedisRateLimit(d.Redis, "api", d.Config.APIRateLimit, d.Config.APIRateWindow,
			"Too many requests. Please try again later."))
	}
	// 子分组创建时复制 api 当前的中间件链
	payment := api.Group("/payment")
	if d.Redis != nil {
		payment.Use(middleware.RedisRateLimit(d.Redis, "payment", d.Config.PaymentRateLimit, d.Config.PaymentRateWindow,
			"Too many payment requests. Please wait a while and try again."))
	}

	payment.POST("/create-order", createOrder(d.Orders, debug))
	payment.POST("/verify", verifyPayment(d.Verifier, debug))
	payment.POST("/failed", paymentFailed(d.Failures))
	payment.GET("/donations", listDonations(d.Reports, debug))

	r.NoRoute(func(c *gin.Context) {
		respondFail(c, http.StatusNotFound, "Route "+c.Request.URL.Path+" not found")
	})
}
