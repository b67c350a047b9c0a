package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ngo_donation/internal/config"
	"ngo_donation/internal/gateway"
	"ngo_donation/internal/logger"
	"ngo_donation/internal/queue"
	"ngo_donation/internal/repository"
	"ngo_donation/internal/router"
	"ngo_donation/internal/service"
	"ngo_donation/internal/validator"
	rediskey "ngo_donation/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

func main() {
	startedAt := time.Now()

	// 1. 配置与日志
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load", "error", err)
	}
	logger.Init(cfg.Env)

	// 2. 连接 SQLite，自动建表
	db, err := repository.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("db open", "path", cfg.DBPath, "error", err)
	}

	// 3. Redis：限流、幂等键、事件 outbox。不可用时前两者降级放行。
	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 2*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, rate limiting and idempotency will fail open", "addr", cfg.RedisAddr, "error", err)
	}
	cancelPing()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. 捐款事件链路：Redis Stream -> Relay -> Kafka -> Consumer -> donation_events
	var events service.EventPublisher = queue.NoopPublisher{}
	if cfg.EventsEnabled {
		events = queue.NewStreamPublisher(rdb, cfg.DonationEventStream)

		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		relay := queue.NewRelay(rdb, producer, cfg.DonationEventStream, cfg.DonationEventGroup, cfg.DonationEventWorker)
		go relay.Run(ctx)

		consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, repository.NewDonationEventRepository(db))
		defer consumer.Close()
		go consumer.Run(ctx)

		logger.Info("donation events enabled", "stream", cfg.DonationEventStream, "topic", cfg.KafkaTopic)
	}

	// 5. 网关与服务，全部显式注入
	rzp := gateway.NewRazorpayClient(cfg.RazorpayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.GatewayTimeout)
	signer := gateway.NewSigner(cfg.RazorpayKeySecret)
	store := repository.NewDonationRepository(db)
	v := validator.New()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	router.Setup(r, router.Deps{
		Config:    cfg,
		Redis:     rdb,
		Orders:    service.NewOrderService(rzp, store, rediskey.NewIdempotencyStore(rdb, cfg.IdempotencyTTL), v, service.OrderConfig{Currency: cfg.Currency, NGOName: cfg.NGOName}),
		Verifier:  service.NewVerificationService(rzp, signer, store, events, v),
		Failures:  service.NewFailureNotifier(store, events),
		Reports:   service.NewReportingService(store, cfg.ReportMaxLimit),
		StartedAt: startedAt,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server started", "addr", cfg.HTTPAddr, "env", cfg.Env, "ngo", cfg.NGOName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http serve", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
}
