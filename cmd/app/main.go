package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mlm_shop/internal/config"
	"mlm_shop/internal/db"
	httpServer "mlm_shop/internal/http"
	"mlm_shop/internal/http/handlers"
	"mlm_shop/internal/http/middleware"
	"mlm_shop/internal/lock"
	"mlm_shop/internal/logger"
	"mlm_shop/internal/repository"
	"mlm_shop/internal/service"
	"mlm_shop/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_JSON") == "true")

	cfg := config.Load()
	service.InitJWT()

	dbPool := db.Connect(cfg.DatabaseURL)
	defer dbPool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	// Repositories
	orderRepo := repository.NewOrderRepository(dbPool)
	orderLogRepo := repository.NewOrderLogRepository(dbPool)
	userRepo := repository.NewUserRepository(dbPool)
	networkRepo := repository.NewNetworkRepository(dbPool)
	paymentRepo := repository.NewPaymentRepository(dbPool)
	promoRepo := repository.NewPromoRepository(dbPool)
	settingsRepo := repository.NewSettingsRepository(dbPool)

	// Services
	ledger := service.NewLedgerService(dbPool)
	wallet := service.NewWalletService(ledger)
	settings := service.NewSettingsService(settingsRepo)
	commissions := service.NewCommissionService(ledger, networkRepo, userRepo, orderLogRepo)
	fund := service.NewFundService(ledger, orderRepo, networkRepo, userRepo, orderLogRepo)
	upgrades := service.NewUpgradeService(userRepo, orderRepo)
	lifecycle := service.NewLifecycleService(
		orderRepo, orderLogRepo, settings, commissions, fund, upgrades, ledger.Txns(), wallet,
	)

	// Payment timeout worker, serialized across instances via redis lease
	locker := lock.NewRedisLocker(rdb)
	timeoutWorker := worker.NewPaymentTimeoutWorker(
		orderRepo, paymentRepo, promoRepo, orderLogRepo, locker,
		cfg.PaymentTimeout, cfg.WorkerInterval, cfg.WorkerLockTTL, cfg.WorkerBatch,
	)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if err := timeoutWorker.Start(workerCtx); err != nil {
		logger.Fatal("failed to start payment timeout worker", "error", err)
	}
	defer timeoutWorker.Stop()

	r := gin.Default()

	// CORS for the admin console (different domain)
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	middleware.InitRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := handlers.NewHandler(
		dbPool, ledger, wallet, fund, upgrades, lifecycle, settings,
		orderLogRepo, orderRepo, timeoutWorker,
	)
	httpServer.RegisterRoutes(r, dbPool, rdb, h, cfg, version)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		log.Println("server started on port", cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown:", err)
	}

	log.Println("server exited")
}
