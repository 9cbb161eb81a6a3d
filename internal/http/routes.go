package http

import (
	"time"

	"mlm_shop/internal/config"
	"mlm_shop/internal/http/handlers"
	"mlm_shop/internal/http/middleware"
	"mlm_shop/internal/repository"
	"mlm_shop/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
)

func RegisterRoutes(r *gin.Engine, db *pgxpool.Pool, rdb *redis.Client, h *handlers.Handler, cfg *config.Config, version string) {
	healthHandler := handlers.NewHealthHandler(db, rdb, version)

	// Health checks (no rate limiting)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	adminRateWindow := time.Duration(cfg.AdminRateWindow) * time.Second

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(middleware.RedisRateLimit(cfg.AdminRateLimit, adminRateWindow))
	registerAdminRoutes(v1, h)

	// WebSocket order log feed
	r.GET("/ws/orders/:id/log", ws.HandleOrderLogWS(h.OrderLog))
}

func registerAdminRoutes(api *gin.RouterGroup, h *handlers.Handler) {
	admin := api.Group("/admin")
	admin.Use(middleware.AdminJWT())

	// Order lifecycle triggers
	admin.POST("/orders/:id/process-payment", h.ProcessOrderPayment)
	admin.POST("/orders/:id/paid", h.OrderPaid)
	admin.POST("/orders/:id/delivered", h.OrderDelivered)
	admin.POST("/orders/:id/refund", h.OrderRefund)
	admin.POST("/orders/:id/allocate-fund", h.AllocateFund)
	admin.POST("/orders/:id/distribute-fund", h.DistributeFund)

	// Audit and ledger inspection
	admin.GET("/orders/:id/log", h.OrderLogList)
	admin.GET("/orders/:id/transactions", h.OrderTransactions)
	admin.GET("/accounts/:id/balance", h.AccountBalance)
	admin.GET("/transactions/:id/zero-sum", h.TransactionZeroSum)
	admin.POST("/transactions/:id/reverse", h.ReverseTransaction)

	// Wallet operations
	admin.POST("/users/:id/wallet/credit", h.WalletCredit)
	admin.POST("/users/:id/wallet/debit", h.WalletDebit)
	admin.POST("/wallet/transfer", h.WalletTransfer)

	// Partner upgrades and network inspection
	admin.POST("/users/:id/upgrade-check", h.UpgradeCheck)
	admin.POST("/upgrade-scan", h.UpgradeScan)
	networkHandler := handlers.NewNetworkHandler(repository.NewNetworkRepository(h.DB))
	admin.GET("/users/:id/network", networkHandler.Tree)

	// Maintenance
	admin.POST("/worker/run", h.RunTimeoutWorker)
	admin.POST("/settings/refresh", h.RefreshSettings)
}
