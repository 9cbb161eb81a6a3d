package handlers

import (
	"errors"
	"net/http"

	"mlm_shop/internal/domain"
	"mlm_shop/internal/repository"
	"mlm_shop/internal/service"
	"mlm_shop/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Handler struct {
	DB        *pgxpool.Pool
	Ledger    *service.LedgerService
	Wallet    *service.WalletService
	Fund      *service.FundService
	Upgrades  *service.UpgradeService
	Lifecycle *service.LifecycleService
	Settings  *service.SettingsService
	OrderLog  *repository.OrderLogRepository
	Orders    *repository.OrderRepository
	Worker    *worker.PaymentTimeoutWorker
}

func NewHandler(
	db *pgxpool.Pool,
	ledger *service.LedgerService,
	wallet *service.WalletService,
	fund *service.FundService,
	upgrades *service.UpgradeService,
	lifecycle *service.LifecycleService,
	settings *service.SettingsService,
	orderLog *repository.OrderLogRepository,
	orders *repository.OrderRepository,
	timeoutWorker *worker.PaymentTimeoutWorker,
) *Handler {
	return &Handler{
		DB:        db,
		Ledger:    ledger,
		Wallet:    wallet,
		Fund:      fund,
		Upgrades:  upgrades,
		Lifecycle: lifecycle,
		Settings:  settings,
		OrderLog:  orderLog,
		Orders:    orders,
		Worker:    timeoutWorker,
	}
}

// respondError maps domain errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var validation *domain.ValidationError
	var conflict *domain.IdempotencyConflictError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domain.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient funds"})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// getOperatorID извлекает operator_id из контекста Gin
func getOperatorID(c interface{ Get(string) (any, bool) }) (int64, bool) {
	val, ok := c.Get("operator_id")
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
