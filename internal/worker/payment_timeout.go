// Package worker runs the scheduled settlement maintenance jobs.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mlm_shop/internal/domain"
	"mlm_shop/internal/lock"
	"mlm_shop/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

var (
	workerRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_worker_runs_total",
		Help: "Payment timeout worker runs by outcome.",
	}, []string{"outcome"})
	cancelledOrders = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_orders_cancelled_total",
		Help: "Orders cancelled by the payment timeout worker.",
	})
)

func init() {
	prometheus.MustRegister(workerRuns, cancelledOrders)
}

const paymentTimeoutLockKey = "worker:payment_timeout"

type staleOrderStore interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Order, error)
	CancelStale(ctx context.Context, orderID int64) (bool, error)
}

type paymentFailer interface {
	FailPending(ctx context.Context, orderID int64) (int64, error)
}

type promoReleaser interface {
	ReleaseByOrder(ctx context.Context, orderID int64) (int64, error)
}

type logAppender interface {
	Append(ctx context.Context, orderID int64, event string, meta map[string]any) error
}

// Result reports one worker pass.
type Result struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// PaymentTimeoutWorker cancels orders whose payment window expired.
// Runs are serialized across instances through a redis lease.
type PaymentTimeoutWorker struct {
	orders   staleOrderStore
	payments paymentFailer
	promos   promoReleaser
	logs     logAppender
	locker   lock.Locker

	timeout    time.Duration
	interval   time.Duration
	lockTTL    time.Duration
	batchLimit int

	cron *cron.Cron
	log  *slog.Logger
}

func NewPaymentTimeoutWorker(
	orders staleOrderStore,
	payments paymentFailer,
	promos promoReleaser,
	logs logAppender,
	locker lock.Locker,
	timeout, interval, lockTTL time.Duration,
	batchLimit int,
) *PaymentTimeoutWorker {
	if batchLimit <= 0 {
		batchLimit = 100
	}
	return &PaymentTimeoutWorker{
		orders:     orders,
		payments:   payments,
		promos:     promos,
		logs:       logs,
		locker:     locker,
		timeout:    timeout,
		interval:   interval,
		lockTTL:    lockTTL,
		batchLimit: batchLimit,
		log:        logger.With("worker", "payment_timeout"),
	}
}

// Start schedules the worker. The first run happens after one interval,
// not immediately, so a restart storm does not hammer the lock.
func (w *PaymentTimeoutWorker) Start(ctx context.Context) error {
	w.cron = cron.New()
	spec := fmt.Sprintf("@every %s", w.interval)
	_, err := w.cron.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, w.lockTTL)
		defer cancel()
		res, err := w.RunOnce(runCtx)
		if err != nil {
			w.log.Error("payment timeout worker run failed", "error", err)
			return
		}
		if res.Processed > 0 || res.Errors > 0 {
			w.log.Info("payment timeout worker pass",
				"processed", res.Processed, "errors", res.Errors)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule payment timeout worker: %w", err)
	}
	w.cron.Start()
	return nil
}

// Stop waits for an in-flight pass to finish.
func (w *PaymentTimeoutWorker) Stop() {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
}

// RunOnce performs a single pass. When another instance holds the lease
// the pass is skipped and an empty Result is returned.
func (w *PaymentTimeoutWorker) RunOnce(ctx context.Context) (Result, error) {
	lease, err := w.locker.Acquire(ctx, paymentTimeoutLockKey, w.lockTTL)
	if err != nil {
		if err == domain.ErrLeaseBusy {
			workerRuns.WithLabelValues("skipped").Inc()
			return Result{}, nil
		}
		workerRuns.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("acquire worker lease: %w", err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.locker.Release(releaseCtx, lease); err != nil {
			w.log.Error("release worker lease failed", "error", err)
		}
	}()

	res, err := w.cancelExpired(ctx)
	if err != nil {
		workerRuns.WithLabelValues("error").Inc()
		return res, err
	}
	workerRuns.WithLabelValues("ok").Inc()
	return res, nil
}

func (w *PaymentTimeoutWorker) cancelExpired(ctx context.Context) (Result, error) {
	cutoff := time.Now().Add(-w.timeout)
	stale, err := w.orders.ListStale(ctx, cutoff, w.batchLimit)
	if err != nil {
		return Result{}, fmt.Errorf("list stale orders: %w", err)
	}

	var res Result
	for _, order := range stale {
		if err := w.cancelOne(ctx, order); err != nil {
			res.Errors++
			w.log.Error("cancel stale order failed", "order_id", order.ID, "error", err)
			continue
		}
		res.Processed++
	}
	return res, nil
}

// cancelOne flips exactly one order. CancelStale re-checks the status under
// the row update, so an order paid between ListStale and here is untouched.
func (w *PaymentTimeoutWorker) cancelOne(ctx context.Context, order *domain.Order) error {
	cancelled, err := w.orders.CancelStale(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if !cancelled {
		return nil
	}
	cancelledOrders.Inc()

	released, err := w.promos.ReleaseByOrder(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("release promo usages: %w", err)
	}
	failed, err := w.payments.FailPending(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("fail pending payments: %w", err)
	}

	meta := map[string]any{
		"reason":           "payment_timeout",
		"timeout_minutes":  int(w.timeout.Minutes()),
		"promos_released":  released,
		"payments_failed":  failed,
		"previous_status":  string(order.Status),
		"order_created_at": order.CreatedAt.Format(time.RFC3339),
	}
	if err := w.logs.Append(ctx, order.ID, domain.EventOrderCancelled, meta); err != nil {
		w.log.Error("append cancellation log failed", "order_id", order.ID, "error", err)
	}
	return nil
}
