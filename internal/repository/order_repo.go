package repository

import (
	"context"
	"errors"
	"time"

	"mlm_shop/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type OrderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, user_id, status, delivery_status, order_base_rub,
	total_payable_rub, referral_discount_rub, referral_user_id, pv_earned,
	network_fund_rub, bonuses_granted_rub, created_at, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.Status, &o.DeliveryStatus, &o.OrderBaseRub,
		&o.TotalPayableRub, &o.ReferralDiscount, &o.ReferralUserID, &o.PVEarned,
		&o.NetworkFundRub, &o.BonusesGrantedRub, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// GetByID retrieves an order.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	return scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// Create inserts a new order (used by seeding and tests).
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO orders (user_id, status, delivery_status, order_base_rub,
			total_payable_rub, referral_discount_rub, referral_user_id, pv_earned)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, o.UserID, o.Status, o.DeliveryStatus, o.OrderBaseRub,
		o.TotalPayableRub, o.ReferralDiscount, o.ReferralUserID, o.PVEarned,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
}

// SetStatus updates the payment-side status.
func (r *OrderRepository) SetStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetDeliveryStatus updates the fulfilment-side status.
func (r *OrderRepository) SetDeliveryStatus(ctx context.Context, id int64, status domain.DeliveryStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET delivery_status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetNetworkFund records the fund share allocated from the order.
func (r *OrderRepository) SetNetworkFund(ctx context.Context, id int64, amount decimal.Decimal) error {
	_, err := r.db.Exec(ctx, `
		UPDATE orders SET network_fund_rub = $2, updated_at = NOW() WHERE id = $1
	`, id, amount)
	return err
}

// SetBonusesGranted persists the recomputed total of granted bonuses.
func (r *OrderRepository) SetBonusesGranted(ctx context.Context, id int64, amount decimal.Decimal) error {
	_, err := r.db.Exec(ctx, `
		UPDATE orders SET bonuses_granted_rub = $2, updated_at = NOW() WHERE id = $1
	`, id, amount)
	return err
}

// ListStale returns new/pending orders created before the cutoff that have no
// successful or awaiting payment. Capped by limit for bounded batches.
func (r *OrderRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		WHERE o.status IN ('new', 'pending')
		  AND o.created_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM payments p
			WHERE p.order_id = o.id AND p.status IN ('success', 'awaiting')
		  )
		ORDER BY o.created_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

// CancelStale flips a stale order to cancelled, but only while it is still
// new/pending so a payment racing the worker wins.
func (r *OrderRepository) CancelStale(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN ('new', 'pending')
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// PaidStats aggregates paid/completed order history for the auto-upgrade
// evaluator: count and total payable sum.
func (r *OrderRepository) PaidStats(ctx context.Context, userID int64) (int, decimal.Decimal, error) {
	var count int
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_payable_rub), 0)
		FROM orders
		WHERE user_id = $1 AND status = 'paid'
	`, userID).Scan(&count, &total)
	return count, total, err
}
