package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// FailPending marks an order's pending/awaiting payments as failed when the
// timeout worker cancels the order. Returns how many rows changed.
func (r *PaymentRepository) FailPending(ctx context.Context, orderID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments SET status = 'failed'
		WHERE order_id = $1 AND status IN ('pending', 'awaiting')
	`, orderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
