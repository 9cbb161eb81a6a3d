package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PromoRepository struct {
	db *pgxpool.Pool
}

func NewPromoRepository(db *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{db: db}
}

// ReleaseByOrder frees promo-code usages held by a cancelled order so the
// codes become usable again.
func (r *PromoRepository) ReleaseByOrder(ctx context.Context, orderID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE promo_code_usages SET released = TRUE
		WHERE order_id = $1 AND released = FALSE
	`, orderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
