package repository

import (
	"context"
	"encoding/json"

	"mlm_shop/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderLogRepository struct {
	db *pgxpool.Pool
}

func NewOrderLogRepository(db *pgxpool.Pool) *OrderLogRepository {
	return &OrderLogRepository{db: db}
}

// Append writes one audit event. The table is append-only; nothing updates
// or deletes rows.
func (r *OrderLogRepository) Append(ctx context.Context, orderID int64, event string, meta map[string]interface{}) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		metaJSON = []byte("{}")
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO order_log (order_id, event, meta) VALUES ($1, $2, $3)
	`, orderID, event, metaJSON)
	return err
}

// ListByOrder returns the audit trail of an order, oldest first. An optional
// event prefix filters e.g. all "balance:" movements.
func (r *OrderLogRepository) ListByOrder(ctx context.Context, orderID int64, eventPrefix string) ([]*domain.OrderLog, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if eventPrefix != "" {
		rows, err = r.db.Query(ctx, `
			SELECT id, order_id, event, meta, created_at
			FROM order_log
			WHERE order_id = $1 AND event LIKE $2 || '%'
			ORDER BY id
		`, orderID, eventPrefix)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT id, order_id, event, meta, created_at
			FROM order_log WHERE order_id = $1 ORDER BY id
		`, orderID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogs(rows)
}

// ListAfter returns events with id greater than afterID, used by the live
// feed to push only new entries.
func (r *OrderLogRepository) ListAfter(ctx context.Context, orderID, afterID int64) ([]*domain.OrderLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, event, meta, created_at
		FROM order_log WHERE order_id = $1 AND id > $2 ORDER BY id
	`, orderID, afterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogs(rows)
}

func scanLogs(rows pgx.Rows) ([]*domain.OrderLog, error) {
	var result []*domain.OrderLog
	for rows.Next() {
		var (
			l        domain.OrderLog
			metaJSON []byte
		)
		if err := rows.Scan(&l.ID, &l.OrderID, &l.Event, &metaJSON, &l.CreatedAt); err != nil {
			return nil, err
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &l.Meta)
		}
		result = append(result, &l)
	}
	return result, rows.Err()
}
