package repository

import (
	"context"
	"encoding/json"
	"errors"

	"mlm_shop/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrOperationExists signals a unique-constraint hit on operation_id.
// The ledger decides whether it is a benign replay or a conflict.
var ErrOperationExists = errors.New("operation_id already exists")

type TxnRepository struct {
	db *pgxpool.Pool
}

func NewTxnRepository(db *pgxpool.Pool) *TxnRepository {
	return &TxnRepository{db: db}
}

// InsertTxn inserts a transaction row inside dbTx. Returns ErrOperationExists
// when the operation_id is already taken.
func (r *TxnRepository) InsertTxn(ctx context.Context, dbTx pgx.Tx, txn *domain.Txn) error {
	metaJSON, err := json.Marshal(txn.Meta)
	if err != nil {
		metaJSON = []byte("{}")
	}

	err = dbTx.QueryRow(ctx, `
		INSERT INTO transactions (operation_id, op_type, user_id, order_id, meta)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, txn.OperationID, txn.OpType, txn.UserID, txn.OrderID, metaJSON).Scan(&txn.ID, &txn.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrOperationExists
		}
		return err
	}
	return nil
}

// InsertPosting inserts one posting inside dbTx.
func (r *TxnRepository) InsertPosting(ctx context.Context, dbTx pgx.Tx, p *domain.Posting) error {
	return dbTx.QueryRow(ctx, `
		INSERT INTO postings (txn_id, debit_account_id, credit_account_id, amount, currency, memo)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, p.TxnID, p.DebitAccountID, p.CreditAccountID, p.Amount, p.Currency, p.Memo).Scan(&p.ID, &p.CreatedAt)
}

// GetByOperationID returns the transaction with the given idempotency key,
// or domain.ErrNotFound.
func (r *TxnRepository) GetByOperationID(ctx context.Context, operationID string) (*domain.Txn, error) {
	return r.scanOne(ctx, `
		SELECT id, operation_id, op_type, user_id, order_id, meta, created_at
		FROM transactions WHERE operation_id = $1
	`, operationID)
}

// GetByID returns a transaction by primary key.
func (r *TxnRepository) GetByID(ctx context.Context, id int64) (*domain.Txn, error) {
	return r.scanOne(ctx, `
		SELECT id, operation_id, op_type, user_id, order_id, meta, created_at
		FROM transactions WHERE id = $1
	`, id)
}

func (r *TxnRepository) scanOne(ctx context.Context, query string, arg interface{}) (*domain.Txn, error) {
	var (
		t        domain.Txn
		metaJSON []byte
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&t.ID, &t.OperationID, &t.OpType, &t.UserID, &t.OrderID, &metaJSON, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &t.Meta)
	}
	return &t, nil
}

// Postings returns all postings of a transaction in insertion order.
func (r *TxnRepository) Postings(ctx context.Context, txnID int64) ([]*domain.Posting, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, txn_id, debit_account_id, credit_account_id, amount, currency, memo, created_at
		FROM postings WHERE txn_id = $1 ORDER BY id
	`, txnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Posting
	for rows.Next() {
		var p domain.Posting
		if err := rows.Scan(&p.ID, &p.TxnID, &p.DebitAccountID, &p.CreditAccountID, &p.Amount, &p.Currency, &p.Memo, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

// ListByOrder returns all transactions attached to an order.
func (r *TxnRepository) ListByOrder(ctx context.Context, orderID int64) ([]*domain.Txn, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, operation_id, op_type, user_id, order_id, meta, created_at
		FROM transactions WHERE order_id = $1 ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Txn
	for rows.Next() {
		var (
			t        domain.Txn
			metaJSON []byte
		)
		if err := rows.Scan(&t.ID, &t.OperationID, &t.OpType, &t.UserID, &t.OrderID, &metaJSON, &t.CreatedAt); err != nil {
			return nil, err
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &t.Meta)
		}
		result = append(result, &t)
	}
	return result, rows.Err()
}

// SumBonusesByOrder sums posting amounts of RUB-denominated bonus
// transactions for the order. Backs the bonuses_granted_rub recompute.
func (r *TxnRepository) SumBonusesByOrder(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(p.amount), 0)
		FROM postings p
		JOIN transactions t ON t.id = p.txn_id
		WHERE t.order_id = $1
		  AND p.currency = 'RUB'
		  AND t.op_type IN ('referral_bonus', 'fast_start_bonus', 'infinity_bonus', 'fund_payout')
	`, orderID).Scan(&sum)
	return sum, err
}

// ZeroSum reports whether the transaction is globally balanced: it has at
// least one posting, every amount is positive, and both legs of every
// posting reference accounts of the posting's currency. Paired-leg storage
// keeps debit and credit totals equal by construction, so this check hunts
// for corrupted rows rather than arithmetic drift.
func (r *TxnRepository) ZeroSum(ctx context.Context, txnID int64) (bool, error) {
	var total, bad int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE p.amount <= 0
		           OR d.currency <> p.currency
		           OR c.currency <> p.currency
		           OR p.debit_account_id = p.credit_account_id)
		FROM postings p
		JOIN accounts d ON d.id = p.debit_account_id
		JOIN accounts c ON c.id = p.credit_account_id
		WHERE p.txn_id = $1
	`, txnID).Scan(&total, &bad)
	if err != nil {
		return false, err
	}
	return total > 0 && bad == 0, nil
}
