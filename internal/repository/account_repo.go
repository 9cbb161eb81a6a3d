package repository

import (
	"context"
	"errors"

	"mlm_shop/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

// Ensure gets or creates the account for (owner, currency, type).
// Accounts are created lazily and never deleted.
func (r *AccountRepository) Ensure(ctx context.Context, ownerType domain.OwnerType, ownerID *int64, currency domain.Currency, accType domain.AccountType) (*domain.Account, error) {
	// insert-or-ignore, then read back; the partial unique index makes
	// concurrent calls converge on one row
	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (owner_type, owner_id, currency, account_type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_type, COALESCE(owner_id, 0), currency, account_type) DO NOTHING
	`, ownerType, ownerID, currency, accType)
	if err != nil {
		return nil, err
	}

	return r.get(ctx, ownerType, ownerID, currency, accType)
}

func (r *AccountRepository) get(ctx context.Context, ownerType domain.OwnerType, ownerID *int64, currency domain.Currency, accType domain.AccountType) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, owner_type, owner_id, currency, account_type, created_at
		FROM accounts
		WHERE owner_type = $1 AND COALESCE(owner_id, 0) = COALESCE($2::bigint, 0)
		  AND currency = $3 AND account_type = $4
	`, ownerType, ownerID, currency, accType)

	var a domain.Account
	if err := row.Scan(&a.ID, &a.OwnerType, &a.OwnerID, &a.Currency, &a.AccountType, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// GetByID retrieves an account by primary key.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, owner_type, owner_id, currency, account_type, created_at
		FROM accounts WHERE id = $1
	`, id)

	var a domain.Account
	if err := row.Scan(&a.ID, &a.OwnerType, &a.OwnerID, &a.Currency, &a.AccountType, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Balance computes the signed sum of postings touching the account.
// Credits increase the balance, debits decrease it.
func (r *AccountRepository) Balance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(
			CASE WHEN credit_account_id = $1 THEN amount ELSE -amount END
		), 0)
		FROM postings
		WHERE debit_account_id = $1 OR credit_account_id = $1
	`, accountID).Scan(&sum)
	return sum, err
}

